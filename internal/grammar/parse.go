// Package grammar reads troop descriptions:
//
//	Monkey 0:
//	  Starting items: 79, 98
//	  Operation: new = old * 19
//	  Test: divisible by 23
//	    If true: throw to monkey 2
//	    If false: throw to monkey 3
//
// Stanzas are separated by blank lines. Parsing is all-or-nothing.
package grammar

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"keepaway/internal/agent"
	"keepaway/internal/expr"
)

const (
	declPrefix      = "Monkey "
	itemsPrefix     = "Starting items:"
	operationPrefix = "Operation: new ="
	testPrefix      = "Test: divisible by "
	ifTruePrefix    = "If true: throw to monkey "
	ifFalsePrefix   = "If false: throw to monkey "

	stanzaLines = 6

	// Starting item lists may be arbitrarily long.
	initialLineBuffer = 64 * 1024
	maxLineLength     = math.MaxInt32
)

var ErrSyntax = errors.New("syntax error")

// ParseError names the stanza (1-based) and input line (1-based) that failed.
type ParseError struct {
	Stanza int
	Line   int
	Msg    string
	Err    error
}

func (e *ParseError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "parse: stanza %d", e.Stanza)
	if e.Line > 0 {
		fmt.Fprintf(&b, ", line %d", e.Line)
	}
	b.WriteString(": ")
	b.WriteString(e.Msg)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func (e *ParseError) Is(target error) bool {
	return target == ErrSyntax
}

type line struct {
	number int
	text   string
}

// ParseString is Parse over an in-memory description.
func ParseString(s string) (agent.Troop, error) {
	return Parse(strings.NewReader(s))
}

// Parse reads every stanza from r and validates the resulting troop. It
// returns a *ParseError for grammar mismatches and an *agent.ConfigError for
// well-formed input that cannot be simulated.
func Parse(r io.Reader) (agent.Troop, error) {
	stanzas, err := splitStanzas(r)
	if err != nil {
		return nil, err
	}
	if len(stanzas) == 0 {
		return nil, &ParseError{Stanza: 1, Msg: "input holds no agent stanzas"}
	}

	troop := make(agent.Troop, 0, len(stanzas))
	for i, stanza := range stanzas {
		a, err := parseStanza(i+1, len(troop), stanza)
		if err != nil {
			return nil, err
		}
		troop = append(troop, a)
	}
	if err := troop.Validate(); err != nil {
		return nil, err
	}
	return troop, nil
}

func splitStanzas(r io.Reader) ([][]line, error) {
	var (
		stanzas [][]line
		current []line
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLineBuffer), maxLineLength)
	number := 0
	for scanner.Scan() {
		number++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			if len(current) > 0 {
				stanzas = append(stanzas, current)
				current = nil
			}
			continue
		}
		current = append(current, line{number: number, text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read troop description: %w", err)
	}
	if len(current) > 0 {
		stanzas = append(stanzas, current)
	}
	return stanzas, nil
}

type stanzaParser struct {
	stanza int
	lines  []line
}

func (p *stanzaParser) fail(l line, err error, format string, args ...any) *ParseError {
	return &ParseError{Stanza: p.stanza, Line: l.number, Msg: fmt.Sprintf(format, args...), Err: err}
}

// field returns the remainder of line i after prefix.
func (p *stanzaParser) field(i int, prefix string) (string, line, error) {
	if i >= len(p.lines) {
		last := p.lines[len(p.lines)-1]
		return "", last, p.fail(last, nil, "missing line %d, expected %q", i+1, prefix)
	}
	l := p.lines[i]
	rest, ok := strings.CutPrefix(l.text, prefix)
	if !ok {
		return "", l, p.fail(l, nil, "expected %q, got %q", prefix, l.text)
	}
	return strings.TrimSpace(rest), l, nil
}

func (p *stanzaParser) integer(i int, prefix string) (int64, line, error) {
	rest, l, err := p.field(i, prefix)
	if err != nil {
		return 0, l, err
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, l, p.fail(l, err, "bad integer after %q", prefix)
	}
	return n, l, nil
}

// unsigned parses a digits-only value; signs are rejected.
func (p *stanzaParser) unsigned(i int, prefix string) (uint64, line, error) {
	rest, l, err := p.field(i, prefix)
	if err != nil {
		return 0, l, err
	}
	n, err := strconv.ParseUint(rest, 10, 64)
	if err != nil {
		return 0, l, p.fail(l, err, "bad integer after %q", prefix)
	}
	return n, l, nil
}

func parseStanza(stanza, index int, lines []line) (agent.Agent, error) {
	p := &stanzaParser{stanza: stanza, lines: lines}

	decl, declLine, err := p.field(0, declPrefix)
	if err != nil {
		return agent.Agent{}, err
	}
	ordinal, ok := strings.CutSuffix(decl, ":")
	if !ok {
		return agent.Agent{}, p.fail(declLine, nil, "declaration %q must end with ':'", declLine.text)
	}
	id, err := strconv.ParseUint(strings.TrimSpace(ordinal), 10, 31)
	if err != nil {
		return agent.Agent{}, p.fail(declLine, err, "bad agent ordinal")
	}

	items, err := p.items()
	if err != nil {
		return agent.Agent{}, err
	}

	operation, err := p.operation()
	if err != nil {
		return agent.Agent{}, err
	}

	divisor, divisorLine, err := p.integer(3, testPrefix)
	if err != nil {
		return agent.Agent{}, err
	}
	if divisor <= 0 {
		return agent.Agent{}, &agent.ConfigError{
			Agent: index,
			Msg:   fmt.Sprintf("divisor must be positive, got %d (line %d)", divisor, divisorLine.number),
		}
	}

	ifTrue, _, err := p.unsigned(4, ifTruePrefix)
	if err != nil {
		return agent.Agent{}, err
	}
	ifFalse, _, err := p.unsigned(5, ifFalsePrefix)
	if err != nil {
		return agent.Agent{}, err
	}

	if len(lines) > stanzaLines {
		extra := lines[stanzaLines]
		return agent.Agent{}, p.fail(extra, nil, "unexpected line %q", extra.text)
	}

	return agent.Agent{
		ID:        int(id),
		Items:     agent.NewQueue(items...),
		Operation: operation,
		Divisor:   uint64(divisor),
		IfTrue:    targetIndex(ifTrue),
		IfFalse:   targetIndex(ifFalse),
	}, nil
}

func (p *stanzaParser) items() ([]uint64, error) {
	rest, l, err := p.field(1, itemsPrefix)
	if err != nil {
		return nil, err
	}
	if rest == "" {
		return nil, nil
	}
	parts := strings.Split(rest, ",")
	items := make([]uint64, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseUint(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, p.fail(l, err, "bad starting item %q", strings.TrimSpace(part))
		}
		items = append(items, v)
	}
	return items, nil
}

func (p *stanzaParser) operation() (expr.Expression, error) {
	rest, l, err := p.field(2, operationPrefix)
	if err != nil {
		return expr.Expression{}, err
	}
	tokens := strings.Fields(rest)
	if len(tokens) != 3 {
		return expr.Expression{}, p.fail(l, nil, "operation must be <operand> <op> <operand>, got %q", rest)
	}
	lhs, err := expr.ParseOperand(tokens[0])
	if err != nil {
		return expr.Expression{}, p.fail(l, err, "bad left operand")
	}
	op, err := expr.ParseOperator(tokens[1])
	if err != nil {
		return expr.Expression{}, p.fail(l, err, "bad operator")
	}
	rhs, err := expr.ParseOperand(tokens[2])
	if err != nil {
		return expr.Expression{}, p.fail(l, err, "bad right operand")
	}
	return expr.Expression{Op: op, LHS: lhs, RHS: rhs}, nil
}

// targetIndex maps targets beyond int32 to -1 so Validate rejects them
// instead of letting a conversion wrap them into a valid index.
func targetIndex(n uint64) int {
	if n > math.MaxInt32 {
		return -1
	}
	return int(n)
}
