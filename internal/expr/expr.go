// Package expr evaluates the two-operand expressions agents apply to the
// worry value of every item they inspect.
package expr

import (
	"fmt"
	"math/bits"
	"strconv"
)

// Operand is either the current value (Old) or a Literal. The set is closed:
// only this package can add implementations.
type Operand interface {
	resolve(old uint64) uint64
	fmt.Stringer
}

// Old stands for the value being inspected.
type Old struct{}

func (Old) resolve(old uint64) uint64 { return old }

func (Old) String() string { return "old" }

// Literal is a constant operand.
type Literal uint64

func (l Literal) resolve(uint64) uint64 { return uint64(l) }

func (l Literal) String() string { return strconv.FormatUint(uint64(l), 10) }

type Operator int

const (
	Add Operator = iota
	Multiply
)

func (o Operator) String() string {
	switch o {
	case Add:
		return "+"
	case Multiply:
		return "*"
	default:
		return fmt.Sprintf("Operator(%d)", int(o))
	}
}

// ParseOperator maps an operator symbol to its Operator.
func ParseOperator(symbol string) (Operator, error) {
	switch symbol {
	case "+":
		return Add, nil
	case "*":
		return Multiply, nil
	default:
		return 0, fmt.Errorf("unknown operator %q", symbol)
	}
}

// ParseOperand accepts the keyword "old" or a non-negative decimal literal.
func ParseOperand(token string) (Operand, error) {
	if token == "old" {
		return Old{}, nil
	}
	n, err := strconv.ParseUint(token, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("operand %q: %w", token, err)
	}
	return Literal(n), nil
}

type Expression struct {
	Op  Operator
	LHS Operand
	RHS Operand
}

func (e Expression) String() string {
	return fmt.Sprintf("%s %s %s", e.LHS, e.Op, e.RHS)
}

// Evaluate applies the expression to old. Results wrap on uint64 overflow;
// use EvaluateChecked when that matters.
func (e Expression) Evaluate(old uint64) uint64 {
	lhs, rhs := e.LHS.resolve(old), e.RHS.resolve(old)
	switch e.Op {
	case Add:
		return lhs + rhs
	case Multiply:
		return lhs * rhs
	default:
		panic(fmt.Sprintf("expr: unhandled operator %v", e.Op))
	}
}

// EvaluateChecked is Evaluate reporting false when the exact result does not
// fit in a uint64.
func (e Expression) EvaluateChecked(old uint64) (uint64, bool) {
	lhs, rhs := e.LHS.resolve(old), e.RHS.resolve(old)
	switch e.Op {
	case Add:
		sum, carry := bits.Add64(lhs, rhs, 0)
		return sum, carry == 0
	case Multiply:
		hi, lo := bits.Mul64(lhs, rhs)
		return lo, hi == 0
	default:
		panic(fmt.Sprintf("expr: unhandled operator %v", e.Op))
	}
}

// EvaluateMod returns Evaluate(old) mod modulus without ever leaving the
// range [0, modulus). modulus must be non-zero.
func (e Expression) EvaluateMod(old, modulus uint64) uint64 {
	lhs := e.LHS.resolve(old) % modulus
	rhs := e.RHS.resolve(old) % modulus
	switch e.Op {
	case Add:
		// lhs+rhs < 2*modulus; a wrapped sum is still corrected by one subtraction.
		sum, carry := bits.Add64(lhs, rhs, 0)
		if carry != 0 || sum >= modulus {
			sum -= modulus
		}
		return sum
	case Multiply:
		hi, lo := bits.Mul64(lhs, rhs)
		_, rem := bits.Div64(hi, lo, modulus)
		return rem
	default:
		panic(fmt.Sprintf("expr: unhandled operator %v", e.Op))
	}
}
