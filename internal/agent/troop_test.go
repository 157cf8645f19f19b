package agent

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"keepaway/internal/expr"
)

func sampleTroop() Troop {
	return Troop{
		{ID: 0, Items: NewQueue(79, 98), Operation: expr.Expression{Op: expr.Multiply, LHS: expr.Old{}, RHS: expr.Literal(19)}, Divisor: 23, IfTrue: 2, IfFalse: 3},
		{ID: 1, Items: NewQueue(54, 65, 75, 74), Operation: expr.Expression{Op: expr.Add, LHS: expr.Old{}, RHS: expr.Literal(6)}, Divisor: 19, IfTrue: 2, IfFalse: 0},
		{ID: 2, Items: NewQueue(79, 60, 97), Operation: expr.Expression{Op: expr.Multiply, LHS: expr.Old{}, RHS: expr.Old{}}, Divisor: 13, IfTrue: 1, IfFalse: 3},
		{ID: 3, Items: NewQueue(74), Operation: expr.Expression{Op: expr.Add, LHS: expr.Old{}, RHS: expr.Literal(3)}, Divisor: 17, IfTrue: 0, IfFalse: 1},
	}
}

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(1, 2)
	q.Push(3)
	var got []uint64
	for {
		v, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, v)
		if v == 1 {
			q.Push(4)
		}
	}
	if diff := cmp.Diff([]uint64{1, 2, 3, 4}, got); diff != "" {
		t.Fatalf("pop order mismatch (-want +got):\n%s", diff)
	}
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, len=%d", q.Len())
	}
	if _, ok := q.Pop(); ok {
		t.Fatal("expected pop on empty queue to fail")
	}
}

func TestQueueZeroValue(t *testing.T) {
	var q Queue
	if q.Len() != 0 {
		t.Fatalf("zero queue len=%d", q.Len())
	}
	q.Push(9)
	if v, ok := q.Pop(); !ok || v != 9 {
		t.Fatalf("pop=%d ok=%t", v, ok)
	}
}

func TestTroopCloneIsDeep(t *testing.T) {
	original := sampleTroop()
	clone := original.Clone()

	clone[0].Items.Push(1000)
	if _, ok := clone[1].Items.Pop(); !ok {
		t.Fatal("expected clone queue to hold items")
	}

	if diff := cmp.Diff([][]uint64{{79, 98}, {54, 65, 75, 74}, {79, 60, 97}, {74}}, original.Holdings()); diff != "" {
		t.Fatalf("original mutated through clone (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]uint64{{79, 98, 1000}, {65, 75, 74}, {79, 60, 97}, {74}}, clone.Holdings()); diff != "" {
		t.Fatalf("unexpected clone holdings (-want +got):\n%s", diff)
	}
}

func TestTroopValidate(t *testing.T) {
	if err := sampleTroop().Validate(); err != nil {
		t.Fatalf("validate sample: %v", err)
	}

	cases := map[string]func(Troop){
		"true target past end":  func(tr Troop) { tr[1].IfTrue = 4 },
		"false target negative": func(tr Troop) { tr[3].IfFalse = -1 },
		"zero divisor":          func(tr Troop) { tr[2].Divisor = 0 },
	}
	for name, mutate := range cases {
		troop := sampleTroop()
		mutate(troop)
		err := troop.Validate()
		var cfgErr *ConfigError
		if !errors.As(err, &cfgErr) {
			t.Fatalf("%s: expected ConfigError, got %v", name, err)
		}
		if !errors.Is(err, ErrConfig) {
			t.Fatalf("%s: expected errors.Is(err, ErrConfig)", name)
		}
	}

	if err := (Troop{}).Validate(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected empty troop to be rejected, got %v", err)
	}
}

func TestTroopModulus(t *testing.T) {
	m, err := sampleTroop().Modulus()
	if err != nil {
		t.Fatalf("modulus: %v", err)
	}
	if m != 23*19*13*17 {
		t.Fatalf("modulus=%d want=%d", m, 23*19*13*17)
	}

	huge := Troop{{Divisor: 1 << 40}, {Divisor: 1 << 30}}
	if _, err := huge.Modulus(); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected overflow ConfigError, got %v", err)
	}
}

func TestAgentTarget(t *testing.T) {
	a := sampleTroop()[0]
	if got := a.Target(23 * 7); got != a.IfTrue {
		t.Fatalf("divisible value routed to %d want %d", got, a.IfTrue)
	}
	if got := a.Target(23*7 + 1); got != a.IfFalse {
		t.Fatalf("non-divisible value routed to %d want %d", got, a.IfFalse)
	}
}
