// Package agent holds the agents of a simulation and the arena they live in.
//
// Agents never reference one another directly. Throw targets are indices into
// the owning Troop, so an agent can push into any queue (its own included)
// while its own queue is being drained.
package agent

import (
	"fmt"
	"math/bits"

	"keepaway/internal/expr"
)

type Agent struct {
	// ID is the ordinal from the agent's declaration line. It is kept for
	// reporting only; routing always uses the index within the Troop.
	ID        int
	Items     Queue
	Operation expr.Expression
	Divisor   uint64
	IfTrue    int
	IfFalse   int
}

// Target returns the index an item with transformed value v is thrown to.
func (a *Agent) Target(v uint64) int {
	if v%a.Divisor == 0 {
		return a.IfTrue
	}
	return a.IfFalse
}

func (a *Agent) clone() Agent {
	c := *a
	c.Items = a.Items.clone()
	return c
}

// Troop is the index-addressable collection of every agent in a simulation.
type Troop []Agent

// Clone returns a deep copy whose queues share nothing with t.
func (t Troop) Clone() Troop {
	if t == nil {
		return nil
	}
	out := make(Troop, len(t))
	for i := range t {
		out[i] = t[i].clone()
	}
	return out
}

// Validate reports the first agent with a zero divisor or a throw target
// outside the troop.
func (t Troop) Validate() error {
	if len(t) == 0 {
		return &ConfigError{Agent: -1, Msg: "troop has no agents"}
	}
	for i := range t {
		a := &t[i]
		if a.Divisor == 0 {
			return &ConfigError{Agent: i, Msg: "divisor must be positive"}
		}
		if err := t.CheckTarget(i, a.IfTrue); err != nil {
			return err
		}
		if err := t.CheckTarget(i, a.IfFalse); err != nil {
			return err
		}
	}
	return nil
}

// CheckTarget verifies that agent from may throw to index to.
func (t Troop) CheckTarget(from, to int) error {
	if to < 0 || to >= len(t) {
		return &ConfigError{
			Agent: from,
			Msg:   fmt.Sprintf("throw target %d out of range [0, %d)", to, len(t)),
		}
	}
	return nil
}

// Modulus returns the product of every divisor. Reducing worry values modulo
// this product preserves divisibility by each individual divisor.
func (t Troop) Modulus() (uint64, error) {
	modulus := uint64(1)
	for i := range t {
		if t[i].Divisor == 0 {
			return 0, &ConfigError{Agent: i, Msg: "divisor must be positive"}
		}
		hi, lo := bits.Mul64(modulus, t[i].Divisor)
		if hi != 0 {
			return 0, &ConfigError{Agent: i, Msg: "product of divisors overflows uint64"}
		}
		modulus = lo
	}
	return modulus, nil
}

// ItemCount returns the number of items currently held across the troop.
func (t Troop) ItemCount() int {
	n := 0
	for i := range t {
		n += t[i].Items.Len()
	}
	return n
}

// IDs returns every agent's declared ordinal, indexed like the troop.
func (t Troop) IDs() []int {
	out := make([]int, len(t))
	for i := range t {
		out[i] = t[i].ID
	}
	return out
}

// Holdings returns a copy of every agent's queue, indexed like the troop.
func (t Troop) Holdings() [][]uint64 {
	out := make([][]uint64, len(t))
	for i := range t {
		out[i] = t[i].Items.Values()
	}
	return out
}
