// Package sim runs troops through fixed numbers of rounds under a relief
// policy and counts how many items each agent inspects.
package sim

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"keepaway/internal/agent"
)

var (
	ErrWorryOverflow = errors.New("worry value overflows uint64")
	// ErrRunawayTurn reports an agent whose turn keeps throwing items back to
	// itself without its queue ever emptying.
	ErrRunawayTurn = errors.New("agent turn never empties its queue")
)

// maxTurnInspectionsPerItem bounds one turn at this many inspections per item
// in the troop.
const maxTurnInspectionsPerItem = 1 << 20

type Result struct {
	Policy Policy
	Rounds int
	// Modulus is the reduction modulus for ReliefModulusOnly, zero otherwise.
	Modulus     uint64
	Inspections []uint64
	// Holdings is every agent's queue after the final round.
	Holdings [][]uint64
}

type RoundSnapshot struct {
	Round int
	// AgentIDs holds the declared ordinals, indexed like Inspections.
	AgentIDs    []int
	Inspections []uint64
	Holdings    [][]uint64
}

type Option func(*runner)

func WithLogger(logger *zap.Logger) Option {
	return func(r *runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRoundHook calls fn after round 1, after every round divisible by
// every, and after the final round. Snapshots are copies.
func WithRoundHook(every int, fn func(RoundSnapshot)) Option {
	return func(r *runner) {
		r.hookEvery = every
		r.hook = fn
	}
}

type runner struct {
	policy      Policy
	troop       agent.Troop
	inspections []uint64
	modulus     uint64
	turnLimit   uint64

	logger    *zap.Logger
	hookEvery int
	hook      func(RoundSnapshot)
}

// Run simulates policy.Rounds rounds on a private copy of troop; the caller's
// troop is never modified.
func Run(troop agent.Troop, policy Policy, opts ...Option) (Result, error) {
	if err := policy.Validate(); err != nil {
		return Result{}, err
	}
	r := &runner{
		policy:      policy,
		troop:       troop.Clone(),
		inspections: make([]uint64, len(troop)),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.troop.Validate(); err != nil {
		return Result{}, err
	}
	if policy.Relief == ReliefModulusOnly {
		modulus, err := r.troop.Modulus()
		if err != nil {
			return Result{}, err
		}
		r.modulus = modulus
	}
	r.turnLimit = uint64(r.troop.ItemCount()) * maxTurnInspectionsPerItem

	r.logger.Debug("simulation started",
		zap.String("policy", policy.Name()),
		zap.Int("rounds", policy.Rounds),
		zap.Int("agents", len(r.troop)),
		zap.Int("items", r.troop.ItemCount()),
		zap.Uint64("modulus", r.modulus),
	)

	for round := 1; round <= policy.Rounds; round++ {
		if err := r.round(); err != nil {
			return Result{}, fmt.Errorf("%s round %d: %w", policy.Name(), round, err)
		}
		if r.checkpoint(round) {
			r.report(round)
		}
	}

	r.logger.Info("simulation finished",
		zap.String("policy", policy.Name()),
		zap.Int("rounds", policy.Rounds),
		zap.Uint64s("inspections", r.inspections),
	)

	return Result{
		Policy:      policy,
		Rounds:      policy.Rounds,
		Modulus:     r.modulus,
		Inspections: append([]uint64(nil), r.inspections...),
		Holdings:    r.troop.Holdings(),
	}, nil
}

// round gives every agent one turn in index order. A turn pops until the
// agent's queue is empty, so items an agent throws to itself are inspected
// again in the same turn. Items thrown to a later agent are handled in that
// agent's turn this round.
func (r *runner) round() error {
	for i := range r.troop {
		a := &r.troop[i]
		var inspected uint64
		for {
			v, ok := a.Items.Pop()
			if !ok {
				break
			}
			if inspected == r.turnLimit {
				return fmt.Errorf("agent %d after %d inspections: %w", i, inspected, ErrRunawayTurn)
			}
			inspected++

			next, err := r.relieve(i, a, v)
			if err != nil {
				return err
			}
			r.inspections[i]++

			to := a.Target(next)
			if err := r.troop.CheckTarget(i, to); err != nil {
				return err
			}
			r.troop[to].Items.Push(next)
		}
	}
	return nil
}

func (r *runner) relieve(index int, a *agent.Agent, v uint64) (uint64, error) {
	switch r.policy.Relief {
	case ReliefDivideFloor:
		w, ok := a.Operation.EvaluateChecked(v)
		if !ok {
			return 0, fmt.Errorf("agent %d: %s with old=%d: %w", index, a.Operation, v, ErrWorryOverflow)
		}
		return w / r.policy.Divisor, nil
	case ReliefModulusOnly:
		return a.Operation.EvaluateMod(v, r.modulus), nil
	default:
		return 0, fmt.Errorf("unknown relief kind %d", int(r.policy.Relief))
	}
}

func (r *runner) checkpoint(round int) bool {
	if r.hookEvery <= 0 {
		return false
	}
	return round == 1 || round%r.hookEvery == 0 || round == r.policy.Rounds
}

func (r *runner) report(round int) {
	snapshot := RoundSnapshot{
		Round:       round,
		AgentIDs:    r.troop.IDs(),
		Inspections: append([]uint64(nil), r.inspections...),
		Holdings:    r.troop.Holdings(),
	}
	if ce := r.logger.Check(zap.DebugLevel, "round checkpoint"); ce != nil {
		ce.Write(
			zap.String("policy", r.policy.Name()),
			zap.Int("round", round),
			zap.Uint64s("inspections", snapshot.Inspections),
		)
	}
	if r.hook != nil {
		r.hook(snapshot)
	}
}
