package sim

import (
	"fmt"
	"strings"
)

// ReliefKind selects how a worry value is bounded after an agent's
// operation has been applied.
type ReliefKind int

const (
	// ReliefDivideFloor floor-divides every transformed value by Policy.Divisor.
	ReliefDivideFloor ReliefKind = iota
	// ReliefModulusOnly reduces every transformed value modulo the product of
	// all agent divisors, leaving divisibility tests unchanged.
	ReliefModulusOnly
)

func (k ReliefKind) String() string {
	switch k {
	case ReliefDivideFloor:
		return "divide_floor"
	case ReliefModulusOnly:
		return "modulus_only"
	default:
		return fmt.Sprintf("ReliefKind(%d)", int(k))
	}
}

type Policy struct {
	Relief ReliefKind
	Rounds int
	// Divisor is used by ReliefDivideFloor only.
	Divisor uint64
}

var (
	DivideFloor3 = Policy{Relief: ReliefDivideFloor, Rounds: 20, Divisor: 3}
	ModulusOnly  = Policy{Relief: ReliefModulusOnly, Rounds: 10000}
)

func (p Policy) Name() string {
	return p.Relief.String()
}

func (p Policy) Validate() error {
	if p.Rounds <= 0 {
		return fmt.Errorf("%s: rounds must be > 0, got %d", p.Name(), p.Rounds)
	}
	switch p.Relief {
	case ReliefDivideFloor:
		if p.Divisor == 0 {
			return fmt.Errorf("%s: divisor must be > 0", p.Name())
		}
	case ReliefModulusOnly:
	default:
		return fmt.Errorf("unknown relief kind %d", int(p.Relief))
	}
	return nil
}

// PolicyByName resolves a canonical policy from a user-facing name.
func PolicyByName(name string) (Policy, error) {
	switch NormalizePolicyName(name) {
	case ReliefDivideFloor.String():
		return DivideFloor3, nil
	case ReliefModulusOnly.String():
		return ModulusOnly, nil
	default:
		return Policy{}, fmt.Errorf("unknown relief policy: %q", name)
	}
}

// NormalizePolicyName canonicalizes policy names and their aliases.
func NormalizePolicyName(name string) string {
	normalized := strings.TrimSpace(strings.ToLower(name))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.Trim(normalized, "_")
	if normalized == "" {
		return ""
	}

	compact := strings.ReplaceAll(normalized, "_", "")
	switch compact {
	case "dividefloor", "dividefloor3", "divide", "floor", "a", "part1", "1":
		return ReliefDivideFloor.String()
	case "modulusonly", "modulus", "mod", "b", "part2", "2":
		return ReliefModulusOnly.String()
	default:
		return normalized
	}
}
