// Package dice provides the injectable randomness abstraction used by the
// combat engine, the enemy factory, and loot generation.
package dice

import (
	"fmt"
	"math"
)

// RollResult holds the full audit trail for a single dice roll evaluation.
//
// Postcondition: Total() == sum(Dice) + Modifier.
type RollResult struct {
	Expression string // original expression string, e.g. "2d6+3"
	Dice       []int  // individual die results before modifier
	Modifier   int    // flat modifier (may be negative)
}

// Total returns the sum of all die results plus the modifier.
//
// Postcondition: return value == sum(r.Dice) + r.Modifier.
func (r RollResult) Total() int {
	total := r.Modifier
	for _, d := range r.Dice {
		total += d
	}
	return total
}

// String returns a human-readable audit string in the format:
//
//	"2d6+3 → [4 5] +3 = 12"
//
// Precondition: r.Expression is non-empty.
func (r RollResult) String() string {
	if r.Expression == "" {
		panic("dice: RollResult.String() precondition violated: Expression must be non-empty")
	}
	return fmt.Sprintf("%s → %v %+d = %d", r.Expression, r.Dice, r.Modifier, r.Total())
}

// Source is the randomness provider for every probabilistic decision in a run.
//
// Implementations MUST be safe for concurrent use.
type Source interface {
	// Intn returns a non-negative random int in [0, n).
	//
	// Precondition: n > 0.
	Intn(n int) int
}

// floatResolution is the number of discrete steps used to derive a float from Intn.
const floatResolution = 1 << 30

// Float64 draws a value in [0, 1) from src.
//
// Precondition: src must be non-nil.
// Postcondition: 0 <= result < 1.
func Float64(src Source) float64 {
	return float64(src.Intn(floatResolution)) / floatResolution
}

// Chance reports whether an event with probability p occurs.
// p <= 0 never occurs and p >= 1 always occurs without consuming randomness.
//
// Precondition: src must be non-nil.
func Chance(src Source, p float64) bool {
	switch {
	case p <= 0 || math.IsNaN(p):
		return false
	case p >= 1:
		return true
	default:
		return Float64(src) < p
	}
}
