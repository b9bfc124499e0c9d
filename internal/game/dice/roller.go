package dice

import (
	"fmt"
	"slices"
	"sync"
)

// parsed caches expressions by their source text.
var parsed sync.Map // string -> Expression

// Roll evaluates an Expression using the given Source and returns a RollResult.
//
// Precondition: expr must come from Parse; src must be non-nil.
// Postcondition: expr.Min() <= result.Total() <= expr.Max(); only the kept
// dice appear in result.Dice, highest first.
func Roll(expr Expression, src Source) (RollResult, error) {
	if src == nil {
		return RollResult{}, fmt.Errorf("dice: rolling %q: nil source", expr.Raw)
	}
	rolled := make([]int, expr.Count)
	for i := range rolled {
		rolled[i] = src.Intn(expr.Sides) + 1
	}
	if expr.KeepHighest > 0 && expr.KeepHighest < len(rolled) {
		slices.Sort(rolled)
		slices.Reverse(rolled)
		rolled = rolled[:expr.KeepHighest]
	}
	return RollResult{Expression: expr.Raw, Dice: rolled, Modifier: expr.Modifier}, nil
}

// lookup parses expr, reusing an earlier parse of the same text.
func lookup(expr string) (Expression, error) {
	if e, ok := parsed.Load(expr); ok {
		return e.(Expression), nil
	}
	e, err := Parse(expr)
	if err != nil {
		return Expression{}, err
	}
	parsed.Store(expr, e)
	return e, nil
}
