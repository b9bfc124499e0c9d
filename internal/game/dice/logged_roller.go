package dice

import (
	"math"

	"go.uber.org/zap"
)

// Roller wraps a Source and logger so every roll and probability check made
// during a run is auditable at debug level.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to logger.
//
// Precondition: src must be non-nil. A nil logger disables logging.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Roller{src: src, logger: logger}
}

// Source returns the underlying randomness source.
func (r *Roller) Source() Source { return r.src }

// Roll evaluates expr and logs the result at debug level.
//
// Precondition: expr must come from Parse.
// Postcondition: result logged; returns RollResult or error.
func (r *Roller) Roll(expr Expression) (RollResult, error) {
	result, err := Roll(expr, r.src)
	if err != nil {
		return RollResult{}, err
	}
	r.logger.Debug("dice roll",
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	)
	return result, nil
}

// RollExpr parses expr, reusing an earlier parse of the same text, and rolls
// it, logging the result.
//
// Precondition: expr must be a valid dice expression string.
// Postcondition: Returns a RollResult or a parse/roll error.
func (r *Roller) RollExpr(expr string) (RollResult, error) {
	e, err := lookup(expr)
	if err != nil {
		return RollResult{}, err
	}
	return r.Roll(e)
}

// Scaled rolls expr and multiplies the total by factor, rounding to the
// nearest integer. A negative or NaN factor yields 0.
//
// Postcondition: the underlying roll is logged like RollExpr.
func (r *Roller) Scaled(expr string, factor float64) (int, error) {
	res, err := r.RollExpr(expr)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(factor) || factor <= 0 {
		return 0, nil
	}
	return int(math.Round(float64(res.Total()) * factor)), nil
}

// Check rolls a probability check labelled label and logs the outcome.
//
// Postcondition: Returns true with probability clamp(p, 0, 1).
func (r *Roller) Check(label string, p float64) bool {
	ok := Chance(r.src, p)
	r.logger.Debug("chance check",
		zap.String("check", label),
		zap.Float64("probability", p),
		zap.Bool("success", ok),
	)
	return ok
}

// Pick returns a uniformly random index in [0, n), or -1 when n <= 0.
func (r *Roller) Pick(n int) int {
	if n <= 0 {
		return -1
	}
	return r.src.Intn(n)
}

// Spread returns base scaled by a uniform factor in [1-variance, 1+variance].
//
// Precondition: 0 <= variance < 1.
func (r *Roller) Spread(base, variance float64) float64 {
	if variance <= 0 {
		return base
	}
	return base * (1 - variance + 2*variance*Float64(r.src))
}
