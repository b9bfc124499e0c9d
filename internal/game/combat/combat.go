// Package combat implements the tick-based combat engine: actor state, the
// damage and healing pipelines, role and behavior policies, boss phases,
// resurrection, and trickle-in of withheld enemies.
package combat

import (
	"math"

	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
)

// Outcome is the state of an encounter after a step.
type Outcome int

const (
	Ongoing Outcome = iota
	Cleared
	Wiped
)

// String returns a human-readable outcome label.
func (o Outcome) String() string {
	switch o {
	case Ongoing:
		return "ongoing"
	case Cleared:
		return "cleared"
	case Wiped:
		return "wiped"
	default:
		return "unknown"
	}
}

// TrickleMode selects how withheld enemy groups enter combat.
type TrickleMode string

const (
	TrickleNone   TrickleMode = "none"
	TrickleDelay  TrickleMode = "delay"
	TrickleHealth TrickleMode = "health"
)

// Rules holds every tunable the engine consults during resolution.
type Rules struct {
	TicksPerSecond           int
	BlockEffectiveness       float64
	SuppressionEffectiveness float64
	EnergyShieldRatio        float64
	ResurrectHealthFraction  float64
	GCDTicks                 int
	ElementalResistCap       float64
	ChaosResistCap           float64
	EvadeCap                 float64
	TankThreatMultiplier     float64
	// PlayerDamageFactor scales every team hit; it carries the map-affix reduction.
	PlayerDamageFactor float64
	TrickleMode        TrickleMode
	TrickleDelayTicks  int
	// TrickleHealthThreshold is the primary-group health fraction that releases the next group.
	TrickleHealthThreshold float64
}

// RulesFromConfig derives engine rules from configuration and the run's affixes.
//
// Precondition: cfg passed Validate.
func RulesFromConfig(cfg config.Config, affixes dungeon.AffixEffects) Rules {
	tps := cfg.Simulation.TicksPerSecond
	r := Rules{
		TicksPerSecond:           tps,
		BlockEffectiveness:       cfg.Balance.BlockEffectiveness,
		SuppressionEffectiveness: cfg.Balance.SuppressionEffectiveness,
		EnergyShieldRatio:        cfg.Balance.EnergyShieldRatio,
		ResurrectHealthFraction:  cfg.Balance.ResurrectHealthFraction,
		ElementalResistCap:       cfg.Balance.ElementalResistCap,
		ChaosResistCap:           cfg.Balance.ChaosResistCap,
		EvadeCap:                 cfg.Balance.EvadeCap,
		TankThreatMultiplier:     cfg.Balance.TankThreatMultiplier,
		PlayerDamageFactor:       affixes.PlayerDamageFactor(),
		TrickleMode:              TrickleMode(cfg.Trickle.Mode),
		TrickleHealthThreshold:   cfg.Trickle.HealthThreshold,
	}
	r.GCDTicks = r.Ticks(cfg.Balance.GCDSeconds)
	r.TrickleDelayTicks = r.Ticks(cfg.Trickle.DelaySeconds)
	return r
}

// DefaultRules returns rules derived from config.Default with no affixes.
func DefaultRules() Rules {
	return RulesFromConfig(config.Default(), dungeon.AffixEffects{})
}

// Ticks converts seconds to a tick count, rounding and never returning less
// than one tick for a positive duration.
func (r Rules) Ticks(seconds float64) int {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return max(1, int(math.Round(seconds*float64(r.TicksPerSecond))))
}

// Seconds converts a tick count to seconds.
func (r Rules) Seconds(ticks int) float64 {
	return float64(ticks) / float64(r.TicksPerSecond)
}

// Sanitize maps NaN, infinities, and negative values to 0.
//
// Postcondition: result is finite and >= 0.
func Sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}
