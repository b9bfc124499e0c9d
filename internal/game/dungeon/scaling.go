package dungeon

import (
	"errors"
	"math"
)

// MaxKeyLevel is the highest key level a run may start at. Scaling is
// clamped there so multipliers stay finite.
const MaxKeyLevel = 1000

// ErrKeyLevelTooHigh is returned for a key level above MaxKeyLevel.
var ErrKeyLevelTooHigh = errors.New("key level above maximum")

// KeyScaling holds the multipliers derived from a key level.
type KeyScaling struct {
	HealthMultiplier float64 `json:"health_multiplier"`
	DamageMultiplier float64 `json:"damage_multiplier"`
	RewardMultiplier float64 `json:"reward_multiplier"`
}

// ScaleForKey returns the scaling for a key level. Health and damage compound
// 8% per level and gain a further 10% per level above 10; rewards grow 10%
// per level. Levels are clamped to [1, MaxKeyLevel].
//
// Postcondition: every multiplier is finite, >= 1, and strictly increasing in
// level up to MaxKeyLevel.
func ScaleForKey(level int) KeyScaling {
	l := min(max(level, 1), MaxKeyLevel)
	compound := math.Pow(1.08, float64(l-1))
	bonus := 1 + 0.1*float64(max(l-10, 0))
	m := compound * bonus
	return KeyScaling{
		HealthMultiplier: m,
		DamageMultiplier: m,
		RewardMultiplier: 1 + 0.1*float64(l-1),
	}
}

// AffixEffects is the aggregated effect of every map affix on a run. All
// values are percentages.
type AffixEffects struct {
	EnemyDamageIncrease   float64 `yaml:"enemy_damage_increase" json:"enemy_damage_increase"`
	EnemyHealthIncrease   float64 `yaml:"enemy_health_increase" json:"enemy_health_increase"`
	PlayerDamageReduction float64 `yaml:"player_damage_reduction" json:"player_damage_reduction"`
	EnemySpeed            float64 `yaml:"enemy_speed" json:"enemy_speed"`
}

// Add returns the sum of a and b.
func (a AffixEffects) Add(b AffixEffects) AffixEffects {
	return AffixEffects{
		EnemyDamageIncrease:   a.EnemyDamageIncrease + b.EnemyDamageIncrease,
		EnemyHealthIncrease:   a.EnemyHealthIncrease + b.EnemyHealthIncrease,
		PlayerDamageReduction: a.PlayerDamageReduction + b.PlayerDamageReduction,
		EnemySpeed:            a.EnemySpeed + b.EnemySpeed,
	}
}

// EnemyHealthFactor returns the multiplier applied to enemy health.
func (a AffixEffects) EnemyHealthFactor() float64 {
	return math.Max(0, 1+a.EnemyHealthIncrease/100)
}

// EnemyDamageFactor returns the multiplier applied to enemy damage.
func (a AffixEffects) EnemyDamageFactor() float64 {
	return math.Max(0, 1+a.EnemyDamageIncrease/100)
}

// PlayerDamageFactor returns the multiplier applied to team damage.
func (a AffixEffects) PlayerDamageFactor() float64 {
	return math.Max(0, 1-a.PlayerDamageReduction/100)
}

// SpeedFactor returns the rate at which enemy cooldowns elapse. Cooldown
// durations are divided by it.
func (a AffixEffects) SpeedFactor() float64 {
	return math.Max(0.1, 1+a.EnemySpeed/100)
}

// Affix is one named map modifier.
type Affix struct {
	ID      string       `yaml:"id"`
	Name    string       `yaml:"name"`
	Effects AffixEffects `yaml:"effects"`
}

// Aggregate sums the effects of every affix.
func Aggregate(affixes []Affix) AffixEffects {
	var out AffixEffects
	for _, a := range affixes {
		out = out.Add(a.Effects)
	}
	return out
}
