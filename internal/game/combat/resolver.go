package combat

import (
	"math"

	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Hit is one incoming instance of damage before any defensive layer.
type Hit struct {
	SourceID string
	Ability  string
	Amount   float64
	Type     stats.DamageType
	// Spell hits skip evasion, check spell block, and can be suppressed.
	Spell          bool
	Accuracy       float64
	CritChance     float64
	CritMultiplier float64
}

// HitResult is the outcome of Resolve.
type HitResult struct {
	Evaded        bool
	EvadeChance   float64
	Blocked       bool
	Suppressed    bool
	Crit          bool
	PreMitigation float64
	Mitigated     float64
	// Final is the damage after mitigation that reached energy shield and health.
	Final      float64
	Absorbed   float64
	HealthLoss float64
	Killed     bool
	Before     combatlog.ActorSnapshot
	After      combatlog.ActorSnapshot
}

// Dealt returns the damage actually removed from energy shield and health.
func (r HitResult) Dealt() float64 { return r.Absorbed + r.HealthLoss }

// Payload converts the result to its log payload.
func (r HitResult) Payload(hit Hit) combatlog.DamagePayload {
	return combatlog.DamagePayload{
		DamageType:    hit.Type,
		Spell:         hit.Spell,
		Raw:           Sanitize(hit.Amount),
		EvadeChance:   r.EvadeChance,
		Evaded:        r.Evaded,
		Blocked:       r.Blocked,
		Suppressed:    r.Suppressed,
		Crit:          r.Crit,
		PreMitigation: r.PreMitigation,
		Mitigated:     r.Mitigated,
		Absorbed:      r.Absorbed,
		HealthLoss:    r.HealthLoss,
		Final:         r.Final,
		Before:        r.Before,
		After:         r.After,
	}
}

// EvadeChance returns the chance in [0, capPct/100] that an attack with
// accuracy misses a defender with evasion.
func EvadeChance(accuracy, evasion, capPct float64) float64 {
	evasion, accuracy, capPct = Sanitize(evasion), Sanitize(accuracy), Sanitize(capPct)
	if evasion == 0 {
		return 0
	}
	limit := math.Min(capPct, 100) / 100
	if accuracy == 0 {
		return limit
	}
	hit := 1.25 * accuracy / (accuracy + math.Pow(evasion*0.2, 0.9))
	return math.Min(math.Max(1-hit, 0), limit)
}

// ArmorReduce returns physical damage after armor. Reduction is
// armor / (armor + 5·damage): strictly decreasing in armor and never total.
//
// Postcondition: 0 < result <= damage for damage > 0.
func ArmorReduce(damage, armor float64) float64 {
	damage, armor = Sanitize(damage), Sanitize(armor)
	if damage == 0 {
		return 0
	}
	if armor == 0 {
		return damage
	}
	return damage * (5 * damage) / (armor + 5*damage)
}

// ResistReduce returns damage after a resistance percentage capped at capPct.
// Negative resistance increases damage.
func ResistReduce(damage, resist, capPct float64) float64 {
	if math.IsNaN(resist) {
		resist = 0
	}
	r := math.Min(resist, capPct)
	return Sanitize(damage * (1 - r/100))
}

// Mitigate applies the armor or resistance layer and the target's
// damage-taken effects.
func Mitigate(damage float64, typ stats.DamageType, target *Actor, r Rules) float64 {
	var out float64
	switch {
	case typ == stats.Chaos:
		out = ResistReduce(damage, target.Resists.Chaos, r.ChaosResistCap)
	case typ.Elemental():
		out = ResistReduce(damage, target.Resists.For(typ), r.ElementalResistCap)
	default:
		out = ArmorReduce(damage, target.EffectiveArmor())
	}
	return Sanitize(out * condition.DamageTakenMultiplier(target.Effects))
}

// absorb draws damage from energy shield then health and reports the split.
func absorb(target *Actor, damage float64, r Rules) (absorbed, healthLoss float64, killed bool) {
	ratio := r.EnergyShieldRatio
	if ratio <= 0 {
		ratio = 1
	}
	if target.EnergyShield > 0 {
		capacity := target.EnergyShield * ratio
		absorbed = math.Min(capacity, damage)
		target.EnergyShield = Sanitize(target.EnergyShield - absorbed/ratio)
		if absorbed >= capacity {
			target.EnergyShield = 0
		}
		damage -= absorbed
	}
	if damage > 0 && !target.Dead {
		healthLoss = math.Min(damage, target.Health)
		target.Health = Sanitize(target.Health - damage)
		if target.Health == 0 {
			target.Dead = true
			target.Cast = nil
			killed = true
		}
	}
	return absorbed, healthLoss, killed
}

// Resolve runs hit through the defensive pipeline against target and
// applies the result: evade, block or spell block, suppression, crit,
// mitigation, energy shield, then health.
//
// Precondition: target must be alive; roller must be non-nil.
// Postcondition: result.Final >= 0; result.Final == 0 when evaded or fully
// blocked; target.Health >= 0; result.Killed is true iff this hit set Dead.
func Resolve(hit Hit, target *Actor, r Rules, roller *dice.Roller) HitResult {
	res := HitResult{Before: target.Snapshot()}
	dmg := Sanitize(hit.Amount)

	if !hit.Spell {
		res.EvadeChance = EvadeChance(hit.Accuracy, target.Evasion, r.EvadeCap)
		if roller.Check("evade", res.EvadeChance) {
			res.Evaded = true
			res.After = target.Snapshot()
			return res
		}
	}

	blockChance := target.BlockChance
	if hit.Spell {
		blockChance = target.SpellBlockChance
	}
	if roller.Check("block", blockChance/100) {
		res.Blocked = true
		dmg *= 1 - math.Min(math.Max(r.BlockEffectiveness, 0), 1)
	}

	if !res.Blocked {
		if hit.Spell && roller.Check("suppress", target.SuppressionChance/100) {
			res.Suppressed = true
			dmg *= 1 - math.Min(math.Max(r.SuppressionEffectiveness, 0), 1)
		}
		if !res.Suppressed && roller.Check("crit", hit.CritChance/100) {
			res.Crit = true
			dmg *= math.Max(hit.CritMultiplier, 100) / 100
		}
	}

	res.PreMitigation = Sanitize(dmg)
	res.Final = Mitigate(res.PreMitigation, hit.Type, target, r)
	res.Mitigated = Sanitize(res.PreMitigation - res.Final)
	if res.Final > 0 {
		res.Absorbed, res.HealthLoss, res.Killed = absorb(target, res.Final, r)
	}
	res.After = target.Snapshot()
	return res
}

// ApplyPeriodic applies damage-over-time to target: resistance or armor
// mitigation, then energy shield and health. Evasion, block, and crit do not apply.
func ApplyPeriodic(amount float64, typ stats.DamageType, target *Actor, r Rules) HitResult {
	res := HitResult{Before: target.Snapshot(), PreMitigation: Sanitize(amount)}
	res.Final = Mitigate(res.PreMitigation, typ, target, r)
	res.Mitigated = Sanitize(res.PreMitigation - res.Final)
	if res.Final > 0 && target.Alive() {
		res.Absorbed, res.HealthLoss, res.Killed = absorb(target, res.Final, r)
	}
	res.After = target.Snapshot()
	return res
}

// HealResult is the outcome of ApplyHeal.
type HealResult struct {
	Raw       float64
	Effective float64
	Overheal  float64
	Before    combatlog.ActorSnapshot
	After     combatlog.ActorSnapshot
}

// ApplyHeal heals a living target, scaled by its healing-received effects
// and clamped to maximum health. Dead targets are not healed.
//
// Postcondition: target.Health <= target.MaxHealth; Effective + Overheal == scaled amount.
func ApplyHeal(amount float64, target *Actor) HealResult {
	res := HealResult{Before: target.Snapshot()}
	if target.Dead {
		res.After = res.Before
		return res
	}
	scaled := Sanitize(amount * condition.HealingReceivedMultiplier(target.Effects))
	res.Raw = scaled
	missing := Sanitize(target.MaxHealth - target.Health)
	res.Effective = math.Min(scaled, missing)
	res.Overheal = scaled - res.Effective
	target.Health = math.Min(target.MaxHealth, target.Health+res.Effective)
	res.After = target.Snapshot()
	return res
}

// Revive brings a dead member back at fraction of its maximum health.
// It reports false, changing nothing, if the member is alive.
//
// Postcondition: on true, Dead is false and Health > 0.
func Revive(m *TeamMember, fraction float64) bool {
	if !m.Dead {
		return false
	}
	fraction = math.Min(math.Max(Sanitize(fraction), 0.01), 1)
	m.Dead = false
	m.Health = math.Max(m.MaxHealth*fraction, 1)
	m.EnergyShield = 0
	m.Cast = nil
	m.Effects.Clear()
	m.GCDEndTick = 0
	return true
}
