package combat

import (
	"fmt"

	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Role policy thresholds.
const (
	fortifyBelow     = 0.5
	healBelow        = 0.95
	emergencyBelow   = 0.5
	healPowerScale   = 3.0
	renewPowerScale  = 0.5
	healThreatFactor = 0.5
	damageVariance   = 0.1
)

// actMember runs one member's turn: an off-GCD interrupt, then a requested
// ability or the role policy if the global cooldown has elapsed.
func (e *Encounter) actMember(m *TeamMember) {
	if m.HasAbility(AbilityInterrupt) && m.Cooldowns.Ready(AbilityInterrupt, e.tick) {
		if target := e.interruptTarget(); target != nil {
			e.interrupt(m, target)
		}
	}
	if e.tick < m.GCDEndTick {
		return
	}
	if id, ok := e.forced[m.ID]; ok {
		delete(e.forced, m.ID)
		if e.useForced(m, id) {
			m.GCDEndTick = e.tick + e.rules.GCDTicks
			return
		}
	}
	var acted bool
	switch m.Role {
	case stats.RoleTank:
		acted = e.tankTurn(m)
	case stats.RoleHealer:
		acted = e.healerTurn(m)
	default:
		acted = e.attackLowest(m)
	}
	if acted {
		m.GCDEndTick = e.tick + e.rules.GCDTicks
	}
}

func (e *Encounter) useForced(m *TeamMember, id string) bool {
	if !m.HasAbility(id) {
		e.env.Log.System(e.tick, "warn", fmt.Sprintf("%s does not know %q", m.Name, id), nil)
		return false
	}
	if !m.Cooldowns.Ready(id, e.tick) {
		e.env.Log.System(e.tick, "info", fmt.Sprintf("%s: %s is on cooldown", m.Name, id), nil)
		return false
	}
	switch id {
	case AbilityAttack:
		return e.attackLowest(m)
	case AbilityHeal:
		if t := LowestHealthAlly(e.Team); t != nil {
			e.heal(m, t)
			return true
		}
	case AbilityRenew:
		if t := LowestHealthAlly(e.Team); t != nil {
			e.renew(m, t)
			return true
		}
	case AbilityTaunt:
		if t := e.tauntTarget(m); t != nil {
			e.taunt(m, t)
			return true
		}
		if t := LowestHealthEnemy(e.Enemies); t != nil {
			e.taunt(m, t)
			return true
		}
	case AbilityFortify:
		e.selfBuff(m, AbilityFortify, condition.Fortify)
		return true
	case AbilityInterrupt:
		if t := e.interruptTarget(); t != nil {
			e.interrupt(m, t)
			return true
		}
	case AbilityRally:
		e.rally(m)
		return true
	}
	return false
}

func (e *Encounter) tankTurn(m *TeamMember) bool {
	if m.HealthFraction() < fortifyBelow && m.Cooldowns.Ready(AbilityFortify, e.tick) && !m.Effects.Has(condition.Fortify) {
		e.selfBuff(m, AbilityFortify, condition.Fortify)
		return true
	}
	if m.Cooldowns.Ready(AbilityTaunt, e.tick) {
		if t := e.tauntTarget(m); t != nil {
			e.taunt(m, t)
			return true
		}
	}
	target := e.tankTarget(m)
	if target == nil {
		return false
	}
	e.attack(m, target)
	return true
}

func (e *Encounter) healerTurn(m *TeamMember) bool {
	t := LowestHealthAlly(e.Team)
	if t == nil {
		return false
	}
	if t.HealthFraction() < healBelow {
		if t.HealthFraction() < emergencyBelow && m.HasAbility(AbilityRenew) &&
			m.Cooldowns.Ready(AbilityRenew, e.tick) && !t.Effects.Has(condition.Renew) {
			e.renew(m, t)
		}
		e.heal(m, t)
		return true
	}
	return e.attackLowest(m)
}

// tauntTarget returns the first living enemy whose top threat is not m.
func (e *Encounter) tauntTarget(m *TeamMember) *Enemy {
	for _, en := range e.Enemies {
		if !en.Alive() {
			continue
		}
		if top := en.HighestThreat(e.Team); top != nil && top.ID != m.ID {
			return en
		}
	}
	return nil
}

// tankTarget prefers the enemy where m's threat lead is smallest.
func (e *Encounter) tankTarget(m *TeamMember) *Enemy {
	var best *Enemy
	bestThreat := 0.0
	for _, en := range e.Enemies {
		if !en.Alive() {
			continue
		}
		if th := en.Threat(m.ID); best == nil || th < bestThreat {
			best, bestThreat = en, th
		}
	}
	return best
}

func (e *Encounter) attackLowest(m *TeamMember) bool {
	target := LowestHealthEnemy(e.Enemies)
	if target == nil {
		return false
	}
	e.attack(m, target)
	return true
}

// outgoing returns m's damage for one action after effects and affixes.
func (e *Encounter) outgoing(m *TeamMember, scale float64) float64 {
	amount := m.Damage * scale * condition.DamageDealtMultiplier(m.Effects) * e.rules.PlayerDamageFactor
	return Sanitize(e.env.Roller.Spread(amount, damageVariance))
}

func (e *Encounter) attack(m *TeamMember, target *Enemy) {
	hit := Hit{
		SourceID:       m.ID,
		Ability:        AbilityAttack,
		Amount:         e.outgoing(m, 1),
		Type:           stats.Physical,
		Accuracy:       m.Accuracy,
		CritChance:     m.CritChance,
		CritMultiplier: m.CritMultiplier,
	}
	if m.Role == stats.RoleHealer {
		hit.Type = stats.Lightning
		hit.Spell = true
	}
	e.damageEnemy(m, target, hit)
}

func (e *Encounter) heal(m *TeamMember, target *TeamMember) {
	power := m.HealingPower
	if power <= 0 {
		power = m.Damage
	}
	amount := e.env.Roller.Spread(power*healPowerScale, damageVariance)
	hr := ApplyHeal(amount, &target.Actor)
	m.TotalHealing += hr.Effective
	for _, en := range LivingEnemies(e.Enemies) {
		en.AddThreat(m.ID, hr.Effective*healThreatFactor)
	}
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  m.Name,
		Target:  target.Name,
		Value:   combatlog.Val(hr.Effective),
		Ability: AbilityHeal,
		Message: fmt.Sprintf("%s heals %s for %.0f", m.Name, target.Name, hr.Effective),
		Payload: combatlog.HealPayload{Raw: hr.Raw, Effective: hr.Effective, Overheal: hr.Overheal, Before: hr.Before, After: hr.After},
	})
}

func (e *Encounter) renew(m *TeamMember, target *TeamMember) {
	e.startCooldown(m, AbilityRenew)
	e.applyEffect(&target.Actor, condition.Renew, m.ID, m.Name, m.HealingPower*renewPowerScale)
}

func (e *Encounter) taunt(m *TeamMember, target *Enemy) {
	e.startCooldown(m, AbilityTaunt)
	target.Taunt(m.ID)
	e.logAbility(m.Name, target.Name, AbilityTaunt, fmt.Sprintf("%s taunts %s", m.Name, target.Name))
}

func (e *Encounter) selfBuff(m *TeamMember, ability, effect string) {
	e.startCooldown(m, ability)
	e.logAbility(m.Name, m.Name, ability, fmt.Sprintf("%s uses %s", m.Name, ability))
	e.applyEffect(&m.Actor, effect, m.ID, m.Name, 0)
}

func (e *Encounter) rally(m *TeamMember) {
	e.startCooldown(m, AbilityRally)
	e.logAbility(m.Name, "", AbilityRally, fmt.Sprintf("%s rallies the team", m.Name))
	for _, ally := range LivingMembers(e.Team) {
		e.applyEffect(&ally.Actor, condition.Rally, m.ID, m.Name, 0)
	}
}

// interruptTarget returns the first living enemy with an interruptible cast.
func (e *Encounter) interruptTarget() *Enemy {
	for _, en := range e.Enemies {
		if en.Alive() && en.Cast != nil && en.Cast.Interruptible {
			return en
		}
	}
	return nil
}

func (e *Encounter) interrupt(m *TeamMember, target *Enemy) {
	e.startCooldown(m, AbilityInterrupt)
	ability := target.Cast.Ability
	target.Cast = nil
	if target.Instance != nil {
		target.CastReadyTick = e.tick + target.cooldownTicks(e.rules, target.Instance.CastCooldownSeconds)
	}
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  m.Name,
		Target:  target.Name,
		Ability: ability,
		Message: fmt.Sprintf("%s interrupts %s's %s", m.Name, target.Name, ability),
		Payload: combatlog.AbilityPayload{Event: combatlog.AbilityInterrupted},
	})
}

func (e *Encounter) startCooldown(m *TeamMember, ability string) {
	if secs, ok := abilityCooldownSeconds[ability]; ok {
		m.Cooldowns.Start(ability, e.tick, e.rules.Ticks(secs))
	}
}

func (e *Encounter) logAbility(source, target, ability, msg string) {
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  source,
		Target:  target,
		Ability: ability,
		Message: msg,
		Payload: combatlog.AbilityPayload{Event: combatlog.AbilityUsed},
	})
}
