package combat

import (
	"fmt"

	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
	"github.com/cory-johannsen/dungeonrun/internal/game/enemy"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Enemy ability names as they appear in the combat log.
const (
	enemyAttack     = "attack"
	enemyShot       = "shot"
	enemyBolt       = "bolt"
	enemyNova       = "nova"
	enemyTankbuster = "crushing blow"
	igniteFraction  = 0.2
)

// actEnemy runs one enemy's turn according to its behavior once its global
// cooldown has elapsed. Enemies that are casting do nothing until the cast
// completes or is interrupted. Any action starts a new global cooldown.
func (e *Encounter) actEnemy(en *Enemy) {
	if en.Cast != nil || e.tick < en.GCDEndTick {
		return
	}
	if e.enemyTurn(en) {
		en.GCDEndTick = e.tick + e.rules.GCDTicks
	}
}

// enemyTurn reports whether en acted.
func (e *Encounter) enemyTurn(en *Enemy) bool {
	switch en.Behavior {
	case enemy.BehaviorCaster:
		if e.tryAoE(en) {
			return true
		}
		if e.tick >= en.CastReadyTick {
			if t := e.randomMember(); t != nil {
				e.startCast(en, Cast{
					Ability:       enemyBolt,
					TargetID:      t.ID,
					Interruptible: true,
					Amount:        en.Damage * en.Instance.CastDamageMultiplier,
					DamageType:    en.Instance.DamageType,
					Spell:         true,
					Effect:        igniteFor(en.Instance.DamageType),
				}, en.Instance.CastSeconds, en.Instance.CastCooldownSeconds)
				return true
			}
		}
		return false
	case enemy.BehaviorTankbuster:
		if e.tick >= en.CastReadyTick {
			if t := en.HighestThreat(e.Team); t != nil {
				e.startCast(en, Cast{
					Ability:    enemyTankbuster,
					TargetID:   t.ID,
					Amount:     en.Damage * en.Instance.CastDamageMultiplier,
					DamageType: stats.Physical,
					Effect:     condition.Weakened,
				}, en.Instance.CastSeconds, en.Instance.CastCooldownSeconds)
				return true
			}
		}
		return e.autoAttack(en, en.HighestThreat(e.Team), enemyAttack)
	case enemy.BehaviorArcher:
		return e.autoAttack(en, e.randomMember(), enemyShot)
	case enemy.BehaviorBoss:
		return e.bossTurn(en)
	default:
		return e.autoAttack(en, en.HighestThreat(e.Team), enemyAttack)
	}
}

func igniteFor(t stats.DamageType) string {
	if t == stats.Fire {
		return condition.Ignite
	}
	return ""
}

func (e *Encounter) randomMember() *TeamMember {
	living := LivingMembers(e.Team)
	i := e.env.Roller.Pick(len(living))
	if i < 0 {
		return nil
	}
	return living[i]
}

// enemyHit builds a hit from en at multiplier times its damage.
func (e *Encounter) enemyHit(en *Enemy, ability string, multiplier float64, typ stats.DamageType, spell bool) Hit {
	if !typ.Valid() {
		typ = stats.Physical
	}
	amount := en.Damage * multiplier * condition.DamageDealtMultiplier(en.Effects)
	return Hit{
		SourceID:       en.ID,
		Ability:        ability,
		Amount:         Sanitize(e.env.Roller.Spread(amount, damageVariance)),
		Type:           typ,
		Spell:          spell,
		Accuracy:       en.Accuracy,
		CritChance:     en.CritChance,
		CritMultiplier: en.CritMultiplier,
	}
}

func (e *Encounter) autoAttack(en *Enemy, target *TeamMember, ability string) bool {
	if target == nil || e.tick < en.AttackReadyTick || en.Instance == nil {
		return false
	}
	en.AttackReadyTick = e.tick + en.cooldownTicks(e.rules, en.Instance.AttackSeconds)
	res := e.damageMember(en, target, e.enemyHit(en, ability, 1, en.Instance.DamageType, false))
	if en.Instance.Type == enemy.TypeElite && ability == enemyAttack && res.Dealt() > 0 && target.Alive() {
		e.applyEffect(&target.Actor, condition.Sunder, en.ID, en.Name, 0)
	}
	return true
}

// tryAoE fires en's area attack if it has one and it is ready.
func (e *Encounter) tryAoE(en *Enemy) bool {
	inst := en.Instance
	if inst == nil || inst.AoECooldownSeconds <= 0 || e.tick < en.AoEReadyTick {
		return false
	}
	en.AoEReadyTick = e.tick + en.cooldownTicks(e.rules, inst.AoECooldownSeconds)
	spell := inst.DamageType != stats.Physical
	e.logAbility(en.Name, "", enemyNova, fmt.Sprintf("%s unleashes %s", en.Name, enemyNova))
	for _, m := range LivingMembers(e.Team) {
		e.damageMember(en, m, e.enemyHit(en, enemyNova, inst.AoEDamageMultiplier, inst.DamageType, spell))
	}
	return true
}

// startCast opens a cast window of castSeconds and schedules the next cast.
func (e *Encounter) startCast(en *Enemy, c Cast, castSeconds, cooldownSeconds float64) {
	castTicks := max(1, en.cooldownTicks(e.rules, castSeconds))
	c.StartTick = e.tick
	c.EndTick = e.tick + castTicks
	en.Cast = &c
	en.CastReadyTick = c.EndTick + en.cooldownTicks(e.rules, cooldownSeconds)
	target := ""
	if m := findMember(e.Team, c.TargetID); m != nil {
		target = m.Name
	}
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  en.Name,
		Target:  target,
		Ability: c.Ability,
		Message: fmt.Sprintf("%s begins casting %s", en.Name, c.Ability),
		Payload: combatlog.AbilityPayload{Event: combatlog.AbilityCastStart, CastEndTick: c.EndTick},
	})
}

// completeCasts resolves every cast whose window has closed.
func (e *Encounter) completeCasts() {
	for _, en := range e.Enemies {
		if !en.Alive() || en.Cast == nil || e.tick < en.Cast.EndTick {
			continue
		}
		c := *en.Cast
		en.Cast = nil
		var targets []*TeamMember
		if c.AoE {
			targets = LivingMembers(e.Team)
		} else if m := findMember(e.Team, c.TargetID); m != nil && m.Alive() {
			targets = []*TeamMember{m}
		}
		e.env.Log.Log(combatlog.Entry{
			Tick:    e.tick,
			Source:  en.Name,
			Ability: c.Ability,
			Message: fmt.Sprintf("%s finishes casting %s", en.Name, c.Ability),
			Payload: combatlog.AbilityPayload{Event: combatlog.AbilityCastEnd},
		})
		for _, m := range targets {
			hit := Hit{
				SourceID:       en.ID,
				Ability:        c.Ability,
				Amount:         Sanitize(c.Amount * condition.DamageDealtMultiplier(en.Effects)),
				Type:           c.DamageType,
				Spell:          c.Spell,
				Accuracy:       en.Accuracy,
				CritChance:     en.CritChance,
				CritMultiplier: en.CritMultiplier,
			}
			if !hit.Type.Valid() {
				hit.Type = stats.Physical
			}
			res := e.damageMember(en, m, hit)
			if c.Effect != "" && res.Dealt() > 0 && m.Alive() {
				magnitude := 0.0
				if c.Effect == condition.Ignite {
					magnitude = res.Dealt() * igniteFraction
				}
				e.applyEffect(&m.Actor, c.Effect, en.ID, en.Name, magnitude)
			}
		}
	}
}

// bossTurn uses the first unlocked, ready ability, then the area attack,
// then a melee attack, and reports whether the boss acted.
func (e *Encounter) bossTurn(en *Enemy) bool {
	for _, a := range en.Abilities {
		if !en.unlocked[a.Name] || e.tick < en.abilityReady[a.Name] {
			continue
		}
		if e.useBossAbility(en, a) {
			en.abilityReady[a.Name] = e.tick + en.cooldownTicks(e.rules, a.CooldownSeconds)
			return true
		}
	}
	if e.tryAoE(en) {
		return true
	}
	return e.autoAttack(en, en.HighestThreat(e.Team), enemyAttack)
}

func (e *Encounter) useBossAbility(en *Enemy, a BossAbility) bool {
	typ := a.DamageType
	if !typ.Valid() {
		typ = stats.Physical
	}
	spell := typ != stats.Physical
	mult := a.DamageMultiplier
	if a.Target == TargetSelf {
		e.logAbility(en.Name, en.Name, a.Name, fmt.Sprintf("%s uses %s", en.Name, a.Name))
		if a.Effect != "" {
			e.applyEffect(&en.Actor, a.Effect, en.ID, en.Name, 0)
		}
		return true
	}
	var targets []*TeamMember
	switch a.Target {
	case TargetTank:
		if t := en.HighestThreat(e.Team); t != nil {
			targets = append(targets, t)
		}
	case TargetRandom:
		if t := e.randomMember(); t != nil {
			targets = append(targets, t)
		}
	case TargetAll:
		targets = LivingMembers(e.Team)
	}
	if len(targets) == 0 {
		return false
	}
	if a.CastSeconds > 0 {
		c := Cast{
			Ability:       a.Name,
			Interruptible: a.Interruptible,
			Amount:        e.env.Roller.Spread(en.Damage*mult, damageVariance),
			DamageType:    typ,
			Spell:         spell,
			Effect:        a.Effect,
			AoE:           a.Target == TargetAll,
		}
		if !c.AoE {
			c.TargetID = targets[0].ID
		}
		castReady := en.CastReadyTick
		e.startCast(en, c, a.CastSeconds, 0)
		en.CastReadyTick = castReady
		return true
	}
	e.logAbility(en.Name, "", a.Name, fmt.Sprintf("%s uses %s", en.Name, a.Name))
	for _, m := range targets {
		res := e.damageMember(en, m, e.enemyHit(en, a.Name, mult, typ, spell))
		if a.Effect != "" && res.Dealt() > 0 && m.Alive() {
			e.applyEffect(&m.Actor, a.Effect, en.ID, en.Name, 0)
		}
	}
	return true
}
