package combat

import (
	"fmt"

	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Step advances the encounter by one tick.
//
// Precondition: tick is greater than the previous step's tick.
// Postcondition: the returned Outcome equals Outcome() after the step.
func (e *Encounter) Step(tick int, req Requests) StepResult {
	e.tick = tick
	res := StepResult{}
	e.cur = &res
	defer func() { e.cur = nil }()

	for _, id := range req.Resurrect {
		e.resurrect(id)
	}
	for _, ar := range req.Abilities {
		e.forced[ar.MemberID] = ar.AbilityID
	}

	e.pruneEffects()
	if elapsed := tick - e.startTick; elapsed > 0 && elapsed%e.rules.TicksPerSecond == 0 {
		e.tickPeriodic()
	}
	e.releaseTrickle()
	e.completeCasts()

	for _, m := range e.Team {
		if e.Outcome() != Ongoing {
			break
		}
		if m.Alive() {
			e.actMember(m)
		}
	}
	for _, en := range e.Enemies {
		if TeamWiped(e.Team) {
			break
		}
		if en.Alive() {
			e.actEnemy(en)
		}
	}
	e.checkPhases()

	res.Outcome = e.Outcome()
	return res
}

func (e *Encounter) resurrect(id string) {
	if m := Resurrect(e.Team, id, e.rules, e.env.Log, e.tick); m != nil {
		e.cur.Revived = append(e.cur.Revived, m)
	}
}

// Resurrect revives member id if it is dead and logs the outcome. It
// returns the revived member, or nil when id is unknown or alive.
func Resurrect(team []*TeamMember, id string, r Rules, log *combatlog.Logger, tick int) *TeamMember {
	m := findMember(team, id)
	if m == nil {
		log.System(tick, "warn", fmt.Sprintf("resurrect: unknown member %q", id), nil)
		return nil
	}
	if !Revive(m, r.ResurrectHealthFraction) {
		log.System(tick, "info", fmt.Sprintf("resurrect: %s is alive", m.Name), nil)
		return nil
	}
	log.Log(combatlog.Entry{
		Tick:    tick,
		Target:  m.Name,
		Value:   combatlog.Val(m.Health),
		Ability: "resurrect",
		Message: fmt.Sprintf("%s is resurrected at %.0f health", m.Name, m.Health),
		Payload: combatlog.AbilityPayload{Event: combatlog.AbilityResurrect},
	})
	return m
}

// actors returns every actor in team-then-spawn order.
func (e *Encounter) actors() []*Actor {
	out := make([]*Actor, 0, len(e.Team)+len(e.Enemies))
	for _, m := range e.Team {
		out = append(out, &m.Actor)
	}
	for _, en := range e.Enemies {
		out = append(out, &en.Actor)
	}
	return out
}

func (e *Encounter) pruneEffects() {
	for _, a := range e.actors() {
		for _, ae := range a.Effects.Prune(e.tick) {
			change := combatlog.EffectChange{EffectID: ae.Def.ID, ExpiresAtTick: ae.ExpiresAtTick, Expired: true}
			entry := combatlog.Entry{
				Tick:    e.tick,
				Target:  a.Name,
				Ability: ae.Def.ID,
				Message: fmt.Sprintf("%s fades from %s", ae.Def.Name, a.Name),
			}
			if ae.Def.Kind == condition.KindBuff || ae.Def.Kind == condition.KindHoT {
				entry.Payload = combatlog.BuffPayload{EffectChange: change}
			} else {
				entry.Payload = combatlog.DebuffPayload{EffectChange: change}
			}
			e.env.Log.Log(entry)
		}
	}
}

// sourceName resolves an effect source id to a display name.
func (e *Encounter) sourceName(id string) string {
	if m := findMember(e.Team, id); m != nil {
		return m.Name
	}
	if en := e.findEnemy(id); en != nil {
		return en.Name
	}
	return id
}

// tickPeriodic applies one second of heal-over-time and damage-over-time.
func (e *Encounter) tickPeriodic() {
	for _, a := range e.actors() {
		if !a.Alive() {
			continue
		}
		for _, ae := range a.Effects.All() {
			amount := ae.TickAmount()
			if amount <= 0 {
				continue
			}
			switch ae.Def.Kind {
			case condition.KindHoT:
				e.periodicHeal(a, ae, amount)
			case condition.KindDoT:
				e.periodicDamage(a, ae, amount)
			}
			if !a.Alive() {
				break
			}
		}
	}
}

func (e *Encounter) periodicHeal(a *Actor, ae *condition.ActiveEffect, amount float64) {
	hr := ApplyHeal(amount, a)
	if src := findMember(e.Team, ae.SourceID); src != nil {
		src.TotalHealing += hr.Effective
	}
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  e.sourceName(ae.SourceID),
		Target:  a.Name,
		Value:   combatlog.Val(hr.Effective),
		Ability: ae.Def.ID,
		Message: fmt.Sprintf("%s heals %s for %.0f", ae.Def.Name, a.Name, hr.Effective),
		Payload: combatlog.HealPayload{Raw: hr.Raw, Effective: hr.Effective, Overheal: hr.Overheal, Periodic: true, Before: hr.Before, After: hr.After},
	})
}

func (e *Encounter) periodicDamage(a *Actor, ae *condition.ActiveEffect, amount float64) {
	typ := stats.DamageType(ae.Def.DamageType)
	if !typ.Valid() {
		typ = stats.Physical
	}
	res := ApplyPeriodic(amount, typ, a, e.rules)
	src := e.sourceName(ae.SourceID)
	hit := Hit{SourceID: ae.SourceID, Ability: ae.Def.ID, Amount: amount, Type: typ}
	e.logHit(hit, res, src, a.Name)
	if m := findMember(e.Team, a.ID); m != nil {
		m.DamageTaken += res.Dealt()
		if res.Killed {
			e.memberDied(m, src)
		}
		return
	}
	if en := e.findEnemy(a.ID); en != nil {
		if m := findMember(e.Team, ae.SourceID); m != nil {
			m.TotalDamage += res.Dealt()
			en.AddThreat(m.ID, res.Dealt())
		}
		if res.Killed {
			e.enemyDied(en, src)
		}
	}
}

// primaryFraction returns the pooled health fraction of the initial enemies.
func (e *Encounter) primaryFraction() float64 {
	var hp, maxHP float64
	for _, en := range e.primary {
		hp += en.Health
		maxHP += en.MaxHealth
	}
	if maxHP <= 0 {
		return 0
	}
	return hp / maxHP
}

// releaseTrickle moves the next withheld group into combat when the trickle
// policy allows it, or immediately once every active enemy is dead.
func (e *Encounter) releaseTrickle() {
	if len(e.withheld) == 0 {
		return
	}
	release := len(LivingEnemies(e.Enemies)) == 0
	switch e.rules.TrickleMode {
	case TrickleDelay:
		release = release || e.tick-e.lastRelease >= e.rules.TrickleDelayTicks
	case TrickleHealth:
		release = release || e.primaryFraction() <= e.rules.TrickleHealthThreshold
	default:
		release = true
	}
	if !release {
		return
	}
	g := e.withheld[0]
	e.withheld = e.withheld[1:]
	e.lastRelease = e.tick
	for _, inst := range g.Enemies {
		e.Enemies = append(e.Enemies, e.addEnemy(inst))
	}
	e.cur.Released = append(e.cur.Released, g.PackID)
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Message: fmt.Sprintf("%d more enemies join from %s", len(g.Enemies), g.PackID),
		Payload: combatlog.PullPayload{
			Event:    combatlog.PullTrickle,
			PackIDs:  []string{g.PackID},
			Enemies:  len(g.Enemies),
			Withheld: len(e.withheld),
		},
	})
}

// checkPhases fires newly crossed phases on the final boss.
func (e *Encounter) checkPhases() {
	for _, en := range e.Enemies {
		if en.Instance == nil || !en.Instance.FinalBoss || !en.Alive() {
			continue
		}
		frac := en.HealthFraction()
		for _, ph := range e.phases.Check(frac) {
			if ph.CooldownScale > 0 {
				en.CooldownScale *= ph.CooldownScale
			}
			var granted []string
			for _, a := range en.Abilities {
				if en.unlocked[a.Name] {
					continue
				}
				if a.Phase == ph.Name || contains(ph.GrantAbilities, a.Name) {
					en.unlocked[a.Name] = true
					granted = append(granted, a.Name)
				}
			}
			e.env.Log.Log(combatlog.Entry{
				Tick:    e.tick,
				Source:  en.Name,
				Message: fmt.Sprintf("%s enters %s", en.Name, ph.Name),
				Payload: combatlog.PhasePayload{
					Boss:           en.Name,
					Phase:          ph.Name,
					Threshold:      ph.Threshold,
					HealthFraction: frac,
					Granted:        granted,
				},
			})
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
