package combat

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/enemy"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

// Env bundles the collaborators an encounter reports to.
type Env struct {
	Roller    *dice.Roller
	Log       *combatlog.Logger
	Logger    *zap.Logger
	Effects   *condition.Registry
	Abilities AbilitySource
}

// Setup describes one encounter.
type Setup struct {
	Team  []*TeamMember
	Spawn enemy.Spawn
	// Phases apply to the final boss, if the spawn holds one.
	Phases    []dungeon.BossPhase
	StartTick int
}

// AbilityRequest asks a member to use an ability on its next turn.
type AbilityRequest struct {
	MemberID  string
	AbilityID string
}

// Requests are the out-of-band commands honored at the start of a step.
type Requests struct {
	Resurrect []string
	Abilities []AbilityRequest
}

// StepResult reports what happened during one step.
type StepResult struct {
	Outcome  Outcome
	Deaths   []*TeamMember
	Kills    []*Enemy
	Revived  []*TeamMember
	Released []string
}

// Encounter is the combat state of one pull. It is owned by a single goroutine.
type Encounter struct {
	rules Rules
	env   Env

	Team    []*TeamMember
	Enemies []*Enemy

	withheld    []enemy.Group
	primary     []*Enemy
	startTick   int
	lastRelease int
	phases      *PhaseTracker
	forced      map[string]string

	tick int
	cur  *StepResult
}

// NewEncounter builds an encounter from a spawned pull.
//
// Precondition: env.Roller, env.Log and env.Effects must be non-nil.
// Postcondition: every enemy timer is ready; boss enemies have their ability
// tables loaded (an unavailable table is logged and treated as empty).
func NewEncounter(setup Setup, rules Rules, env Env) *Encounter {
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}
	e := &Encounter{
		rules:       rules,
		env:         env,
		Team:        setup.Team,
		withheld:    append([]enemy.Group(nil), setup.Spawn.Withheld...),
		startTick:   setup.StartTick,
		lastRelease: setup.StartTick,
		phases:      NewPhaseTracker(setup.Phases),
		forced:      make(map[string]string),
		tick:        setup.StartTick,
	}
	for _, inst := range setup.Spawn.Active {
		e.Enemies = append(e.Enemies, e.addEnemy(inst))
	}
	e.primary = append([]*Enemy(nil), e.Enemies...)
	return e
}

func (e *Encounter) addEnemy(inst *enemy.Instance) *Enemy {
	en := NewEnemy(inst)
	if en.Behavior != enemy.BehaviorBoss {
		return en
	}
	abilities, err := SafeAbilities(e.env.Abilities, inst.Name, inst.BaseName)
	if err != nil {
		e.env.Log.System(e.tick, "warn", fmt.Sprintf("boss abilities unavailable for %s", inst.Name), err)
	}
	en.Abilities = abilities
	names := make([]string, 0, len(abilities))
	for _, a := range abilities {
		if a.Phase == "" {
			en.unlocked[a.Name] = true
		}
		names = append(names, a.Name)
	}
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  inst.Name,
		Message: fmt.Sprintf("%s engages", inst.Name),
		Payload: combatlog.BossPayload{Boss: inst.Name, BaseName: inst.BaseName, Event: "engage", Abilities: names},
	})
	return en
}

// Withheld returns the number of enemy groups not yet released.
func (e *Encounter) Withheld() int { return len(e.withheld) }

// Rules returns the encounter's rules.
func (e *Encounter) Rules() Rules { return e.rules }

// Outcome reports the encounter state without advancing it.
func (e *Encounter) Outcome() Outcome {
	if TeamWiped(e.Team) {
		return Wiped
	}
	if len(LivingEnemies(e.Enemies)) == 0 && len(e.withheld) == 0 {
		return Cleared
	}
	return Ongoing
}

func (e *Encounter) findEnemy(id string) *Enemy {
	for _, en := range e.Enemies {
		if en.ID == id {
			return en
		}
	}
	return nil
}

// applyEffect applies effect id to target and logs it as a buff or debuff.
func (e *Encounter) applyEffect(target *Actor, id, sourceID, sourceName string, magnitude float64) {
	def, ok := e.env.Effects.Get(id)
	if !ok {
		e.env.Log.System(e.tick, "warn", fmt.Sprintf("unknown effect %q", id), nil)
		return
	}
	expires := e.tick + e.rules.Ticks(def.DurationSeconds)
	ae, err := target.Effects.Apply(def, 1, expires, sourceID)
	if err != nil {
		e.env.Log.System(e.tick, "error", "applying effect failed", err)
		return
	}
	if magnitude > 0 {
		ae.Magnitude = Sanitize(magnitude)
	}
	change := combatlog.EffectChange{EffectID: def.ID, Stacks: ae.Stacks, ExpiresAtTick: ae.ExpiresAtTick}
	entry := combatlog.Entry{
		Tick:    e.tick,
		Source:  sourceName,
		Target:  target.Name,
		Ability: def.ID,
		Message: fmt.Sprintf("%s gains %s (%d)", target.Name, def.Name, ae.Stacks),
	}
	if def.Kind == condition.KindBuff || def.Kind == condition.KindHoT {
		entry.Payload = combatlog.BuffPayload{EffectChange: change}
	} else {
		entry.Payload = combatlog.DebuffPayload{EffectChange: change}
	}
	e.env.Log.Log(entry)
}

// logHit appends a damage entry for a resolved hit.
func (e *Encounter) logHit(hit Hit, res HitResult, sourceName, targetName string) {
	var msg string
	switch {
	case res.Evaded:
		msg = fmt.Sprintf("%s evades %s's %s", targetName, sourceName, hit.Ability)
	case res.Blocked:
		msg = fmt.Sprintf("%s blocks %s's %s, taking %.0f", targetName, sourceName, hit.Ability, res.Dealt())
	case res.Crit:
		msg = fmt.Sprintf("%s crits %s with %s for %.0f", sourceName, targetName, hit.Ability, res.Dealt())
	default:
		msg = fmt.Sprintf("%s hits %s with %s for %.0f", sourceName, targetName, hit.Ability, res.Dealt())
	}
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  sourceName,
		Target:  targetName,
		Value:   combatlog.Val(res.Dealt()),
		Ability: hit.Ability,
		Message: msg,
		Payload: res.Payload(hit),
	})
}

// damageEnemy applies a team hit to an enemy with threat and credit.
func (e *Encounter) damageEnemy(m *TeamMember, target *Enemy, hit Hit) HitResult {
	res := Resolve(hit, &target.Actor, e.rules, e.env.Roller)
	e.logHit(hit, res, m.Name, target.Name)
	m.TotalDamage += res.Dealt()
	threat := res.Dealt()
	if m.Role == stats.RoleTank {
		threat *= e.rules.TankThreatMultiplier
	}
	target.AddThreat(m.ID, max(threat, 1))
	if res.Killed {
		e.enemyDied(target, m.Name)
	}
	return res
}

// damageMember applies an enemy hit to a member.
func (e *Encounter) damageMember(src *Enemy, target *TeamMember, hit Hit) HitResult {
	res := Resolve(hit, &target.Actor, e.rules, e.env.Roller)
	e.logHit(hit, res, src.Name, target.Name)
	target.DamageTaken += res.Dealt()
	if res.Killed {
		e.memberDied(target, src.Name)
	}
	return res
}

func (e *Encounter) memberDied(m *TeamMember, killer string) {
	m.Deaths++
	m.Effects.Clear()
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  killer,
		Target:  m.Name,
		Message: fmt.Sprintf("%s has died", m.Name),
		Payload: combatlog.DeathPayload{Victim: m.Snapshot(), Killer: killer, Team: true},
	})
	for _, en := range e.Enemies {
		if en.Cast != nil && !en.Cast.AoE && en.Cast.TargetID == m.ID {
			e.env.Log.Log(combatlog.Entry{
				Tick:    e.tick,
				Source:  en.Name,
				Target:  m.Name,
				Ability: en.Cast.Ability,
				Message: fmt.Sprintf("%s's %s is cancelled", en.Name, en.Cast.Ability),
				Payload: combatlog.AbilityPayload{Event: combatlog.AbilityCancelled},
			})
			en.Cast = nil
			en.CastReadyTick = e.tick
		}
	}
	if e.cur != nil {
		e.cur.Deaths = append(e.cur.Deaths, m)
	}
}

func (e *Encounter) enemyDied(en *Enemy, killer string) {
	e.env.Log.Log(combatlog.Entry{
		Tick:    e.tick,
		Source:  killer,
		Target:  en.Name,
		Message: fmt.Sprintf("%s has died", en.Name),
		Payload: combatlog.DeathPayload{Victim: en.Snapshot(), Killer: killer},
	})
	if en.Instance != nil && (en.Instance.FinalBoss || en.Instance.GateBoss) {
		e.env.Log.Log(combatlog.Entry{
			Tick:    e.tick,
			Source:  en.Name,
			Message: fmt.Sprintf("%s is defeated", en.Name),
			Payload: combatlog.BossPayload{Boss: en.Name, BaseName: en.Instance.BaseName, Event: "defeated"},
		})
	}
	if e.cur != nil {
		e.cur.Kills = append(e.cur.Kills, en)
	}
}
