package run

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/game/combat"
	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/enemy"
	"github.com/cory-johannsen/dungeonrun/internal/game/loot"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
	"github.com/cory-johannsen/dungeonrun/internal/observability"
)

// Experience tuning.
const (
	experiencePerValue  = 10
	bossExperienceBonus = 5
)

// terminal describes why a run stopped early.
type terminal struct {
	reason FailReason
	detail string
}

// state is everything one run owns. It is confined to the run goroutine.
type state struct {
	c       *Controller
	p       Params
	ctx     context.Context
	logger  *zap.Logger
	log     *combatlog.Logger
	roller  *dice.Roller
	rules   combat.Rules
	caps    stats.Caps
	factory *enemy.Factory
	prog    *dungeon.GateProgress
	scaling dungeon.KeyScaling

	members []stats.Member
	team    []*combat.TeamMember
	enc     *combat.Encounter
	pending combat.Requests
	queue   []dungeon.RoutePull
	used    map[string]bool

	tick       int
	limitTicks int
	position   dungeon.Position
	phase      Phase
	pullIndex  int

	loot           []loot.Drop
	experience     map[string]int
	deaths         int
	pullsCompleted int

	lastSeq   int
	floaters  []Floater
	lootDrops []loot.Drop
	// muted stops publishing after a fault.
	muted bool
}

func (c *Controller) newState(ctx context.Context, p Params) *state {
	tps := c.cfg.Simulation.TicksPerSecond
	logger := observability.ForRun(c.deps.Logger, p.RunID, p.Dungeon.ID, p.KeyLevel)
	log := p.Log
	if log == nil {
		log = combatlog.New(p.RunID, tps, logger)
	}
	log.Reset()
	rules := combat.RulesFromConfig(c.cfg, p.Affixes)
	caps := c.caps()

	st := &state{
		c:          c,
		p:          p,
		ctx:        ctx,
		logger:     logger,
		log:        log,
		roller:     dice.NewLoggedRoller(c.deps.Source, logger),
		rules:      rules,
		caps:       caps,
		prog:       dungeon.NewProgress(p.Dungeon),
		scaling:    dungeon.ScaleForKey(p.KeyLevel),
		members:    append([]stats.Member(nil), p.Team...),
		queue:      append(dungeon.Route(nil), p.Route...),
		used:       make(map[string]bool),
		limitTicks: SecondsToTicks(p.Dungeon.TimeLimitSeconds, tps),
		position:   p.Dungeon.Start,
		phase:      PhaseIdle,
		experience: make(map[string]int),
	}
	names := enemy.NewNamePool(c.deps.BossNames, c.deps.Source)
	st.factory = enemy.NewFactory(c.deps.Catalog, c.cfg.Balance, rules.TrickleMode != combat.TrickleNone, names, logger)
	for _, pull := range p.Route {
		for _, id := range pull.PackIDs {
			st.used[id] = true
		}
	}
	blocks := stats.DeriveTeam(st.members, caps)
	for i, m := range st.members {
		st.team = append(st.team, combat.NewTeamMember(m, blocks[i]))
	}
	return st
}

// SecondsToTicks converts seconds to whole ticks, rounding up.
func SecondsToTicks(seconds float64, tps int) int {
	if seconds <= 0 || math.IsNaN(seconds) {
		return 0
	}
	return int(math.Ceil(seconds * float64(tps)))
}

// TickToSeconds converts a tick count to seconds.
func TickToSeconds(tick, tps int) float64 {
	return float64(tick) / float64(tps)
}

// execute runs every pull then the final boss.
func (st *state) execute() Result {
	st.log.System(0, "info", fmt.Sprintf("run started: %s at key level %d", st.p.Dungeon.Name, st.p.KeyLevel), nil)
	st.publish()
	for len(st.queue) > 0 {
		pull := st.queue[0]
		st.queue = st.queue[1:]
		st.pullIndex++
		if t := st.doPull(pull); t != nil {
			return st.finish(t)
		}
	}
	if !st.prog.AllSatisfied() {
		st.log.System(st.tick, "warn", "route exhausted before every gate was satisfied", nil)
		return st.finish(&terminal{reason: FailTimeout, detail: "forces requirement not met"})
	}
	if t := st.doBoss(); t != nil {
		return st.finish(t)
	}
	return st.finish(nil)
}

// advance moves to the next tick after honoring pause, stop, and queued
// commands, and enforces the time limit.
func (st *state) advance() *terminal {
	if !st.p.Signals.waitWhilePaused(st.ctx) {
		return &terminal{reason: FailWipe, detail: "run stopped"}
	}
	st.tick++
	st.drain()
	if st.limitTicks > 0 && st.tick >= st.limitTicks {
		return &terminal{reason: FailTimeout, detail: "time limit reached"}
	}
	if ceiling := st.c.cfg.Simulation.MaxTicks; ceiling > 0 && st.tick >= ceiling {
		return &terminal{reason: FailTimeout, detail: "tick ceiling reached"}
	}
	return nil
}

// pace sleeps ticks × tick_delay in live mode.
func (st *state) pace(ticks int) {
	if d := st.c.cfg.Simulation.TickDelay; d > 0 {
		st.p.Signals.sleep(st.ctx, d*time.Duration(ticks))
	}
}

// drain applies queued commands. Resurrections outside combat happen
// immediately; inside combat they are handed to the next encounter step.
func (st *state) drain() {
	for _, cmd := range st.p.Signals.Drain() {
		switch cmd.Kind {
		case CmdResurrect:
			if st.enc != nil {
				st.pending.Resurrect = append(st.pending.Resurrect, cmd.ActorID)
			} else {
				combat.Resurrect(st.team, cmd.ActorID, st.rules, st.log, st.tick)
			}
		case CmdUseAbility:
			st.pending.Abilities = append(st.pending.Abilities, combat.AbilityRequest{MemberID: cmd.ActorID, AbilityID: cmd.AbilityID})
		case CmdEngageOptional:
			st.engageOptional(cmd.PackID)
		default:
			st.log.System(st.tick, "warn", fmt.Sprintf("unknown command %q", cmd.Kind), nil)
		}
	}
}

func (st *state) engageOptional(packID string) {
	if _, ok := st.p.Dungeon.Pack(packID); !ok {
		st.log.System(st.tick, "warn", fmt.Sprintf("engage: unknown pack %q", packID), nil)
		return
	}
	if st.used[packID] {
		st.log.System(st.tick, "warn", fmt.Sprintf("engage: pack %q is already routed or cleared", packID), nil)
		return
	}
	st.used[packID] = true
	st.queue = append([]dungeon.RoutePull{{PackIDs: []string{packID}}}, st.queue...)
	st.log.System(st.tick, "info", fmt.Sprintf("optional pack %s queued as the next pull", packID), nil)
}

func (st *state) takeRequests() combat.Requests {
	r := st.pending
	st.pending = combat.Requests{}
	return r
}

// travel moves the team to target in sub-steps, without enemy actions.
func (st *state) travel(target dungeon.Position) *terminal {
	sim := st.c.cfg.Simulation
	dist := st.position.Distance(target)
	secs := sim.TravelMinSeconds
	if sim.TravelSpeed > 0 {
		secs = math.Min(math.Max(dist/sim.TravelSpeed, sim.TravelMinSeconds), sim.TravelMaxSeconds)
	}
	total := max(SecondsToTicks(secs, sim.TicksPerSecond), 1)
	stepTicks := max(sim.TravelStepTicks, 1)
	from := st.position
	st.phase = PhaseTraveling
	st.log.Log(combatlog.Entry{
		Tick:    st.tick,
		Message: fmt.Sprintf("traveling %.0f units (%.1fs)", dist, secs),
		Payload: combatlog.TravelPayload{From: from, To: target, Distance: dist, Seconds: secs},
	})
	for done := 0; done < total; {
		step := min(stepTicks, total-done)
		for i := 0; i < step; i++ {
			if t := st.advance(); t != nil {
				return t
			}
		}
		done += step
		st.position = from.Lerp(target, float64(done)/float64(total))
		st.publish()
		st.pace(step)
	}
	st.position = target
	return nil
}

// doPull travels to and fights one pull.
func (st *state) doPull(pull dungeon.RoutePull) *terminal {
	packs, err := dungeon.ResolvePull(st.p.Dungeon, pull)
	if err != nil {
		st.log.System(st.tick, "error", "skipping unresolvable pull", err)
		return nil
	}
	if err := dungeon.CheckUnlocked(st.p.Dungeon, st.prog, pull); err != nil {
		st.log.System(st.tick, "warn", fmt.Sprintf("pull %v refused", pull.PackIDs), err)
		st.pullIndex--
		return nil
	}
	if t := st.travel(dungeon.Centroid(packs)); t != nil {
		return t
	}
	spawn, err := st.factory.SpawnPull(packs, st.scaling, st.p.Affixes)
	if err != nil {
		panic(fmt.Sprintf("spawning validated pull %d: %v", st.pullIndex, err))
	}
	forces := 0
	for _, p := range packs {
		forces += p.Forces
	}
	st.log.Log(combatlog.Entry{
		Tick:    st.tick,
		Message: fmt.Sprintf("pull %d engaged: %v", st.pullIndex, pull.PackIDs),
		Payload: combatlog.PullPayload{
			Index:    st.pullIndex,
			Event:    combatlog.PullStart,
			PackIDs:  pull.PackIDs,
			Enemies:  len(spawn.Active),
			Withheld: len(spawn.Withheld),
			Forces:   forces,
		},
	})
	if t := st.fight(combat.Setup{Team: st.team, Spawn: spawn, StartTick: st.tick}, PhaseCombat); t != nil {
		return t
	}
	for _, p := range packs {
		st.prog.Clear(p.ID)
	}
	st.pullsCompleted++
	st.log.Log(combatlog.Entry{
		Tick:    st.tick,
		Message: fmt.Sprintf("pull %d cleared (%d/%d forces)", st.pullIndex, st.prog.ForcesCleared(), st.p.Dungeon.ForcesRequired()),
		Payload: combatlog.PullPayload{Index: st.pullIndex, Event: combatlog.PullClear, PackIDs: pull.PackIDs, Forces: forces},
	})
	value := 0.0
	for _, inst := range spawn.All() {
		value += inst.Value
	}
	st.awardExperience(int(math.Round(value * experiencePerValue * st.scaling.RewardMultiplier)))
	st.publish()
	return nil
}

// doBoss travels to and fights the final boss.
func (st *state) doBoss() *terminal {
	boss := st.p.Dungeon.Boss
	if t := st.travel(boss.Position); t != nil {
		return t
	}
	inst, err := st.factory.SpawnBoss(boss, st.scaling, st.p.Affixes)
	if err != nil {
		panic(fmt.Sprintf("spawning validated boss: %v", err))
	}
	st.pullIndex++
	st.log.Log(combatlog.Entry{
		Tick:    st.tick,
		Message: fmt.Sprintf("final boss %s engaged", inst.Name),
		Payload: combatlog.PullPayload{Index: st.pullIndex, Event: combatlog.PullStart, PackIDs: []string{inst.PackID}, Enemies: 1},
	})
	setup := combat.Setup{
		Team:      st.team,
		Spawn:     enemy.Spawn{Active: []*enemy.Instance{inst}},
		Phases:    boss.Phases,
		StartTick: st.tick,
	}
	if t := st.fight(setup, PhaseBoss); t != nil {
		return t
	}
	st.awardExperience(int(math.Round(inst.Value * experiencePerValue * bossExperienceBonus * st.scaling.RewardMultiplier)))
	return nil
}

// fight steps one encounter until it is cleared, the team wipes, or the run ends.
func (st *state) fight(setup combat.Setup, phase Phase) *terminal {
	st.phase = phase
	st.enc = combat.NewEncounter(setup, st.rules, combat.Env{
		Roller:    st.roller,
		Log:       st.log,
		Logger:    st.logger,
		Effects:   st.c.deps.Effects,
		Abilities: st.c.deps.Abilities,
	})
	defer func() { st.enc = nil }()
	for {
		if t := st.advance(); t != nil {
			return t
		}
		res := st.enc.Step(st.tick, st.takeRequests())
		for _, m := range res.Deaths {
			st.deaths++
			st.deathPenalty(m)
		}
		for _, k := range res.Kills {
			st.rollLoot(k)
		}
		st.publish()
		st.pace(1)
		switch res.Outcome {
		case combat.Wiped:
			return &terminal{reason: FailWipe, detail: "team wiped"}
		case combat.Cleared:
			return nil
		}
	}
}

func (st *state) rollLoot(k *combat.Enemy) {
	inst := k.Instance
	if inst == nil {
		return
	}
	req := loot.Request{
		EnemyValue:           inst.Value,
		EnemyTier:            inst.Tier,
		KeyLevel:             st.p.KeyLevel,
		HighestCompletedTier: st.p.HighestCompletedTier,
		Position:             st.position,
		QuantityBonus:        st.p.QuantityBonus,
		RarityBonus:          st.p.RarityBonus,
		Source:               inst.Name,
	}
	drops, err := loot.SafeRoll(st.c.deps.Loot, req, st.roller, st.logger)
	if err != nil {
		st.log.System(st.tick, "warn", fmt.Sprintf("loot from %s unavailable", inst.Name), err)
		return
	}
	if len(drops) == 0 {
		return
	}
	st.loot = append(st.loot, drops...)
	st.lootDrops = append(st.lootDrops, drops...)
	st.log.Log(combatlog.Entry{
		Tick:    st.tick,
		Source:  inst.Name,
		Message: fmt.Sprintf("%s dropped %d item(s)", inst.Name, len(drops)),
		Payload: combatlog.LootPayload{Drops: drops},
	})
}

// awardExperience credits every member and re-derives stats on level-up.
func (st *state) awardExperience(amount int) {
	if amount <= 0 {
		return
	}
	leveled := false
	for i, m := range st.team {
		up, err := st.safeAward(m.CharacterID, amount)
		if err != nil {
			st.log.System(st.tick, "warn", fmt.Sprintf("experience for %s not recorded", m.Name), err)
			continue
		}
		st.experience[m.CharacterID] += amount
		if !up {
			continue
		}
		leveled = true
		st.members[i].Character.Level++
		st.log.Log(combatlog.Entry{
			Tick:    st.tick,
			Target:  m.Name,
			Message: fmt.Sprintf("%s reached level %d", m.Name, st.members[i].Character.Level),
			Payload: combatlog.LevelPayload{CharacterID: m.CharacterID, Level: st.members[i].Character.Level, Experience: st.experience[m.CharacterID]},
		})
	}
	if !leveled {
		return
	}
	blocks := stats.DeriveTeam(st.members, st.caps)
	for i, m := range st.team {
		m.Member = st.members[i]
		m.ApplyBlock(blocks[i])
	}
}

func (st *state) safeAward(id string, amount int) (up bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			up, err = false, fmt.Errorf("progression panicked: %v", r)
		}
	}()
	return st.c.deps.Progression.AwardExperience(id, amount)
}

func (st *state) deathPenalty(m *combat.TeamMember) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("progression panicked: %v", r)
			}
		}()
		return st.c.deps.Progression.ApplyDeathPenalty(m.CharacterID)
	}()
	if err != nil {
		st.log.System(st.tick, "warn", fmt.Sprintf("death penalty for %s not applied", m.Name), err)
	}
}

// finish builds the terminal result and publishes the final snapshot.
func (st *state) finish(t *terminal) Result {
	tps := st.c.cfg.Simulation.TicksPerSecond
	elapsed := TickToSeconds(st.tick, tps)
	res := Result{
		RunID:            st.p.RunID,
		Success:          t == nil,
		ElapsedSeconds:   elapsed,
		TimeLimitSeconds: st.p.Dungeon.TimeLimitSeconds,
		ForcesCleared:    st.prog.ForcesCleared(),
		ForcesRequired:   st.p.Dungeon.ForcesRequired(),
		Loot:             append([]loot.Drop{}, st.loot...),
		Deaths:           st.deaths,
		Ticks:            st.tick,
		PullsCompleted:   st.pullsCompleted,
	}
	msg := "run succeeded"
	if t != nil {
		res.FailReason, res.FailDetail = t.reason, t.detail
		msg = fmt.Sprintf("run failed: %s (%s)", t.reason, t.detail)
	}
	for i, m := range st.team {
		ps := PlayerStats{
			CharacterID: m.CharacterID,
			Name:        m.Name,
			Role:        string(m.Role),
			Level:       st.members[i].Character.Level,
			Damage:      m.TotalDamage,
			Healing:     m.TotalHealing,
			DamageTaken: m.DamageTaken,
			Deaths:      m.Deaths,
			Experience:  st.experience[m.CharacterID],
		}
		if elapsed > 0 {
			ps.DPS = m.TotalDamage / elapsed
		}
		res.Experience += ps.Experience
		res.Players = append(res.Players, ps)
	}
	st.log.System(st.tick, "info", msg, nil)
	st.phase = PhaseFinished
	st.publishResult(&res)
	return res
}
