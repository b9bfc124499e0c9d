package run

import (
	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/loot"
)

// publish sends a snapshot of the current state to the publisher.
func (st *state) publish() {
	st.publishResult(nil)
}

func (st *state) publishResult(res *Result) {
	pub := st.c.deps.Publisher
	if pub == nil || st.muted {
		st.lootDrops = nil
		return
	}
	st.collectFloaters()
	tps := st.c.cfg.Simulation.TicksPerSecond
	elapsed := TickToSeconds(st.tick, tps)
	s := Snapshot{
		RunID:          st.p.RunID,
		Phase:          st.phase,
		Tick:           st.tick,
		Elapsed:        elapsed,
		Remaining:      max(st.p.Dungeon.TimeLimitSeconds-elapsed, 0),
		Position:       st.position,
		PullIndex:      st.pullIndex,
		ForcesCleared:  st.prog.ForcesCleared(),
		ForcesRequired: st.p.Dungeon.ForcesRequired(),
		Paused:         st.p.Signals.Paused(),
		LogTail:        st.log.Tail(logTailSize),
		Floaters:       st.floaters,
		LootDrops:      append([]loot.Drop(nil), st.lootDrops...),
		Result:         res,
	}
	for _, m := range st.team {
		s.Team = append(s.Team, actorView(&m.Actor, string(m.Role)))
	}
	if st.enc != nil {
		for _, e := range st.enc.Enemies {
			s.Enemies = append(s.Enemies, actorView(&e.Actor, string(e.Behavior)))
		}
	}
	st.floaters = nil
	st.lootDrops = nil
	pub.Publish(s)
}

// collectFloaters turns damage and heal entries logged since the last
// snapshot into floating numbers.
func (st *state) collectFloaters() {
	for _, e := range st.log.Since(st.lastSeq) {
		st.lastSeq = e.Seq
		switch p := e.Payload.(type) {
		case combatlog.DamagePayload:
			kind := "damage"
			switch {
			case p.Evaded:
				kind = "evade"
			case p.Crit:
				kind = "crit"
			}
			st.floaters = append(st.floaters, Floater{Tick: e.Tick, Target: e.Target, Amount: p.Absorbed + p.HealthLoss, Kind: kind})
		case combatlog.HealPayload:
			if p.Effective > 0 {
				st.floaters = append(st.floaters, Floater{Tick: e.Tick, Target: e.Target, Amount: p.Effective, Kind: "heal"})
			}
		}
	}
}
