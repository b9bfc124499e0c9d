package run

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExperienceForLevel(t *testing.T) {
	assert.Equal(t, 0, ExperienceForLevel(0))
	assert.Equal(t, 0, ExperienceForLevel(1))
	assert.Equal(t, 100, ExperienceForLevel(2))
	assert.Equal(t, 400, ExperienceForLevel(3))
}

func TestLedgerAwardExperience(t *testing.T) {
	l := NewLedger(map[string]int{"a": 1}, 0)

	up, err := l.AwardExperience("a", 100)
	require.NoError(t, err)
	assert.True(t, up)
	assert.Equal(t, 2, l.Level("a"))

	up, err = l.AwardExperience("a", 299)
	require.NoError(t, err)
	assert.False(t, up)
	assert.Equal(t, 399, l.Experience("a"))

	up, err = l.AwardExperience("a", 1)
	require.NoError(t, err)
	assert.True(t, up)
	assert.Equal(t, 3, l.Level("a"))

	_, err = l.AwardExperience("a", -5)
	assert.Error(t, err)

	up, err = l.AwardExperience("newcomer", 50)
	require.NoError(t, err)
	assert.False(t, up)
	assert.Equal(t, 1, l.Level("newcomer"))
}

func TestLedgerMaxLevel(t *testing.T) {
	l := NewLedger(map[string]int{"a": 2}, 3)
	up, err := l.AwardExperience("a", 100000)
	require.NoError(t, err)
	assert.True(t, up)
	assert.Equal(t, 3, l.Level("a"))
}

func TestLedgerDeathPenalty(t *testing.T) {
	l := NewLedger(map[string]int{"a": 3}, 0)
	require.NoError(t, l.ApplyDeathPenalty("a"))
	assert.Equal(t, 400, l.Experience("a"), "no progress, nothing lost")

	_, err := l.AwardExperience("a", 50)
	require.NoError(t, err)
	require.NoError(t, l.ApplyDeathPenalty("a"))
	assert.Equal(t, 445, l.Experience("a"))
}

func TestPropertyDeathPenaltyKeepsLevelFloor(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		level := rapid.IntRange(1, 60).Draw(t, "level")
		progress := rapid.IntRange(0, 10000).Draw(t, "progress")
		exp := ExperienceForLevel(level) + progress
		after := AfterDeathPenalty(level, exp)
		if after < ExperienceForLevel(level) || after > exp {
			t.Fatalf("penalty moved %d to %d at level %d", exp, after, level)
		}
	})
}

func TestPropertyLevelForMonotonic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		exp := rapid.IntRange(0, 1_000_000).Draw(t, "exp")
		more := rapid.IntRange(0, 1_000_000).Draw(t, "more")
		a := LevelFor(1, exp, 0)
		b := LevelFor(1, exp+more, 0)
		if b < a {
			t.Fatalf("level fell from %d to %d", a, b)
		}
		if exp < ExperienceForLevel(a) {
			t.Fatalf("level %d reached with only %d experience", a, exp)
		}
	})
}

func TestControlSignals(t *testing.T) {
	s := NewControlSignals()
	assert.False(t, s.Stopped())
	assert.False(t, s.Paused())

	s.Resurrect("dps")
	s.UseAbility("tank", "fortify")
	s.EngageOptional("side")
	cmds := s.Drain()
	require.Len(t, cmds, 3)
	assert.Equal(t, Command{Kind: CmdResurrect, ActorID: "dps"}, cmds[0])
	assert.Equal(t, Command{Kind: CmdUseAbility, ActorID: "tank", AbilityID: "fortify"}, cmds[1])
	assert.Equal(t, Command{Kind: CmdEngageOptional, PackID: "side"}, cmds[2])
	assert.Empty(t, s.Drain())

	s.Pause()
	assert.True(t, s.Paused())
	s.Resume()
	assert.False(t, s.Paused())

	s.Stop()
	s.Stop()
	assert.True(t, s.Stopped())
	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Stop")
	}
}

func TestWaitWhilePausedHonorsContext(t *testing.T) {
	s := NewControlSignals()
	s.Pause()
	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.False(t, s.waitWhilePaused(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)

	assert.True(t, NewControlSignals().waitWhilePaused(context.Background()))
}

func TestSleepReturnsOnStop(t *testing.T) {
	s := NewControlSignals()
	go func() {
		time.Sleep(20 * time.Millisecond)
		s.Stop()
	}()
	start := time.Now()
	s.sleep(context.Background(), 5*time.Second)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	_, ok := b.Latest()
	assert.False(t, ok)

	fast := make(chan Snapshot, 4)
	full := make(chan Snapshot)
	b.Subscribe(fast)
	b.Subscribe(full)

	b.Publish(Snapshot{RunID: "r", Tick: 1})
	b.Publish(Snapshot{RunID: "r", Tick: 2})

	latest, ok := b.Latest()
	require.True(t, ok)
	assert.Equal(t, 2, latest.Tick)
	assert.Len(t, fast, 2, "a slow subscriber does not block the others")

	b.Unsubscribe(fast)
	b.Publish(Snapshot{Tick: 3})
	assert.Len(t, fast, 2)
}
