package dungeon_test

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
)

func threeGate() *dungeon.Dungeon {
	d := &dungeon.Dungeon{
		ID:               "crypt",
		Name:             "Sunken Crypt",
		TimeLimitSeconds: 1800,
		Boss:             dungeon.DungeonBoss{EnemyID: "lich", Name: "The Lich", Position: dungeon.Position{X: 300}},
	}
	for g := 1; g <= 3; g++ {
		bossID := fmt.Sprintf("g%d-boss", g)
		d.Gates = append(d.Gates, dungeon.Gate{
			Index: g, ForcesRequired: 10, BossPackID: bossID,
			SpanStart: float64((g - 1) * 100), SpanEnd: float64(g * 100),
		})
		d.Packs = append(d.Packs,
			dungeon.EnemyPack{ID: fmt.Sprintf("g%d-a", g), Gate: g, Forces: 5,
				Members: []dungeon.PackMember{{EnemyID: "ghoul", Count: 3}}, Position: dungeon.Position{X: float64(g*100 - 70)}},
			dungeon.EnemyPack{ID: bossID, Gate: g, Forces: 5, GateBoss: true,
				Members: []dungeon.PackMember{{EnemyID: "warden", Count: 1}}, Position: dungeon.Position{X: float64(g*100 - 20)}},
		)
	}
	return d
}

func TestValidate(t *testing.T) {
	d := threeGate()
	require.NoError(t, d.Validate())
	assert.Equal(t, 30, d.ForcesRequired())

	bad := threeGate()
	bad.Packs[0].Gate = 7
	assert.Error(t, bad.Validate())

	bad = threeGate()
	bad.Gates[0].BossPackID = "nope"
	assert.ErrorIs(t, bad.Validate(), dungeon.ErrUnknownPack)

	bad = threeGate()
	bad.Boss.Phases = []dungeon.BossPhase{{Name: "x", Threshold: 1.5}}
	assert.Error(t, bad.Validate())
}

func TestValidateRoute(t *testing.T) {
	d := threeGate()
	ok := dungeon.Route{{PackIDs: []string{"g1-a", "g1-boss"}}, {PackIDs: []string{"g2-a"}}}
	assert.NoError(t, dungeon.ValidateRoute(d, ok))
	assert.Equal(t, 3, ok.PackCount())

	assert.ErrorIs(t, dungeon.ValidateRoute(d, dungeon.Route{{PackIDs: []string{"ghost"}}}), dungeon.ErrUnknownPack)
	assert.ErrorIs(t, dungeon.ValidateRoute(d, dungeon.Route{{PackIDs: []string{"g1-a"}}, {PackIDs: []string{"g1-a"}}}), dungeon.ErrPackReused)
	assert.ErrorIs(t, dungeon.ValidateRoute(d, dungeon.Route{{}}), dungeon.ErrEmptyPull)

	for name, route := range map[string]dungeon.Route{
		"gate 2 first":        {{PackIDs: []string{"g2-a"}}},
		"gate boss alive":     {{PackIDs: []string{"g1-a"}}, {PackIDs: []string{"g2-a"}}},
		"same pull as unlock": {{PackIDs: []string{"g1-a", "g1-boss", "g2-a"}}},
		"skips gate 2":        {{PackIDs: []string{"g1-a", "g1-boss"}}, {PackIDs: []string{"g3-a"}}},
	} {
		assert.ErrorIs(t, dungeon.ValidateRoute(d, route), dungeon.ErrGateLocked, name)
	}
}

func TestCheckUnlocked(t *testing.T) {
	d := threeGate()
	p := dungeon.NewProgress(d)
	assert.NoError(t, dungeon.CheckUnlocked(d, p, dungeon.RoutePull{PackIDs: []string{"g1-a"}}))
	assert.ErrorIs(t, dungeon.CheckUnlocked(d, p, dungeon.RoutePull{PackIDs: []string{"g2-a"}}), dungeon.ErrGateLocked)
	assert.ErrorIs(t, dungeon.CheckUnlocked(d, p, dungeon.RoutePull{PackIDs: []string{"ghost"}}), dungeon.ErrUnknownPack)
	p.Clear("g1-a")
	p.Clear("g1-boss")
	assert.NoError(t, dungeon.CheckUnlocked(d, p, dungeon.RoutePull{PackIDs: []string{"g2-a"}}))
}

func TestGateProgress(t *testing.T) {
	d := threeGate()
	p := dungeon.NewProgress(d)
	assert.True(t, p.Unlocked(1))
	assert.False(t, p.Unlocked(2))

	p.Clear("g1-a")
	assert.False(t, p.Satisfied(1), "forces met is not enough without the gate boss")
	p.Clear("g1-boss")
	assert.True(t, p.Satisfied(1))
	assert.True(t, p.Unlocked(2))
	assert.False(t, p.Unlocked(3))
	assert.Equal(t, 10, p.ForcesCleared())
	assert.False(t, p.AllSatisfied())
	assert.False(t, p.Unlocked(4), "gates that do not exist are never unlocked")
}

func TestPropertyGateUnlockRequiresEarlierGates(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := threeGate()
		p := dungeon.NewProgress(d)
		ids := make([]string, 0, len(d.Packs))
		for _, pk := range d.Packs {
			ids = append(ids, pk.ID)
		}
		order := rapid.Permutation(ids).Draw(t, "order")
		n := rapid.IntRange(0, len(order)).Draw(t, "n")
		for _, id := range order[:n] {
			p.Clear(id)
		}
		if p.Unlocked(2) && !p.Satisfied(1) {
			t.Fatalf("gate 2 unlocked with gate 1 unsatisfied")
		}
		if p.Unlocked(3) && !(p.Satisfied(1) && p.Satisfied(2)) {
			t.Fatalf("gate 3 unlocked with an earlier gate unsatisfied")
		}
	})
}

func TestPropertyValidRoutesNeverReusePacks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := threeGate()
		var route dungeon.Route
		pulls := rapid.IntRange(1, 8).Draw(t, "pulls")
		for i := 0; i < pulls; i++ {
			ids := rapid.SliceOfN(rapid.SampledFrom([]string{"g1-a", "g1-boss", "g2-a", "g2-boss", "g3-a", "g3-boss", "missing"}), 1, 3).Draw(t, fmt.Sprintf("pull%d", i))
			route = append(route, dungeon.RoutePull{PackIDs: ids})
		}
		if dungeon.ValidateRoute(d, route) != nil {
			return
		}
		prog := dungeon.NewProgress(d)
		seen := map[string]bool{}
		for _, pull := range route {
			for _, id := range pull.PackIDs {
				if seen[id] {
					t.Fatalf("accepted route reuses %q", id)
				}
				if _, ok := d.Pack(id); !ok {
					t.Fatalf("accepted route references unknown pack %q", id)
				}
				pk, _ := d.Pack(id)
				if !prog.Unlocked(pk.Gate) {
					t.Fatalf("accepted route enters locked gate %d with %q", pk.Gate, id)
				}
				seen[id] = true
			}
			for _, id := range pull.PackIDs {
				prog.Clear(id)
			}
		}
	})
}

func TestScaleForKey(t *testing.T) {
	s := dungeon.ScaleForKey(1)
	assert.Equal(t, 1.0, s.HealthMultiplier)
	assert.Equal(t, 1.0, s.RewardMultiplier)
	assert.Equal(t, dungeon.ScaleForKey(1), dungeon.ScaleForKey(-4))

	s2 := dungeon.ScaleForKey(2)
	assert.InDelta(t, 1.08, s2.DamageMultiplier, 1e-9)
	assert.InDelta(t, 1.1, s2.RewardMultiplier, 1e-9)
}

func TestScaleForKeyStaysFinite(t *testing.T) {
	top := dungeon.ScaleForKey(dungeon.MaxKeyLevel)
	for _, l := range []int{dungeon.MaxKeyLevel, 9300, math.MaxInt} {
		s := dungeon.ScaleForKey(l)
		assert.False(t, math.IsInf(s.HealthMultiplier, 0), "level %d", l)
		assert.False(t, math.IsInf(s.DamageMultiplier, 0), "level %d", l)
		assert.Equal(t, top, s, "level %d clamps to the maximum", l)
	}
	assert.Greater(t, top.HealthMultiplier, dungeon.ScaleForKey(dungeon.MaxKeyLevel-1).HealthMultiplier)
}

func TestPropertyScaleForKeyIncreasing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		l := rapid.IntRange(1, 40).Draw(t, "level")
		a, b := dungeon.ScaleForKey(l), dungeon.ScaleForKey(l+1)
		if b.HealthMultiplier <= a.HealthMultiplier || b.DamageMultiplier <= a.DamageMultiplier || b.RewardMultiplier <= a.RewardMultiplier {
			t.Fatalf("scaling not increasing at %d: %+v -> %+v", l, a, b)
		}
	})
}

func TestAffixAggregate(t *testing.T) {
	fx := dungeon.Aggregate([]dungeon.Affix{
		{ID: "brutal", Effects: dungeon.AffixEffects{EnemyDamageIncrease: 20}},
		{ID: "hardy", Effects: dungeon.AffixEffects{EnemyHealthIncrease: 30, EnemyDamageIncrease: 10}},
		{ID: "feeble", Effects: dungeon.AffixEffects{PlayerDamageReduction: 25}},
	})
	assert.InDelta(t, 1.3, fx.EnemyDamageFactor(), 1e-9)
	assert.InDelta(t, 1.3, fx.EnemyHealthFactor(), 1e-9)
	assert.InDelta(t, 0.75, fx.PlayerDamageFactor(), 1e-9)
	assert.Equal(t, 1.0, fx.SpeedFactor())
}

func TestCentroidAndGateAt(t *testing.T) {
	d := threeGate()
	c := dungeon.Centroid(d.Packs[:2])
	assert.InDelta(t, 55.0, c.X, 1e-9)
	assert.Equal(t, 1, d.GateAt(c.X))
	assert.Equal(t, 3, d.GateAt(250))
	assert.Equal(t, 0, d.GateAt(1000))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "d.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
id: vault
name: The Vault
time_limit_seconds: 900
start: {x: 0, y: 0}
gates:
  - {index: 1, forces_required: 4, span_start: 0, span_end: 100}
packs:
  - id: p1
    gate: 1
    forces: 4
    position: {x: 40, y: 10}
    members:
      - {enemy: rat, count: 4}
boss:
  enemy: king
  name: Rat King
  phases:
    - {threshold: 0.5, name: frenzy, cooldown_scale: 0.5}
`), 0644))
	d, err := dungeon.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "The Vault", d.Name)
	assert.Equal(t, 4, d.Packs[0].Size())

	require.NoError(t, os.WriteFile(path, []byte("id: x\nunknown_key: 1\n"), 0644))
	_, err = dungeon.Load(path)
	assert.Error(t, err)
}
