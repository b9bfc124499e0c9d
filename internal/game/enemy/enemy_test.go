package enemy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/dungeon"
	"github.com/cory-johannsen/dungeonrun/internal/game/enemy"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
)

func catalog(t *testing.T) *enemy.Catalog {
	t.Helper()
	c, err := enemy.NewCatalog(nil,
		&enemy.Definition{ID: "ghoul", Name: "Ghoul", Behavior: enemy.BehaviorMelee, DangerLevel: 3},
		&enemy.Definition{ID: "acolyte", Name: "Acolyte", Behavior: enemy.BehaviorCaster, DangerLevel: 3, DamageType: stats.Fire, EnergyShield: true},
		&enemy.Definition{ID: "brute", Name: "Brute", Behavior: enemy.BehaviorTankbuster, Type: enemy.TypeElite, DangerLevel: 3},
		&enemy.Definition{ID: "lich", Name: "Lich", Behavior: enemy.BehaviorBoss, Type: enemy.TypeBoss, DangerLevel: 4},
	)
	require.NoError(t, err)
	return c
}

func factory(t *testing.T, withhold bool) *enemy.Factory {
	t.Helper()
	names := enemy.NewNamePool([]string{"Alpha", "Beta"}, dice.NewSeededSource(1))
	return enemy.NewFactory(catalog(t), config.Default().Balance, withhold, names, zap.NewNop())
}

func TestDefinition_Validate(t *testing.T) {
	d := &enemy.Definition{ID: "x", Name: "X", Behavior: "dancer"}
	assert.Error(t, d.Validate())
	d = &enemy.Definition{ID: "x", Name: "X", Behavior: enemy.BehaviorMelee, DamageType: "holy"}
	assert.Error(t, d.Validate())
	d = &enemy.Definition{ID: "x", Name: "X", Behavior: enemy.BehaviorMelee, AttackSeconds: -1}
	assert.Error(t, d.Validate())
}

func TestCatalog_UnknownEnemy(t *testing.T) {
	_, err := catalog(t).Get("dragon")
	assert.ErrorIs(t, err, enemy.ErrUnknownEnemy)
}

func TestDefenses_CachedOnDefinition(t *testing.T) {
	c := catalog(t)
	def, err := c.Get("acolyte")
	require.NoError(t, err)
	first := def.Defenses(c.Table())
	assert.Greater(t, first.EnergyShield, 0.0)

	other := enemy.NewLevelTable([]enemy.LevelRow{{Level: 1, Armor: 99999}})
	assert.Equal(t, first, def.Defenses(other), "later calls return the cached profile")
}

func TestLevelTable_Interpolates(t *testing.T) {
	table := enemy.NewLevelTable([]enemy.LevelRow{
		{Level: 10, Health: 100, Armor: 50},
		{Level: 20, Health: 200, Armor: 150},
	})
	row := table.At(15)
	assert.InDelta(t, 150.0, row.Health, 1e-9)
	assert.InDelta(t, 100.0, row.Armor, 1e-9)
	assert.Equal(t, 100.0, table.At(1).Health, "clamped below")
	assert.Equal(t, 200.0, table.At(99).Health, "clamped above")
}

func TestSpawnPull_WithholdsSecondaryPacks(t *testing.T) {
	packs := []dungeon.EnemyPack{
		{ID: "a", Members: []dungeon.PackMember{{EnemyID: "ghoul", Count: 2}}},
		{ID: "b", Members: []dungeon.PackMember{{EnemyID: "acolyte", Count: 1}}},
	}
	spawn, err := factory(t, true).SpawnPull(packs, dungeon.ScaleForKey(2), dungeon.AffixEffects{})
	require.NoError(t, err)
	assert.Len(t, spawn.Active, 2)
	require.Len(t, spawn.Withheld, 1)
	assert.Equal(t, "b", spawn.Withheld[0].PackID)
	assert.Len(t, spawn.All(), 3)

	spawn, err = factory(t, false).SpawnPull(packs, dungeon.ScaleForKey(2), dungeon.AffixEffects{})
	require.NoError(t, err)
	assert.Len(t, spawn.Active, 3)
	assert.Empty(t, spawn.Withheld)
}

func TestSpawnPull_UnknownEnemy(t *testing.T) {
	_, err := factory(t, false).SpawnPull([]dungeon.EnemyPack{{ID: "a", Members: []dungeon.PackMember{{EnemyID: "nope", Count: 1}}}}, dungeon.ScaleForKey(1), dungeon.AffixEffects{})
	assert.ErrorIs(t, err, enemy.ErrUnknownEnemy)
}

func TestSpawnPull_GateBossSharesDrawnName(t *testing.T) {
	packs := []dungeon.EnemyPack{{ID: "boss", GateBoss: true, Members: []dungeon.PackMember{{EnemyID: "brute", Count: 2}}}}
	spawn, err := factory(t, false).SpawnPull(packs, dungeon.ScaleForKey(1), dungeon.AffixEffects{})
	require.NoError(t, err)
	require.Len(t, spawn.Active, 2)
	assert.Equal(t, spawn.Active[0].Name, spawn.Active[1].Name)
	assert.Contains(t, []string{"Alpha", "Beta"}, spawn.Active[0].Name)
	assert.Equal(t, "Brute", spawn.Active[0].BaseName)
	assert.True(t, spawn.Active[0].GateBoss)
	assert.NotEqual(t, spawn.Active[0].ID, spawn.Active[1].ID)
}

func TestSpawn_ScalingLayers(t *testing.T) {
	f := factory(t, false)
	pack := []dungeon.EnemyPack{{ID: "a", Members: []dungeon.PackMember{{EnemyID: "ghoul", Count: 1}}}}
	base, err := f.SpawnPull(pack, dungeon.ScaleForKey(1), dungeon.AffixEffects{})
	require.NoError(t, err)
	scaled, err := f.SpawnPull(pack, dungeon.ScaleForKey(5), dungeon.AffixEffects{EnemyHealthIncrease: 50, EnemyDamageIncrease: 20})
	require.NoError(t, err)

	k := dungeon.ScaleForKey(5)
	assert.InDelta(t, base.Active[0].MaxHealth*k.HealthMultiplier*1.5, scaled.Active[0].MaxHealth, 1e-6)
	assert.InDelta(t, base.Active[0].Damage*k.DamageMultiplier*1.2, scaled.Active[0].Damage, 1e-6)

	gate := []dungeon.EnemyPack{{ID: "g", GateBoss: true, Members: []dungeon.PackMember{{EnemyID: "ghoul", Count: 1}}}}
	mini, err := f.SpawnPull(gate, dungeon.ScaleForKey(1), dungeon.AffixEffects{})
	require.NoError(t, err)
	assert.Greater(t, mini.Active[0].MaxHealth, base.Active[0].MaxHealth, "gate bosses are tankier than trash")

	boss, err := f.SpawnBoss(dungeon.DungeonBoss{EnemyID: "lich", Name: "Vael the Lich"}, dungeon.ScaleForKey(1), dungeon.AffixEffects{})
	require.NoError(t, err)
	assert.True(t, boss.FinalBoss)
	assert.Equal(t, enemy.BehaviorBoss, boss.Behavior)
	assert.Equal(t, "Vael the Lich", boss.Name)
	assert.Equal(t, "Lich", boss.BaseName)
	assert.Greater(t, boss.MaxHealth, mini.Active[0].MaxHealth)
}

func TestNamePool_NoDuplicatesUntilExhausted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		size := rapid.IntRange(1, len(enemy.DefaultBossNames)).Draw(t, "size")
		seed := rapid.Uint64().Draw(t, "seed")
		pool := enemy.NewNamePool(enemy.DefaultBossNames[:size], dice.NewSeededSource(seed))
		draws := rapid.IntRange(0, size).Draw(t, "draws")
		seen := map[string]bool{}
		for i := 0; i < draws; i++ {
			n := pool.Draw()
			if seen[n] {
				t.Fatalf("duplicate %q after %d draws from pool of %d", n, i, size)
			}
			seen[n] = true
		}
		if pool.Remaining() != size-draws {
			t.Fatalf("remaining %d, want %d", pool.Remaining(), size-draws)
		}
	})
}

func TestNamePool_AllowsDuplicatesAfterExhaustion(t *testing.T) {
	pool := enemy.NewNamePool([]string{"Only"}, dice.NewSeededSource(3))
	assert.Equal(t, "Only", pool.Draw())
	assert.Equal(t, "Only", pool.Draw())
	assert.Equal(t, "", enemy.NewNamePool(nil, dice.NewSeededSource(3)).Draw())
}

func TestLoadCatalog(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rat.yaml"), []byte(`
id: rat
name: Plague Rat
behavior: melee
danger_level: 1
damage_type: chaos
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0644))
	c, err := enemy.LoadCatalog(dir, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"rat"}, c.IDs())
	def, err := c.Get("rat")
	require.NoError(t, err)
	assert.Equal(t, 2.0, def.AttackSeconds, "defaults applied")
	assert.Equal(t, stats.Chaos, def.DamageType)
}
