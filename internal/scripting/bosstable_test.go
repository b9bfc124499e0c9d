package scripting_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/dungeonrun/internal/game/combat"
	"github.com/cory-johannsen/dungeonrun/internal/game/stats"
	"github.com/cory-johannsen/dungeonrun/internal/scripting"
)

// repoRoot walks up from the test's working directory to find the module root.
func repoRoot(t *testing.T) string {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	root := wd
	for {
		if _, err := os.Stat(filepath.Join(root, "go.mod")); err == nil {
			return root
		}
		parent := filepath.Dir(root)
		if parent == root {
			t.Fatalf("could not find repo root from %s", wd)
		}
		root = parent
	}
}

func writeTempLua(t testing.TB, filename, src string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(src), 0644))
	return dir
}

const wardenScript = `
function boss_abilities(name)
	if name == "Warden" then
		return {
			{ name = "slam", target = engine.target.tank, multiplier = 2, cooldown = 6, cast = 1.5 },
			{ name = "frost nova", target = engine.target.all, multiplier = 0.5, cooldown = 12,
			  damage_type = engine.damage.cold, interruptible = true, effect = "chill", phase = "Frozen" },
			{ name = "guard" },
		}
	end
	return nil
end
`

func TestBossTable_Abilities(t *testing.T) {
	b, err := scripting.NewBossTableFromString(wardenScript, 0, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	got, err := b.Abilities("Warden")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, combat.BossAbility{
		Name: "slam", Target: combat.TargetTank, DamageMultiplier: 2, CooldownSeconds: 6, CastSeconds: 1.5,
	}, got[0])
	assert.Equal(t, combat.TargetAll, got[1].Target)
	assert.Equal(t, stats.Cold, got[1].DamageType)
	assert.True(t, got[1].Interruptible)
	assert.Equal(t, "chill", got[1].Effect)
	assert.Equal(t, "Frozen", got[1].Phase)
	assert.Equal(t, combat.TargetTank, got[2].Target, "target defaults to tank")

	none, err := b.Abilities("Stranger")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestBossTable_AsAbilitySource(t *testing.T) {
	b, err := scripting.NewBossTableFromString(wardenScript, 0, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	got, err := combat.SafeAbilities(b.Source(), "Gravemaw", "Warden")
	require.NoError(t, err)
	assert.Len(t, got, 3, "falls back to the base name")
}

func TestBossTable_NoLookupFunction(t *testing.T) {
	b, err := scripting.NewBossTableFromString(`local x = 1`, 0, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()
	got, err := b.Abilities("anyone")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestBossTable_RuntimeErrorIsReturnedAndLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b, err := scripting.NewBossTableFromString(`function boss_abilities(name) error("broken table") end`, 0, zap.New(core))
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Abilities("Warden")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken table")
	assert.Equal(t, 1, logs.Len())
}

func TestBossTable_MalformedEntries(t *testing.T) {
	for name, src := range map[string]string{
		"not a table":     `function boss_abilities(n) return 5 end`,
		"entry not table": `function boss_abilities(n) return { "slam" } end`,
		"bad number":      `function boss_abilities(n) return { { name = "slam", cooldown = "soon" } } end`,
		"bad string":      `function boss_abilities(n) return { { name = 7 } } end`,
	} {
		t.Run(name, func(t *testing.T) {
			b, err := scripting.NewBossTableFromString(src, 0, zap.NewNop())
			require.NoError(t, err)
			defer b.Close()
			_, err = b.Abilities("Warden")
			assert.Error(t, err)
		})
	}
}

func TestBossTable_BudgetResetsPerLookup(t *testing.T) {
	b, err := scripting.NewBossTableFromString(`
		function boss_abilities(name)
			if name == "loop" then
				while true do end
			end
			return { { name = "slam" } }
		end
	`, 200, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Abilities("loop")
	require.Error(t, err, "runaway script is stopped")

	got, err := b.Abilities("Warden")
	require.NoError(t, err, "a fresh budget is installed for the next lookup")
	assert.Len(t, got, 1)
}

func TestBossTable_InvalidScript(t *testing.T) {
	_, err := scripting.NewBossTableFromString(`this is not lua @@`, 0, zap.NewNop())
	assert.Error(t, err)

	dir := writeTempLua(t, "bad.lua", `this is not lua @@`)
	_, err = scripting.LoadBossTable(dir, 0, zap.NewNop())
	assert.Error(t, err)

	_, err = scripting.LoadBossTable(filepath.Join(t.TempDir(), "missing"), 0, zap.NewNop())
	assert.Error(t, err)
}

func TestBossTable_LoadDirectoryInOrder(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.lua"), []byte(`slam = { name = "slam" }`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.lua"), []byte(`function boss_abilities(n) return { slam } end`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`ignored`), 0644))

	b, err := scripting.LoadBossTable(dir, 0, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()
	got, err := b.Abilities("x")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "slam", got[0].Name)
}

func TestBossTable_ContentScriptsValidate(t *testing.T) {
	b, err := scripting.LoadBossTable(filepath.Join(repoRoot(t), "content", "bosses"), 0, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	for _, name := range []string{"Crypt Warden", "Drowned King"} {
		got, err := combat.SafeAbilities(b.Source(), name, "")
		require.NoError(t, err, name)
		assert.NotEmpty(t, got, name)
	}
}

func TestBossTable_ConcurrentLookups(t *testing.T) {
	b, err := scripting.NewBossTableFromString(wardenScript, 0, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := b.Abilities("Warden")
			assert.NoError(t, err)
			assert.Len(t, got, 3)
		}()
	}
	wg.Wait()
}

func TestProperty_UnknownBossNeverErrors(t *testing.T) {
	b, err := scripting.NewBossTableFromString(wardenScript, 0, zap.NewNop())
	require.NoError(t, err)
	defer b.Close()
	rapid.Check(t, func(rt *rapid.T) {
		name := rapid.StringMatching(`[a-z ]{0,12}`).Draw(rt, "name")
		got, err := b.Abilities(name)
		if err != nil || len(got) != 0 {
			rt.Fatalf("lookup %q: got %v, %v", name, got, err)
		}
	})
}
