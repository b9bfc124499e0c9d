package condition_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/dungeonrun/internal/game/condition"
)

func TestDefaultRegistry_HasBuiltins(t *testing.T) {
	reg := condition.DefaultRegistry()
	for _, id := range []string{condition.Fortify, condition.Rally, condition.Renew, condition.Sunder,
		condition.Enrage, condition.Ignite, condition.Weakened} {
		def, ok := reg.Get(id)
		require.True(t, ok, id)
		assert.NoError(t, def.Validate(), id)
	}
}

func TestEffectDef_Validate(t *testing.T) {
	valid := condition.EffectDef{ID: "x", Name: "X", Kind: condition.KindBuff, DurationSeconds: 1}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Kind = "aura"
	assert.Error(t, bad.Validate())

	bad = valid
	bad.DurationSeconds = 0
	assert.Error(t, bad.Validate())

	bad = valid
	bad.ID = ""
	assert.Error(t, bad.Validate())
}

func TestLoadDirectory_OverridesBuiltins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "fortify.yaml"), []byte(`
id: fortify
name: Iron Skin
kind: buff
duration_seconds: 12
damage_taken_pct: -50
`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	reg, err := condition.LoadDirectory(dir)
	require.NoError(t, err)
	def, ok := reg.Get("fortify")
	require.True(t, ok)
	assert.Equal(t, "Iron Skin", def.Name)
	assert.Equal(t, -50.0, def.DamageTakenPct)
	_, ok = reg.Get(condition.Rally)
	assert.True(t, ok, "built-ins remain")
}

func TestLoadDirectory_UnknownField(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("id: a\nname: A\nkind: buff\nduration_seconds: 1\nbogus: 1\n"), 0644))
	_, err := condition.LoadDirectory(dir)
	assert.Error(t, err)
}

func TestLoadDirectory_MissingDir(t *testing.T) {
	_, err := condition.LoadDirectory("/nonexistent")
	assert.Error(t, err)
}
