package loot_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/cory-johannsen/dungeonrun/internal/game/dice"
	"github.com/cory-johannsen/dungeonrun/internal/game/loot"
)

func roller(logger *zap.Logger) *dice.Roller {
	return dice.NewLoggedRoller(dice.NewSeededSource(1), logger)
}

type panicTable struct{}

func (panicTable) Roll(loot.Request, *dice.Roller) ([]loot.Drop, error) { panic("boom") }

type errTable struct{}

func (errTable) Roll(loot.Request, *dice.Roller) ([]loot.Drop, error) {
	return []loot.Drop{{ItemID: "x"}}, errors.New("table offline")
}

func TestEntryValidate(t *testing.T) {
	ok := loot.Entry{ItemID: "gold", Kind: loot.KindCurrency, Chance: 1, Quantity: "1d6"}
	assert.NoError(t, ok.Validate())

	bad := ok
	bad.Chance = 0
	assert.Error(t, bad.Validate())
	bad = ok
	bad.Kind = "gem"
	assert.Error(t, bad.Validate())
	bad = ok
	bad.Quantity = "lots"
	assert.Error(t, bad.Validate())
}

func TestYAMLTable_Roll(t *testing.T) {
	table := &loot.YAMLTable{Entries: []loot.Entry{
		{ItemID: "gold", Kind: loot.KindCurrency, Chance: 1, Quantity: "2", ScalesWithValue: true},
		{ItemID: "gated", Kind: loot.KindItem, Chance: 1, Quantity: "1", MinKeyLevel: 10},
	}}
	drops, err := table.Roll(loot.Request{EnemyValue: 3, KeyLevel: 2, QuantityBonus: 50, Source: "Ghoul"}, roller(zap.NewNop()))
	require.NoError(t, err)
	require.Len(t, drops, 1)
	assert.Equal(t, "gold", drops[0].ItemID)
	assert.Equal(t, 9, drops[0].Quantity, "2 * 1.5 * 3")
	assert.Equal(t, "Ghoul", drops[0].Source)
	assert.NotEmpty(t, drops[0].ID)
}

func TestYAMLTable_RollIsLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	table := &loot.YAMLTable{Entries: []loot.Entry{
		{ItemID: "gold", Kind: loot.KindCurrency, Chance: 1, Quantity: "1d4"},
	}}
	drops, err := table.Roll(loot.Request{KeyLevel: 2}, roller(zap.New(core)))
	require.NoError(t, err)
	require.Len(t, drops, 1)

	checks := logs.FilterMessage("chance check").All()
	require.Len(t, checks, 1)
	assert.Equal(t, "loot gold", checks[0].ContextMap()["check"])
	rolls := logs.FilterMessage("dice roll").All()
	require.Len(t, rolls, 1)
	assert.EqualValues(t, drops[0].Quantity, rolls[0].ContextMap()["total"])
}

func TestSafeRoll_RecoversPanic(t *testing.T) {
	drops, err := loot.SafeRoll(panicTable{}, loot.Request{}, roller(zap.NewNop()), zap.NewNop())
	assert.Nil(t, drops)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestSafeRoll_DropsPartialResultOnError(t *testing.T) {
	drops, err := loot.SafeRoll(errTable{}, loot.Request{}, roller(zap.NewNop()), nil)
	assert.Nil(t, drops)
	assert.Error(t, err)
}

func TestSafeRoll_NilTable(t *testing.T) {
	drops, err := loot.SafeRoll(nil, loot.Request{}, roller(zap.NewNop()), nil)
	assert.NoError(t, err)
	assert.Empty(t, drops)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - item: gold
    kind: currency
    chance: 1
    quantity: 1d4
`), 0644))
	table, err := loot.Load(path)
	require.NoError(t, err)
	assert.Len(t, table.Entries, 1)

	require.NoError(t, os.WriteFile(path, []byte("entries:\n  - item: gold\n    kind: currency\n    chance: 3\n    quantity: 1d4\n"), 0644))
	_, err = loot.Load(path)
	assert.Error(t, err)
}

func TestDefaultTableValid(t *testing.T) {
	for _, e := range loot.Default().Entries {
		assert.NoError(t, e.Validate(), e.ItemID)
	}
}
