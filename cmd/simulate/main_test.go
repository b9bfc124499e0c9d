package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/cory-johannsen/dungeonrun/internal/config"
	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/run"
)

func testOptions(t *testing.T) options {
	return options{
		contentDir: "../../content",
		dungeonID:  "sunken_crypt",
		teamID:     "default",
		keyLevel:   2,
		runs:       3,
		parallel:   2,
		seed:       42,
		logDir:     filepath.Join(t.TempDir(), "logs"),
	}
}

func TestSimulate_WritesReportAndLogs(t *testing.T) {
	o := testOptions(t)
	o.affixes = "fortified,hasty"
	var out bytes.Buffer
	require.NoError(t, simulate(context.Background(), config.Default(), o, zap.NewNop(), &out))

	assert.Contains(t, out.String(), "Sunken Crypt +2")
	assert.Contains(t, out.String(), "success rate")

	files, err := os.ReadDir(o.logDir)
	require.NoError(t, err)
	require.Len(t, files, 3)
	f, err := os.Open(filepath.Join(o.logDir, files[0].Name()))
	require.NoError(t, err)
	defer f.Close()
	doc, err := combatlog.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, "sunken_crypt", doc.Initial.DungeonID)
	assert.NotEmpty(t, doc.Entries)
}

func TestSimulate_RejectsBadOptions(t *testing.T) {
	for name, mutate := range map[string]func(*options){
		"no runs":         func(o *options) { o.runs = 0 },
		"unknown dungeon": func(o *options) { o.dungeonID = "nowhere" },
		"unknown affix":   func(o *options) { o.affixes = "volcanic" },
		"unknown team":    func(o *options) { o.teamID = "strangers" },
		"missing content": func(o *options) { o.contentDir = filepath.Join(t.TempDir(), "none") },
	} {
		t.Run(name, func(t *testing.T) {
			o := testOptions(t)
			mutate(&o)
			assert.Error(t, simulate(context.Background(), config.Default(), o, zap.NewNop(), &bytes.Buffer{}))
		})
	}
}

func TestSummarize(t *testing.T) {
	r := summarize([]run.Result{
		{Success: true, ElapsedSeconds: 100, Deaths: 1, ForcesCleared: 100,
			Players: []run.PlayerStats{{Name: "Kiva", DPS: 30}}},
		{FailReason: run.FailTimeout, FailDetail: "time limit reached", ElapsedSeconds: 300, Deaths: 3, ForcesCleared: 50,
			Players: []run.PlayerStats{{Name: "Kiva", DPS: 10}}},
	})
	assert.Equal(t, 2, r.Runs)
	assert.Equal(t, 1, r.Successes)
	assert.Equal(t, map[string]int{"timeout: time limit reached": 1}, r.Failures)
	assert.InDelta(t, 200.0, r.AvgElapsed, 1e-9)
	assert.InDelta(t, 2.0, r.AvgDeaths, 1e-9)
	assert.InDelta(t, 75.0, r.AvgForces, 1e-9)
	assert.InDelta(t, 20.0, r.PlayerDPS["Kiva"], 1e-9)

	var out bytes.Buffer
	writeReport(&out, "Crypt", 3, nil, time.Second)
	assert.Contains(t, out.String(), "0.0%")
}
