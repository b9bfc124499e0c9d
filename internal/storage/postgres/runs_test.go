package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/dungeonrun/internal/game/combatlog"
	"github.com/cory-johannsen/dungeonrun/internal/game/run"
	"github.com/cory-johannsen/dungeonrun/internal/storage/postgres"
	"github.com/cory-johannsen/dungeonrun/internal/testutil"
)

func result(id string, success bool, deaths int) run.Result {
	r := run.Result{
		RunID:            id,
		Success:          success,
		ElapsedSeconds:   612.5,
		TimeLimitSeconds: 1800,
		ForcesCleared:    110,
		ForcesRequired:   110,
		Experience:       900,
		Deaths:           deaths,
		Ticks:            6125,
		PullsCompleted:   8,
	}
	if !success {
		r.FailReason = run.FailTimeout
		r.FailDetail = "time limit reached"
	}
	return r
}

func TestRunRepository_SaveAndGet(t *testing.T) {
	repo := testutil.NewPool(t).Runs()
	ctx := context.Background()

	doc := combatlog.Document{
		Version:        combatlog.DocumentVersion,
		ID:             "doc-1",
		RunID:          "run-1",
		ExportedAt:     time.Now().UTC(),
		TicksPerSecond: 10,
		Initial:        combatlog.InitialState{DungeonID: "sunken_crypt", KeyLevel: 4},
	}
	require.NoError(t, repo.Save(ctx, postgres.RunRecord{
		DungeonID: "sunken_crypt", KeyLevel: 4, Result: result("run-1", true, 2), Log: &doc,
	}))

	got, err := repo.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "sunken_crypt", got.DungeonID)
	assert.Equal(t, 4, got.KeyLevel)
	assert.Equal(t, "run-1", got.Result.RunID)
	assert.True(t, got.Result.Success)
	assert.Equal(t, 2, got.Result.Deaths)
	assert.Equal(t, 8, got.Result.PullsCompleted)
	require.NotNil(t, got.Log)
	assert.Equal(t, "doc-1", got.Log.ID)
	assert.False(t, got.CreatedAt.IsZero())

	log, err := repo.Log(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, log.Initial.KeyLevel)
}

func TestRunRepository_SaveReplaces(t *testing.T) {
	repo := testutil.NewPool(t).Runs()
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, postgres.RunRecord{DungeonID: "d", KeyLevel: 2, Result: result("r", false, 5)}))
	require.NoError(t, repo.Save(ctx, postgres.RunRecord{DungeonID: "d", KeyLevel: 2, Result: result("r", true, 1)}))

	got, err := repo.Get(ctx, "r")
	require.NoError(t, err)
	assert.True(t, got.Result.Success)
	assert.Equal(t, 1, got.Result.Deaths)

	_, err = repo.Log(ctx, "r")
	assert.ErrorIs(t, err, postgres.ErrNoCombatLog)
}

func TestRunRepository_NotFound(t *testing.T) {
	repo := testutil.NewPool(t).Runs()
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, postgres.ErrRunNotFound)
	_, err = repo.Log(context.Background(), "missing")
	assert.ErrorIs(t, err, postgres.ErrRunNotFound)
}

func TestRunRepository_SaveRequiresIDs(t *testing.T) {
	repo := postgres.NewRunRepository(nil)
	err := repo.Save(context.Background(), postgres.RunRecord{Result: run.Result{RunID: "x"}})
	assert.Error(t, err)
}

func TestRunRepository_ListAndHighestKey(t *testing.T) {
	repo := testutil.NewPool(t).Runs()
	ctx := context.Background()

	level, err := repo.HighestCompletedKey(ctx, "crypt")
	require.NoError(t, err)
	assert.Equal(t, 0, level)

	for i, rec := range []postgres.RunRecord{
		{DungeonID: "crypt", KeyLevel: 3, Result: result("a", true, 0)},
		{DungeonID: "crypt", KeyLevel: 7, Result: result("b", false, 4)},
		{DungeonID: "crypt", KeyLevel: 5, Result: result("c", true, 1)},
		{DungeonID: "spire", KeyLevel: 9, Result: result("d", true, 0)},
	} {
		require.NoError(t, repo.Save(ctx, rec), "record %d", i)
	}

	level, err = repo.HighestCompletedKey(ctx, "crypt")
	require.NoError(t, err)
	assert.Equal(t, 5, level, "failed runs do not count")

	crypt, err := repo.List(ctx, "crypt", 10)
	require.NoError(t, err)
	assert.Len(t, crypt, 3)
	for _, s := range crypt {
		assert.Equal(t, "crypt", s.DungeonID)
		if s.ID == "b" {
			assert.Equal(t, run.FailTimeout, s.FailReason)
		}
	}

	all, err := repo.List(ctx, "", 2)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestPool_Health(t *testing.T) {
	pool := testutil.NewPool(t)
	require.NoError(t, pool.Health(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, pool.Health(ctx))
}
