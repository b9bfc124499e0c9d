package postgres_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cory-johannsen/dungeonrun/internal/game/run"
	"github.com/cory-johannsen/dungeonrun/internal/storage/postgres"
	"github.com/cory-johannsen/dungeonrun/internal/testutil"
)

func TestProgressionRepository_SeedAndAward(t *testing.T) {
	repo := testutil.NewPool(t).Progression(0)
	ctx := context.Background()

	require.NoError(t, repo.Seed(ctx, "brann", 2))
	require.NoError(t, repo.Seed(ctx, "brann", 9), "seeding twice keeps the first row")

	p, err := repo.Get(ctx, "brann")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Level)
	assert.Equal(t, run.ExperienceForLevel(2), p.Experience)

	up, err := repo.AwardExperience("brann", 299)
	require.NoError(t, err)
	assert.False(t, up)
	up, err = repo.AwardExperience("brann", 1)
	require.NoError(t, err)
	assert.True(t, up)

	p, err = repo.Get(ctx, "brann")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Level)
	assert.Equal(t, 400, p.Experience)

	_, err = repo.AwardExperience("brann", -1)
	assert.Error(t, err)
}

func TestProgressionRepository_AwardCreatesRow(t *testing.T) {
	repo := testutil.NewPool(t).Progression(0)
	up, err := repo.AwardExperience("stranger", 50)
	require.NoError(t, err)
	assert.False(t, up)

	p, err := repo.Get(context.Background(), "stranger")
	require.NoError(t, err)
	assert.Equal(t, 1, p.Level)
	assert.Equal(t, 50, p.Experience)
}

func TestProgressionRepository_MaxLevel(t *testing.T) {
	repo := testutil.NewPool(t).Progression(3)
	_, err := repo.AwardExperience("kiva", 1_000_000)
	require.NoError(t, err)
	p, err := repo.Get(context.Background(), "kiva")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Level)
}

func TestProgressionRepository_DeathPenalty(t *testing.T) {
	repo := testutil.NewPool(t).Progression(0)
	ctx := context.Background()
	require.NoError(t, repo.Seed(ctx, "sela", 3))
	_, err := repo.AwardExperience("sela", 50)
	require.NoError(t, err)

	require.NoError(t, repo.ApplyDeathPenalty("sela"))
	p, err := repo.Get(ctx, "sela")
	require.NoError(t, err)
	assert.Equal(t, 445, p.Experience)
	assert.Equal(t, 3, p.Level)
	assert.Equal(t, 1, p.Deaths)
}

func TestProgressionRepository_NotFound(t *testing.T) {
	repo := testutil.NewPool(t).Progression(0)
	_, err := repo.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, postgres.ErrCharacterNotFound)
}

func TestProgressionRepository_ConcurrentAwards(t *testing.T) {
	repo := testutil.NewPool(t).Progression(0)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.AwardExperience("orin", 10)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	p, err := repo.Get(context.Background(), "orin")
	require.NoError(t, err)
	assert.Equal(t, 200, p.Experience, "row locks serialize the updates")
	assert.Equal(t, 2, p.Level)
}
