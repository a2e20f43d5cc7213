package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
)

func add(n int64) progress.UpdateFunc {
	return func(cur progress.Record) (progress.Record, error) {
		return progress.ApplyDelta(cur, n).Record, nil
	}
}

func TestStore_UpdateAndGet(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	rec, err := s.Get(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, progress.NewRecord(), rec)

	all, err := s.AllForGuild(ctx, "g")
	require.NoError(t, err)
	assert.Empty(t, all, "Get must not create entries")

	rec, err = s.Update(ctx, "g", "u", add(105))
	require.NoError(t, err)
	assert.Equal(t, progress.Record{Exp: 105, Level: 2}, rec)
}

func TestStore_UpdateErrorWritesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)
	boom := errors.New("boom")

	_, err := s.Update(ctx, "g", "u", func(progress.Record) (progress.Record, error) {
		return progress.Record{}, boom
	})
	require.ErrorIs(t, err, boom)

	all, _ := s.AllForGuild(ctx, "g")
	assert.Empty(t, all)
}

func TestStore_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Update(ctx, "g", "u", add(20))
		}()
	}
	wg.Wait()

	rec, err := s.Get(ctx, "g", "u")
	require.NoError(t, err)
	assert.Equal(t, int64(2000), rec.Exp)
	assert.Equal(t, 21, rec.Level)
}

func TestStore_SeedIsNormalizedAndCopied(t *testing.T) {
	seed := progress.NewLedger()
	seed.Set("g", "u", progress.Record{Exp: 350, Level: 1})

	s := NewStore(seed)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Lookup("g", "u").Level)
	assert.Equal(t, 1, seed.Lookup("g", "u").Level)
}

func TestLeaderboardCache_Versioning(t *testing.T) {
	ctx := context.Background()
	c := NewLeaderboardCache()

	key, board, err := c.Lookup(ctx, "g", 10)
	require.NoError(t, err)
	assert.Nil(t, board)

	// A board computed before a commit must not be served after it.
	require.NoError(t, c.Invalidate(ctx, "g"))
	require.NoError(t, c.Store(ctx, key, &leaderboard.Board{GuildID: "g"}))

	_, board, _ = c.Lookup(ctx, "g", 10)
	assert.Nil(t, board)

	key, _, _ = c.Lookup(ctx, "g", 10)
	require.NoError(t, c.Store(ctx, key, &leaderboard.Board{GuildID: "g"}))
	_, board, _ = c.Lookup(ctx, "g", 10)
	assert.NotNil(t, board)
}
