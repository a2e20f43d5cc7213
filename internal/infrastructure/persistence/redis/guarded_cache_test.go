package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/memory"
	"github.com/realm-weaver/weaver-bot/pkg/circuitbreaker"
)

var errDown = errors.New("connection refused")

// flakyCache forwards to an in-process cache unless down is set.
type flakyCache struct {
	*memory.LeaderboardCache
	down  bool
	calls int
}

func (f *flakyCache) Lookup(ctx context.Context, guild shared.GuildID, limit int) (leaderboard.CacheKey, *leaderboard.Board, error) {
	f.calls++
	if f.down {
		return leaderboard.CacheKey{}, nil, errDown
	}
	return f.LeaderboardCache.Lookup(ctx, guild, limit)
}

func (f *flakyCache) Invalidate(ctx context.Context, guild shared.GuildID) error {
	f.calls++
	if f.down {
		return errDown
	}
	return f.LeaderboardCache.Invalidate(ctx, guild)
}

func TestGuardedCache_MissedInvalidationHidesStaleBoard(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{LeaderboardCache: memory.NewLeaderboardCache()}
	c := NewGuardedCache(inner, circuitbreaker.New("test", circuitbreaker.WithFailureThreshold(100)))

	key, board, err := c.Lookup(ctx, "g", 10)
	require.NoError(t, err)
	require.Nil(t, board)
	require.NoError(t, c.Store(ctx, key, &leaderboard.Board{GuildID: "g", Members: 1}))

	inner.down = true
	require.ErrorIs(t, c.Invalidate(ctx, "g"), errDown)
	assert.Equal(t, 1, c.Pending())

	_, _, err = c.Lookup(ctx, "g", 10)
	assert.ErrorContains(t, err, "pending invalidation")

	inner.down = false
	_, board, err = c.Lookup(ctx, "g", 10)
	require.NoError(t, err)
	assert.Nil(t, board, "the board stored before the missed invalidation must not be served")
	assert.Zero(t, c.Pending())
}

func TestGuardedCache_OpenBreakerSkipsCache(t *testing.T) {
	ctx := context.Background()
	inner := &flakyCache{LeaderboardCache: memory.NewLeaderboardCache(), down: true}
	breaker := circuitbreaker.New("test",
		circuitbreaker.WithFailureThreshold(2),
		circuitbreaker.WithTimeout(time.Hour),
	)
	c := NewGuardedCache(inner, breaker)

	for i := 0; i < 2; i++ {
		_, _, err := c.Lookup(ctx, "g", 10)
		require.ErrorIs(t, err, errDown)
	}
	require.Equal(t, circuitbreaker.StateOpen, breaker.State())

	_, _, err := c.Lookup(ctx, "g", 10)
	assert.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
}
