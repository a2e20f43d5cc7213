package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "leaderboard:ver:g1", VersionKey("g1"))
	assert.Equal(t, "leaderboard:top:g1:v3:l10", BoardKey("g1", 3, 10))
}

func newCache(t *testing.T) *LeaderboardCache {
	t.Helper()
	addr := os.Getenv("WEAVER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WEAVER_TEST_REDIS_ADDR not set")
	}
	client, err := Connect(context.Background(), Config{Addr: addr})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return NewLeaderboardCache(client, time.Minute)
}

func TestLeaderboardCache_VersioningAgainstRedis(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	guild := shared.GuildID("test-" + uuid.NewString())

	key, board, err := c.Lookup(ctx, guild, 10)
	require.NoError(t, err)
	assert.Nil(t, board)
	assert.Equal(t, int64(0), key.Version)

	stored := &leaderboard.Board{GuildID: guild, Members: 1, Entries: []leaderboard.Entry{{Position: 1, UserID: "u", Exp: 5, Level: 1, Zone: "Awakened Zone"}}}
	require.NoError(t, c.Store(ctx, key, stored))

	_, board, err = c.Lookup(ctx, guild, 10)
	require.NoError(t, err)
	require.NotNil(t, board)
	assert.Equal(t, stored.Entries, board.Entries)

	require.NoError(t, c.Invalidate(ctx, guild))

	// A board computed before the bump is never stored under the new version.
	require.NoError(t, c.Store(ctx, key, stored))
	key2, board, err := c.Lookup(ctx, guild, 10)
	require.NoError(t, err)
	assert.Nil(t, board)
	assert.Equal(t, int64(1), key2.Version)
}
