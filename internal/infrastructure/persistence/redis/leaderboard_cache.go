package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// TTLLeaderboardCache is the default lifetime of a cached board.
const TTLLeaderboardCache = 5 * time.Minute

// LeaderboardCache is a leaderboard.Cache on Redis. A board is stored
// under a key that embeds the guild's version, so bumping the version
// makes every older board unreachable; the TTL reclaims them.
type LeaderboardCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// NewLeaderboardCache creates a cache on client. A non-positive ttl uses
// TTLLeaderboardCache.
func NewLeaderboardCache(client redis.UniversalClient, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return &LeaderboardCache{client: client, ttl: ttl}
}

// Lookup implements leaderboard.Cache.
func (c *LeaderboardCache) Lookup(ctx context.Context, guild shared.GuildID, limit int) (leaderboard.CacheKey, *leaderboard.Board, error) {
	key := leaderboard.CacheKey{GuildID: guild, Limit: limit}

	version, err := c.version(ctx, guild)
	if err != nil {
		return key, nil, err
	}
	key.Version = version

	data, err := c.client.Get(ctx, BoardKey(guild.String(), version, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return key, nil, nil
	}
	if err != nil {
		return key, nil, fmt.Errorf("get board: %w", err)
	}

	var board leaderboard.Board
	if err := json.Unmarshal(data, &board); err != nil {
		return key, nil, fmt.Errorf("%w: %v", ErrBadEntry, err)
	}
	return key, &board, nil
}

// Store implements leaderboard.Cache. Boards computed under an older
// version are dropped.
func (c *LeaderboardCache) Store(ctx context.Context, key leaderboard.CacheKey, board *leaderboard.Board) error {
	if board == nil {
		return nil
	}
	current, err := c.version(ctx, key.GuildID)
	if err != nil {
		return err
	}
	if current != key.Version {
		return nil
	}

	data, err := json.Marshal(board)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadEntry, err)
	}
	if err := c.client.Set(ctx, BoardKey(key.GuildID.String(), key.Version, key.Limit), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set board: %w", err)
	}
	return nil
}

// Invalidate implements leaderboard.Cache.
func (c *LeaderboardCache) Invalidate(ctx context.Context, guild shared.GuildID) error {
	if err := c.client.Incr(ctx, VersionKey(guild.String())).Err(); err != nil {
		return fmt.Errorf("bump version: %w", err)
	}
	return nil
}

func (c *LeaderboardCache) version(ctx context.Context, guild shared.GuildID) (int64, error) {
	v, err := c.client.Get(ctx, VersionKey(guild.String())).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get version: %w", err)
	}
	return v, nil
}
