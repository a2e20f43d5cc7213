package memory

import (
	"context"
	"sync"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// LeaderboardCache is a leaderboard.Cache kept in a map. It follows the same
// versioning scheme as the Redis cache.
type LeaderboardCache struct {
	mu       sync.Mutex
	versions map[shared.GuildID]int64
	boards   map[leaderboard.CacheKey]*leaderboard.Board
}

// NewLeaderboardCache returns an empty cache.
func NewLeaderboardCache() *LeaderboardCache {
	return &LeaderboardCache{
		versions: make(map[shared.GuildID]int64),
		boards:   make(map[leaderboard.CacheKey]*leaderboard.Board),
	}
}

var _ leaderboard.Cache = (*LeaderboardCache)(nil)

// Lookup implements leaderboard.Cache.
func (c *LeaderboardCache) Lookup(_ context.Context, guild shared.GuildID, limit int) (leaderboard.CacheKey, *leaderboard.Board, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := leaderboard.CacheKey{GuildID: guild, Version: c.versions[guild], Limit: limit}
	return key, c.boards[key], nil
}

// Store implements leaderboard.Cache.
func (c *LeaderboardCache) Store(_ context.Context, key leaderboard.CacheKey, board *leaderboard.Board) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key.Version != c.versions[key.GuildID] {
		// computed before a newer commit; nobody can read it anymore
		return nil
	}
	c.boards[key] = board
	return nil
}

// Invalidate implements leaderboard.Cache.
func (c *LeaderboardCache) Invalidate(_ context.Context, guild shared.GuildID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[guild]++
	for k := range c.boards {
		if k.GuildID == guild {
			delete(c.boards, k)
		}
	}
	return nil
}
