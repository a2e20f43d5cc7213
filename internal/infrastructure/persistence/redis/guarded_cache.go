package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/circuitbreaker"
)

// GuardedCache puts a circuit breaker in front of a leaderboard cache.
//
// A guild whose invalidation did not reach the cache is marked dirty. Lookups
// for a dirty guild fail until a later invalidation succeeds, so a board
// cached before the missed invalidation is never served.
type GuardedCache struct {
	inner   leaderboard.Cache
	breaker *circuitbreaker.CircuitBreaker

	mu    sync.Mutex
	dirty map[shared.GuildID]struct{}
}

var _ leaderboard.Cache = (*GuardedCache)(nil)

// NewGuardedCache wraps inner with breaker.
func NewGuardedCache(inner leaderboard.Cache, breaker *circuitbreaker.CircuitBreaker) *GuardedCache {
	return &GuardedCache{
		inner:   inner,
		breaker: breaker,
		dirty:   make(map[shared.GuildID]struct{}),
	}
}

// Lookup implements leaderboard.Cache.
func (c *GuardedCache) Lookup(ctx context.Context, guild shared.GuildID, limit int) (leaderboard.CacheKey, *leaderboard.Board, error) {
	if c.isDirty(guild) {
		if err := c.Invalidate(ctx, guild); err != nil {
			return leaderboard.CacheKey{}, nil, fmt.Errorf("guild %s has a pending invalidation: %w", guild, err)
		}
	}

	var (
		key   leaderboard.CacheKey
		board *leaderboard.Board
	)
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		key, board, err = c.inner.Lookup(ctx, guild, limit)
		return err
	})
	return key, board, err
}

// Store implements leaderboard.Cache.
func (c *GuardedCache) Store(ctx context.Context, key leaderboard.CacheKey, board *leaderboard.Board) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.inner.Store(ctx, key, board)
	})
}

// Invalidate implements leaderboard.Cache.
func (c *GuardedCache) Invalidate(ctx context.Context, guild shared.GuildID) error {
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.inner.Invalidate(ctx, guild)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.dirty[guild] = struct{}{}
		return err
	}
	delete(c.dirty, guild)
	return nil
}

// Pending returns the number of guilds with a missed invalidation.
func (c *GuardedCache) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty)
}

func (c *GuardedCache) isDirty(guild shared.GuildID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.dirty[guild]
	return ok
}
