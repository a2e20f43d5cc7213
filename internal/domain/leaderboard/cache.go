package leaderboard

import (
	"context"

	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CACHE INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// CacheKey identifies a cached board. Version is the guild's mutation
// counter observed before the board was computed.
type CacheKey struct {
	GuildID shared.GuildID
	Version int64
	Limit   int
}

// Cache stores computed boards per guild. Every committed mutation of a
// guild must call Invalidate before the next read is served, so a key
// obtained from Lookup can never refer to data older than that commit.
type Cache interface {
	// Lookup returns the current key for (guild, limit) and the cached board,
	// or a nil board on a miss.
	Lookup(ctx context.Context, guild shared.GuildID, limit int) (CacheKey, *Board, error)

	// Store saves a board computed after key was obtained.
	Store(ctx context.Context, key CacheKey, board *Board) error

	// Invalidate bumps the guild's version.
	Invalidate(ctx context.Context, guild shared.GuildID) error
}

// Invalidator is the write-side view of Cache.
type Invalidator interface {
	Invalidate(ctx context.Context, guild shared.GuildID) error
}
