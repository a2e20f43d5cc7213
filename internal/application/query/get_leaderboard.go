// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Top members of a guild by experience. Ties keep first-seen order.
// ══════════════════════════════════════════════════════════════════════════════

// GetLeaderboardQuery contains the parameters of a leaderboard request.
type GetLeaderboardQuery struct {
	GuildID string

	// Limit is the number of rows (default 10, max 100).
	Limit int
}

// Validate validates the query and applies the default limit.
func (q *GetLeaderboardQuery) Validate() error {
	if _, err := shared.NewGuildID(q.GuildID); err != nil {
		return err
	}
	if q.Limit < 0 {
		return shared.NewDomainError("query", "GetLeaderboard", shared.ErrValueOutOfRange, "limit cannot be negative")
	}
	q.Limit = shared.NormalizeLimit(q.Limit)
	return nil
}

// GetLeaderboardResult contains the board and where it came from.
type GetLeaderboardResult struct {
	Board     *leaderboard.Board
	FromCache bool
}

// GetLeaderboardHandler handles leaderboard requests.
type GetLeaderboardHandler struct {
	repo   progress.Reader
	cache  leaderboard.Cache
	logger *logger.Logger
}

// NewGetLeaderboardHandler creates a new handler. cache may be nil.
func NewGetLeaderboardHandler(repo progress.Reader, cache leaderboard.Cache, log *logger.Logger) *GetLeaderboardHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetLeaderboardHandler{
		repo:   repo,
		cache:  cache,
		logger: log.With(logger.Component("get_leaderboard")),
	}
}

// Handle executes the query.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrValidation, "invalid leaderboard query", err)
	}
	guild := shared.GuildID(q.GuildID)

	// The key must be taken before reading the store so a concurrent commit
	// makes the result unreachable instead of stale.
	key, hit := h.tryGetFromCache(ctx, guild, q.Limit)
	if hit.board != nil {
		return &GetLeaderboardResult{Board: hit.board, FromCache: true}, nil
	}

	standings, err := h.repo.AllForGuild(ctx, guild)
	if err != nil {
		return nil, shared.WrapError("query", "GetLeaderboard", shared.ErrServiceUnavailable, "failed to read standings", err)
	}
	board := leaderboard.Build(guild, standings, q.Limit)

	if hit.usable {
		if err := h.cache.Store(ctx, key, board); err != nil {
			h.logger.Warn("failed to cache leaderboard", logger.GuildID(guild.String()), logger.Err(err))
		}
	}

	return &GetLeaderboardResult{Board: board}, nil
}

type cacheHit struct {
	board  *leaderboard.Board
	usable bool
}

// tryGetFromCache returns the key for a later Store and the cached board if
// any. Cache errors are logged and disable caching for this request.
func (h *GetLeaderboardHandler) tryGetFromCache(ctx context.Context, guild shared.GuildID, limit int) (leaderboard.CacheKey, cacheHit) {
	if h.cache == nil {
		return leaderboard.CacheKey{}, cacheHit{}
	}
	key, board, err := h.cache.Lookup(ctx, guild, limit)
	if err != nil {
		h.logger.Warn("leaderboard cache lookup failed", logger.GuildID(guild.String()), logger.Err(err))
		return leaderboard.CacheKey{}, cacheHit{}
	}
	return key, cacheHit{board: board, usable: true}
}
