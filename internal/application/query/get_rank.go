package query

import (
	"context"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANK QUERY
// The progress card of one member. A member with no record and a member
// with zero experience look the same.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankQuery contains the parameters of a rank request.
type GetRankQuery struct {
	GuildID string

	// CallerID is the member who asked.
	CallerID string

	// TargetUserID overrides CallerID when set.
	TargetUserID string

	// IncludePosition also computes the place in the full ranking.
	IncludePosition bool
}

// Subject returns the member the query is about.
func (q GetRankQuery) Subject() string {
	if q.TargetUserID != "" {
		return q.TargetUserID
	}
	return q.CallerID
}

// Validate validates the query.
func (q GetRankQuery) Validate() error {
	if _, err := shared.NewGuildID(q.GuildID); err != nil {
		return err
	}
	if _, err := shared.NewUserID(q.Subject()); err != nil {
		return err
	}
	return nil
}

// GetRankResult is the rank card.
type GetRankResult struct {
	UserID shared.UserID `json:"user_id"`

	// HasExperience is false for absent members and members with zero exp.
	HasExperience bool `json:"has_experience"`

	Exp   int64  `json:"exp"`
	Level int    `json:"level"`
	Zone  string `json:"zone"`

	// Position and Members are set when IncludePosition was requested.
	Position shared.Rank `json:"position,omitempty"`
	Members  int         `json:"members,omitempty"`
}

// GetRankHandler handles rank requests.
type GetRankHandler struct {
	repo progress.Reader
}

// NewGetRankHandler creates a new handler.
func NewGetRankHandler(repo progress.Reader) *GetRankHandler {
	return &GetRankHandler{repo: repo}
}

// Handle executes the query.
func (h *GetRankHandler) Handle(ctx context.Context, q GetRankQuery) (*GetRankResult, error) {
	if err := q.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetRank", shared.ErrValidation, "invalid rank query", err)
	}
	guild := shared.GuildID(q.GuildID)
	user := shared.UserID(q.Subject())

	rec, err := h.repo.Get(ctx, guild, user)
	if err != nil {
		return nil, shared.WrapError("query", "GetRank", shared.ErrServiceUnavailable, "failed to read record", err)
	}

	res := &GetRankResult{
		UserID:        user,
		HasExperience: !rec.IsZero(),
		Exp:           rec.Exp,
		Level:         rec.Level,
		Zone:          rec.Zone(),
	}

	if q.IncludePosition && res.HasExperience {
		standings, err := h.repo.AllForGuild(ctx, guild)
		if err != nil {
			return nil, shared.WrapError("query", "GetRank", shared.ErrServiceUnavailable, "failed to read standings", err)
		}
		res.Position = leaderboard.PositionOf(standings, user)
		res.Members = len(standings)
	}

	return res, nil
}
