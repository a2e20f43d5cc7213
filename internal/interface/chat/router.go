// Package chat adapts chat platform traffic (messages, slash commands and
// member joins) to the application layer and renders the replies.
package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/realm-weaver/weaver-bot/internal/application/command"
	"github.com/realm-weaver/weaver-bot/internal/application/query"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// Command names.
const (
	CommandRank        = "rank"
	CommandLeaderboard = "leaderboard"
	CommandAddExp      = string(command.AdjustmentAdd)
	CommandRemoveExp   = string(command.AdjustmentRemove)
)

// ══════════════════════════════════════════════════════════════════════════════
// INBOUND TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Activity is one message posted in a guild.
type Activity struct {
	GuildID string
	UserID  string
	IsBot   bool
	At      time.Time
}

// Request is one slash command invocation.
type Request struct {
	Name     string
	GuildID  string
	CallerID string

	// TargetUserID is the user option of rank, addexp and removeexp.
	TargetUserID string

	// Amount is the raw amount option. Empty when absent.
	Amount json.Number

	CallerIsAdmin bool
}

// Join reports a new guild member.
type Join struct {
	GuildID     string
	UserID      string
	DisplayName string
}

// ParseAmount converts a raw amount option. An empty value is reported as
// absent, a non-integer value as ErrAmountNotInteger.
func ParseAmount(raw json.Number) (*int64, error) {
	s := strings.TrimSpace(raw.String())
	if s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, shared.ErrAmountNotInteger)
	}
	return &n, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

// CommandObserver is told the outcome of every command.
type CommandObserver func(name string, err error)

// Handlers groups the application handlers the router dispatches to.
type Handlers struct {
	Award       *command.AwardActivityHandler
	Adjust      *command.AdjustExperienceHandler
	Joined      *command.MemberJoinedHandler
	Leaderboard *query.GetLeaderboardHandler
	Rank        *query.GetRankHandler
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Logger    *logger.Logger
	Presenter *Presenter
	Observer  CommandObserver

	// LeaderboardLimit is the number of rows of /leaderboard.
	LeaderboardLimit int
}

// Router routes platform traffic to the application handlers.
type Router struct {
	h         Handlers
	presenter *Presenter
	observer  CommandObserver
	limit     int
	logger    *logger.Logger
}

// NewRouter creates a new router.
func NewRouter(h Handlers, cfg RouterConfig) *Router {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Presenter == nil {
		cfg.Presenter = NewPresenter(nil)
	}
	if cfg.LeaderboardLimit <= 0 {
		cfg.LeaderboardLimit = shared.DefaultLeaderboardLimit
	}
	return &Router{
		h:         h,
		presenter: cfg.Presenter,
		observer:  cfg.Observer,
		limit:     cfg.LeaderboardLimit,
		logger:    cfg.Logger.With(logger.Component("chat_router")),
	}
}

// HandleActivity awards experience for a message. Failures are logged and
// returned; the platform has nothing to show for them.
func (r *Router) HandleActivity(ctx context.Context, a Activity) error {
	_, err := r.h.Award.Handle(ctx, command.AwardActivityCommand{
		GuildID: a.GuildID,
		UserID:  a.UserID,
		IsBot:   a.IsBot,
		At:      a.At,
	})
	if err != nil {
		r.logger.Warn("activity not recorded",
			logger.GuildID(a.GuildID),
			logger.UserID(a.UserID),
			logger.Err(err),
		)
	}
	return err
}

// HandleJoin publishes a member join.
func (r *Router) HandleJoin(ctx context.Context, j Join) error {
	err := r.h.Joined.Handle(ctx, command.MemberJoinedCommand{
		GuildID:     j.GuildID,
		UserID:      j.UserID,
		DisplayName: j.DisplayName,
	})
	if err != nil {
		r.logger.Warn("member join ignored", logger.GuildID(j.GuildID), logger.Err(err))
	}
	return err
}

// HandleCommand executes a slash command. It always returns a reply.
func (r *Router) HandleCommand(ctx context.Context, req Request) Result {
	start := time.Now()
	res, err := r.dispatch(ctx, req)

	log := r.logger.With(
		logger.CommandName(req.Name),
		logger.GuildID(req.GuildID),
		logger.UserID(req.CallerID),
		logger.Latency(time.Since(start)),
	)
	switch {
	case err == nil:
		log.Debug("command handled")
	case shared.IsForbidden(err), shared.IsValidation(err), shared.IsNotFound(err):
		log.Info("command rejected", logger.Err(err))
	default:
		log.Error("command failed", logger.Err(err))
	}
	if r.observer != nil {
		r.observer(req.Name, err)
	}

	if err != nil {
		return r.presenter.Failure(req.Name, err)
	}
	return res
}

func (r *Router) dispatch(ctx context.Context, req Request) (Result, error) {
	guild := shared.GuildID(strings.TrimSpace(req.GuildID))

	switch req.Name {
	case CommandRank:
		res, err := r.h.Rank.Handle(ctx, query.GetRankQuery{
			GuildID:         req.GuildID,
			CallerID:        req.CallerID,
			TargetUserID:    req.TargetUserID,
			IncludePosition: true,
		})
		if err != nil {
			return Result{}, err
		}
		return r.presenter.Rank(guild, res), nil

	case CommandLeaderboard:
		res, err := r.h.Leaderboard.Handle(ctx, query.GetLeaderboardQuery{GuildID: req.GuildID, Limit: r.limit})
		if err != nil {
			return Result{}, err
		}
		return r.presenter.Leaderboard(res.Board, r.limit), nil

	case CommandAddExp, CommandRemoveExp:
		cmd := command.AdjustExperienceCommand{
			Adjustment:    command.Adjustment(req.Name),
			GuildID:       req.GuildID,
			CallerID:      req.CallerID,
			TargetUserID:  req.TargetUserID,
			CallerIsAdmin: req.CallerIsAdmin,
		}
		// Privilege is reported before a malformed amount.
		if !req.CallerIsAdmin {
			return Result{}, shared.ErrPermissionDenied
		}
		amount, err := ParseAmount(req.Amount)
		if err != nil {
			return Result{}, err
		}
		cmd.Amount = amount
		res, err := r.h.Adjust.Handle(ctx, cmd)
		if err != nil {
			return Result{}, err
		}
		return r.presenter.Adjusted(guild, res), nil
	}

	return Result{}, shared.ErrUnknownCommand
}
