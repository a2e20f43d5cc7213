// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD ACTIVITY COMMAND
// Grants a random amount of experience for one message in a guild and
// announces level and zone changes.
// ══════════════════════════════════════════════════════════════════════════════

// AwardActivityCommand is one inbound activity event.
type AwardActivityCommand struct {
	GuildID string
	UserID  string

	// IsBot marks events authored by bots. They never earn experience.
	IsBot bool

	// At is when the activity happened (defaults to now if zero).
	At time.Time

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c AwardActivityCommand) Validate() error {
	if _, err := shared.NewGuildID(c.GuildID); err != nil {
		return err
	}
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	return nil
}

// AwardActivityResult contains the result of an award.
type AwardActivityResult struct {
	// Skipped is true when the event was dropped before touching the store.
	Skipped bool

	// Awarded is the delta that was drawn.
	Awarded int64

	Outcome progress.Outcome

	// Events contains domain events published after the commit.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardActivityHandler handles the AwardActivityCommand.
type AwardActivityHandler struct {
	repo           progress.Repository
	deltas         progress.DeltaSource
	eventPublisher shared.EventPublisher
	invalidator    leaderboard.Invalidator
	logger         *logger.Logger
}

// NewAwardActivityHandler creates a new AwardActivityHandler.
// invalidator may be nil when no leaderboard cache is configured.
func NewAwardActivityHandler(
	repo progress.Repository,
	deltas progress.DeltaSource,
	eventPublisher shared.EventPublisher,
	invalidator leaderboard.Invalidator,
	log *logger.Logger,
) *AwardActivityHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AwardActivityHandler{
		repo:           repo,
		deltas:         deltas,
		eventPublisher: eventPublisher,
		invalidator:    invalidator,
		logger:         log.With(logger.Component("award_activity")),
	}
}

// Handle executes one read-modify-write cycle for the activity event.
func (h *AwardActivityHandler) Handle(ctx context.Context, cmd AwardActivityCommand) (*AwardActivityResult, error) {
	if cmd.IsBot {
		return &AwardActivityResult{Skipped: true}, nil
	}
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("award_activity: validation failed: %w", err)
	}

	guild := shared.GuildID(cmd.GuildID)
	user := shared.UserID(cmd.UserID)
	delta := h.deltas.Next()

	var outcome progress.Outcome
	_, err := h.repo.Update(ctx, guild, user, func(current progress.Record) (progress.Record, error) {
		outcome = progress.ApplyDelta(current, delta)
		return outcome.Record, nil
	})
	if err != nil {
		return nil, fmt.Errorf("award_activity: %w", err)
	}

	invalidate(ctx, h.invalidator, guild, h.logger)

	events := announce(guild, user, delta, outcome, cmd.CorrelationID)
	publishAll(h.eventPublisher, events, h.logger)

	h.logger.Debug("experience awarded",
		logger.GuildID(guild.String()),
		logger.UserID(user.String()),
		logger.XPAmount(delta),
		logger.LevelNum(outcome.Record.Level),
	)

	return &AwardActivityResult{
		Awarded: delta,
		Outcome: outcome,
		Events:  events,
	}, nil
}

// announce builds the events for a committed activity award. A zone change
// replaces the level-up event for the same update.
func announce(guild shared.GuildID, user shared.UserID, delta int64, out progress.Outcome, correlationID string) []shared.Event {
	changed := shared.NewXPChangedEvent(guild, user, shared.XPSourceActivity,
		delta, out.Previous.Exp, out.Record.Exp, out.Record.Level)
	changed.Meta = changed.Meta.Correlated(correlationID)
	events := []shared.Event{changed}

	switch {
	case out.ZoneChanged:
		ev := shared.NewZoneChangedEvent(guild, user, out.Record.Level, out.OldZone, out.NewZone)
		ev.Meta = ev.Meta.Correlated(correlationID)
		events = append(events, ev)
	case out.LevelChanged:
		ev := shared.NewLevelUpEvent(guild, user, out.Previous.Level, out.Record.Level, out.NewZone)
		ev.Meta = ev.Meta.Correlated(correlationID)
		events = append(events, ev)
	}
	return events
}

func publishAll(pub shared.EventPublisher, events []shared.Event, log *logger.Logger) {
	if pub == nil {
		return
	}
	for _, ev := range events {
		if err := pub.Publish(ev); err != nil {
			log.Warn("failed to publish event",
				logger.String("event_type", string(ev.EventType())),
				logger.Err(err),
			)
		}
	}
}

func invalidate(ctx context.Context, inv leaderboard.Invalidator, guild shared.GuildID, log *logger.Logger) {
	if inv == nil {
		return
	}
	if err := inv.Invalidate(ctx, guild); err != nil {
		log.Warn("failed to invalidate leaderboard cache",
			logger.GuildID(guild.String()),
			logger.Err(err),
		)
	}
}
