package command

import (
	"context"
	"fmt"

	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ADJUST EXPERIENCE COMMAND
// Administrative grant or revocation of experience. Never announces level
// or zone changes; the caller gets a direct acknowledgment instead.
// ══════════════════════════════════════════════════════════════════════════════

// Adjustment is the direction of an administrative change.
type Adjustment string

const (
	AdjustmentAdd    Adjustment = "addexp"
	AdjustmentRemove Adjustment = "removeexp"
)

// IsValid checks the adjustment is known.
func (a Adjustment) IsValid() bool {
	return a == AdjustmentAdd || a == AdjustmentRemove
}

// AdjustExperienceCommand contains the data of an addexp/removeexp request.
type AdjustExperienceCommand struct {
	Adjustment Adjustment
	GuildID    string
	CallerID   string

	// TargetUserID is the member whose experience changes.
	TargetUserID string

	// Amount is nil when the caller supplied none.
	Amount *int64

	// CallerIsAdmin is resolved by the platform adapter.
	CallerIsAdmin bool
}

// Validate validates the command. Privilege is checked first.
func (c AdjustExperienceCommand) Validate() error {
	if !c.CallerIsAdmin {
		return shared.ErrPermissionDenied
	}
	if !c.Adjustment.IsValid() {
		return shared.ErrUnknownCommand
	}
	if _, err := shared.NewGuildID(c.GuildID); err != nil {
		return err
	}
	if !shared.UserID(c.TargetUserID).IsValid() {
		return shared.ErrTargetRequired
	}
	if c.Amount == nil {
		return shared.ErrAmountRequired
	}
	if *c.Amount <= 0 {
		return shared.ErrAmountNotPositive
	}
	return nil
}

// Delta returns the signed change.
func (c AdjustExperienceCommand) Delta() int64 {
	if c.Adjustment == AdjustmentRemove {
		return -*c.Amount
	}
	return *c.Amount
}

// AdjustExperienceResult contains the result of an adjustment.
type AdjustExperienceResult struct {
	Adjustment   Adjustment
	TargetUserID shared.UserID
	Amount       int64
	Outcome      progress.Outcome
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AdjustExperienceHandler handles the AdjustExperienceCommand.
type AdjustExperienceHandler struct {
	repo           progress.Repository
	eventPublisher shared.EventPublisher
	invalidator    leaderboard.Invalidator
	logger         *logger.Logger
}

// NewAdjustExperienceHandler creates a new AdjustExperienceHandler.
func NewAdjustExperienceHandler(
	repo progress.Repository,
	eventPublisher shared.EventPublisher,
	invalidator leaderboard.Invalidator,
	log *logger.Logger,
) *AdjustExperienceHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AdjustExperienceHandler{
		repo:           repo,
		eventPublisher: eventPublisher,
		invalidator:    invalidator,
		logger:         log.With(logger.Component("adjust_experience")),
	}
}

// Handle executes the adjustment. Validation failures never touch the store.
func (h *AdjustExperienceHandler) Handle(ctx context.Context, cmd AdjustExperienceCommand) (*AdjustExperienceResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("adjust_experience: %w", err)
	}

	guild := shared.GuildID(cmd.GuildID)
	target := shared.UserID(cmd.TargetUserID)
	delta := cmd.Delta()

	var outcome progress.Outcome
	_, err := h.repo.Update(ctx, guild, target, func(current progress.Record) (progress.Record, error) {
		outcome = progress.ApplyDelta(current, delta)
		return outcome.Record, nil
	})
	if err != nil {
		return nil, fmt.Errorf("adjust_experience: %w", err)
	}

	invalidate(ctx, h.invalidator, guild, h.logger)

	// Only the ledger change is published; admin changes are not announced.
	changed := shared.NewXPChangedEvent(guild, target, shared.XPSourceAdmin,
		delta, outcome.Previous.Exp, outcome.Record.Exp, outcome.Record.Level)
	publishAll(h.eventPublisher, []shared.Event{changed}, h.logger)

	h.logger.Info("experience adjusted",
		logger.String("adjustment", string(cmd.Adjustment)),
		logger.GuildID(guild.String()),
		logger.UserID(target.String()),
		logger.String("caller_id", cmd.CallerID),
		logger.XPAmount(delta),
	)

	return &AdjustExperienceResult{
		Adjustment:   cmd.Adjustment,
		TargetUserID: target,
		Amount:       *cmd.Amount,
		Outcome:      outcome,
	}, nil
}
