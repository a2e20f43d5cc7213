package command

import (
	"context"
	"fmt"

	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// MemberJoinedCommand reports that a user joined a guild. It does not change
// the ledger; records are created on first activity.
type MemberJoinedCommand struct {
	GuildID     string
	UserID      string
	DisplayName string
}

// Validate validates the command.
func (c MemberJoinedCommand) Validate() error {
	if _, err := shared.NewGuildID(c.GuildID); err != nil {
		return err
	}
	if _, err := shared.NewUserID(c.UserID); err != nil {
		return err
	}
	return nil
}

// MemberJoinedHandler publishes guild.member_joined.
type MemberJoinedHandler struct {
	eventPublisher shared.EventPublisher
	logger         *logger.Logger
}

// NewMemberJoinedHandler creates a new MemberJoinedHandler.
func NewMemberJoinedHandler(eventPublisher shared.EventPublisher, log *logger.Logger) *MemberJoinedHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &MemberJoinedHandler{
		eventPublisher: eventPublisher,
		logger:         log.With(logger.Component("member_joined")),
	}
}

// Handle executes the command.
func (h *MemberJoinedHandler) Handle(_ context.Context, cmd MemberJoinedCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("member_joined: validation failed: %w", err)
	}
	ev := shared.NewMemberJoinedEvent(shared.GuildID(cmd.GuildID), shared.UserID(cmd.UserID), cmd.DisplayName)
	publishAll(h.eventPublisher, []shared.Event{ev}, h.logger)
	return nil
}
