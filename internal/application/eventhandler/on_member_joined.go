package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/realm-weaver/weaver-bot/internal/domain/notification"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// OnMemberJoinedHandler posts a welcome for every new guild member.
type OnMemberJoinedHandler struct {
	sink    notification.Sink
	timeout time.Duration
	logger  *logger.Logger
}

// NewOnMemberJoinedHandler creates a new handler.
func NewOnMemberJoinedHandler(sink notification.Sink, timeout time.Duration, log *logger.Logger) *OnMemberJoinedHandler {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &OnMemberJoinedHandler{
		sink:    sink,
		timeout: timeout,
		logger:  log.With(logger.Component("on_member_joined")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnMemberJoinedHandler) Handle(event shared.Event) error {
	ev, ok := event.(shared.MemberJoinedEvent)
	if !ok {
		h.logger.Warn("received non-MemberJoinedEvent", logger.String("event_type", string(event.EventType())))
		return nil
	}

	n := notification.NewWelcome(ev.GuildID, ev.UserID, ev.DisplayName).WithSourceEvent(ev.EventID())

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.sink.Deliver(ctx, n); err != nil {
		h.logger.Warn("welcome not delivered",
			logger.GuildID(ev.GuildID.String()),
			logger.UserID(ev.UserID.String()),
			logger.Err(err),
		)
		return fmt.Errorf("deliver welcome: %w", err)
	}
	return nil
}

// Register subscribes the handler to member joins.
func (h *OnMemberJoinedHandler) Register(bus shared.EventSubscriber) error {
	return bus.Subscribe(shared.EventMemberJoined, h.Handle)
}
