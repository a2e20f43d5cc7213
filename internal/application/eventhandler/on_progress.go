// Package eventhandler contains handlers of domain events. They run after a
// change has been committed and trigger side effects such as announcements.
// A handler failure never undoes the change that produced the event.
package eventhandler

import (
	"context"
	"fmt"
	"time"

	"github.com/realm-weaver/weaver-bot/internal/domain/notification"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// DefaultDeliveryTimeout bounds one delivery attempt.
const DefaultDeliveryTimeout = 10 * time.Second

// ═══════════════════════════════════════════════════════════════════════════
// ON PROGRESS HANDLER
// Turns level-up and zone-change events into announcements. The
// coordinator publishes at most one of the two for a single update.
// ═══════════════════════════════════════════════════════════════════════════

// OnProgressHandler delivers level and zone announcements.
type OnProgressHandler struct {
	sink    notification.Sink
	timeout time.Duration
	logger  *logger.Logger
}

// NewOnProgressHandler creates a new handler.
func NewOnProgressHandler(sink notification.Sink, timeout time.Duration, log *logger.Logger) *OnProgressHandler {
	if log == nil {
		log = logger.Nop()
	}
	if timeout <= 0 {
		timeout = DefaultDeliveryTimeout
	}
	return &OnProgressHandler{
		sink:    sink,
		timeout: timeout,
		logger:  log.With(logger.Component("on_progress")),
	}
}

// Handle implements shared.EventHandler.
func (h *OnProgressHandler) Handle(event shared.Event) error {
	var n notification.Notification

	switch ev := event.(type) {
	case shared.LevelUpEvent:
		n = notification.NewLevelUp(ev.GuildID, ev.UserID, ev.NewLevel)
	case shared.ZoneChangedEvent:
		n = notification.NewZoneChange(ev.GuildID, ev.UserID, ev.NewLevel, ev.OldZone, ev.NewZone)
	default:
		h.logger.Warn("unexpected event", logger.String("event_type", string(event.EventType())))
		return nil
	}
	n = n.WithSourceEvent(event.EventID())

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.sink.Deliver(ctx, n); err != nil {
		h.logger.Warn("announcement not delivered",
			logger.String("kind", n.Kind.String()),
			logger.GuildID(n.GuildID.String()),
			logger.UserID(n.UserID.String()),
			logger.Err(err),
		)
		return fmt.Errorf("deliver %s: %w", n.Kind, err)
	}

	h.logger.Info("announcement delivered",
		logger.String("kind", n.Kind.String()),
		logger.GuildID(n.GuildID.String()),
		logger.UserID(n.UserID.String()),
		logger.LevelNum(n.NewLevel),
	)
	return nil
}

// Register subscribes the handler to the events it understands.
func (h *OnProgressHandler) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventLevelUp, h.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventZoneChanged, h.Handle)
}
