package shared

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a kind of domain event.
type EventType string

// Every event describes a change that is already committed to the
// progress store.
const (
	EventXPChanged    EventType = "progress.xp_changed"
	EventLevelUp      EventType = "progress.level_up"
	EventZoneChanged  EventType = "progress.zone_changed"
	EventMemberJoined EventType = "guild.member_joined"
)

// XPSource tells where an experience change came from.
type XPSource string

const (
	XPSourceActivity XPSource = "activity"
	XPSourceAdmin    XPSource = "admin"
)

// Event is what travels over the EventBus.
type Event interface {
	EventID() string
	EventType() EventType
	OccurredAt() time.Time
}

// Meta is embedded by every event and implements Event.
type Meta struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	At            time.Time `json:"at"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

func newMeta(t EventType) Meta {
	return Meta{ID: uuid.NewString(), Type: t, At: time.Now().UTC()}
}

func (m Meta) EventID() string       { return m.ID }
func (m Meta) EventType() EventType  { return m.Type }
func (m Meta) OccurredAt() time.Time { return m.At }

// Correlated returns a copy of m tagged with the id of the inbound message
// that caused the event.
func (m Meta) Correlated(id string) Meta {
	m.CorrelationID = id
	return m
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS
// ══════════════════════════════════════════════════════════════════════════════

// XPChangedEvent is emitted after any committed change of experience.
type XPChangedEvent struct {
	Meta
	GuildID  GuildID  `json:"guild_id"`
	UserID   UserID   `json:"user_id"`
	Source   XPSource `json:"source"`
	Delta    int64    `json:"delta"`
	OldExp   int64    `json:"old_exp"`
	NewExp   int64    `json:"new_exp"`
	NewLevel int      `json:"new_level"`
}

// Applied returns the change that actually reached the ledger. It differs
// from Delta when a decrement was floored at zero or a grant saturated.
func (e XPChangedEvent) Applied() int64 {
	return e.NewExp - e.OldExp
}

func NewXPChangedEvent(guild GuildID, user UserID, source XPSource, delta, oldExp, newExp int64, newLevel int) XPChangedEvent {
	return XPChangedEvent{
		Meta:     newMeta(EventXPChanged),
		GuildID:  guild,
		UserID:   user,
		Source:   source,
		Delta:    delta,
		OldExp:   oldExp,
		NewExp:   newExp,
		NewLevel: newLevel,
	}
}

// LevelUpEvent is emitted when activity moves a member to a higher level
// inside the same zone.
type LevelUpEvent struct {
	Meta
	GuildID  GuildID `json:"guild_id"`
	UserID   UserID  `json:"user_id"`
	OldLevel int     `json:"old_level"`
	NewLevel int     `json:"new_level"`
	Zone     string  `json:"zone"`
}

func NewLevelUpEvent(guild GuildID, user UserID, oldLevel, newLevel int, zone string) LevelUpEvent {
	return LevelUpEvent{
		Meta:     newMeta(EventLevelUp),
		GuildID:  guild,
		UserID:   user,
		OldLevel: oldLevel,
		NewLevel: newLevel,
		Zone:     zone,
	}
}

// ZoneChangedEvent is emitted instead of LevelUpEvent when the new level
// also crosses into another zone.
type ZoneChangedEvent struct {
	Meta
	GuildID  GuildID `json:"guild_id"`
	UserID   UserID  `json:"user_id"`
	NewLevel int     `json:"new_level"`
	OldZone  string  `json:"old_zone"`
	NewZone  string  `json:"new_zone"`
}

func NewZoneChangedEvent(guild GuildID, user UserID, newLevel int, oldZone, newZone string) ZoneChangedEvent {
	return ZoneChangedEvent{
		Meta:     newMeta(EventZoneChanged),
		GuildID:  guild,
		UserID:   user,
		NewLevel: newLevel,
		OldZone:  oldZone,
		NewZone:  newZone,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// GUILD
// ══════════════════════════════════════════════════════════════════════════════

// MemberJoinedEvent is emitted when a user joins a guild.
type MemberJoinedEvent struct {
	Meta
	GuildID     GuildID `json:"guild_id"`
	UserID      UserID  `json:"user_id"`
	DisplayName string  `json:"display_name,omitempty"`
}

func NewMemberJoinedEvent(guild GuildID, user UserID, displayName string) MemberJoinedEvent {
	return MemberJoinedEvent{
		Meta:        newMeta(EventMemberJoined),
		GuildID:     guild,
		UserID:      user,
		DisplayName: displayName,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BUS
// ══════════════════════════════════════════════════════════════════════════════

// EventHandler consumes one event. Errors are reported, never retried.
type EventHandler func(event Event) error

// EventPublisher is the side of the bus the command handlers see.
type EventPublisher interface {
	Publish(event Event) error
}

// EventSubscriber is the side of the bus the event handlers see.
type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	SubscribeAll(handler EventHandler) error
}

type EventBus interface {
	EventPublisher
	EventSubscriber
}
