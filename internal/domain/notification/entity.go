package notification

import (
	"time"

	"github.com/google/uuid"

	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION KIND
// ══════════════════════════════════════════════════════════════════════════════

// Kind is the type of an announcement.
type Kind string

const (
	KindLevelUp    Kind = "levelUp"
	KindZoneChange Kind = "zoneChange"
	KindWelcome    Kind = "welcome"
)

// IsValid checks the kind is known.
func (k Kind) IsValid() bool {
	switch k {
	case KindLevelUp, KindZoneChange, KindWelcome:
		return true
	default:
		return false
	}
}

// String returns the string form of the kind.
func (k Kind) String() string {
	return string(k)
}

// Channel returns the name of the guild channel the kind is posted to.
func (k Kind) Channel() string {
	switch k {
	case KindWelcome:
		return ChannelWelcome
	default:
		return ChannelLevelUp
	}
}

// Guild channel names announcements are posted to.
const (
	ChannelLevelUp = "level-up"
	ChannelWelcome = "👋welcome"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION ENTITY
// ══════════════════════════════════════════════════════════════════════════════

// Notification is an outbound announcement about a guild member.
type Notification struct {
	ID      string         `json:"id"`
	Kind    Kind           `json:"kind"`
	GuildID shared.GuildID `json:"guild_id"`
	UserID  shared.UserID  `json:"user_id"`

	// NewLevel is set for levelUp and zoneChange.
	NewLevel int `json:"new_level,omitempty"`

	// OldZone and NewZone are set for zoneChange.
	OldZone string `json:"old_zone,omitempty"`
	NewZone string `json:"new_zone,omitempty"`

	// DisplayName is set for welcome when the platform supplied one.
	DisplayName string `json:"display_name,omitempty"`

	// SourceEventID links the notification to the domain event it came from.
	SourceEventID string    `json:"source_event_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func newNotification(kind Kind, guild shared.GuildID, user shared.UserID) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		GuildID:   guild,
		UserID:    user,
		CreatedAt: time.Now().UTC(),
	}
}

// NewLevelUp creates a level-up announcement.
func NewLevelUp(guild shared.GuildID, user shared.UserID, newLevel int) Notification {
	n := newNotification(KindLevelUp, guild, user)
	n.NewLevel = newLevel
	return n
}

// NewZoneChange creates a zone announcement. It replaces the level-up
// announcement for the same update.
func NewZoneChange(guild shared.GuildID, user shared.UserID, newLevel int, oldZone, newZone string) Notification {
	n := newNotification(KindZoneChange, guild, user)
	n.NewLevel = newLevel
	n.OldZone = oldZone
	n.NewZone = newZone
	return n
}

// NewWelcome creates a welcome announcement for a member who just joined.
func NewWelcome(guild shared.GuildID, user shared.UserID, displayName string) Notification {
	n := newNotification(KindWelcome, guild, user)
	n.DisplayName = displayName
	return n
}

// WithSourceEvent records the id of the originating domain event.
func (n Notification) WithSourceEvent(eventID string) Notification {
	n.SourceEventID = eventID
	return n
}

// Channel returns the guild channel the notification is posted to.
func (n Notification) Channel() string {
	return n.Kind.Channel()
}
