package shared

import (
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// GuildID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// GuildID is the opaque identifier of a chat server.
type GuildID string

// IsValid checks if the guild ID is non-empty.
func (g GuildID) IsValid() bool {
	return strings.TrimSpace(string(g)) != ""
}

// String returns the guild ID as string.
func (g GuildID) String() string {
	return string(g)
}

// NewGuildID creates a new GuildID with validation.
func NewGuildID(id string) (GuildID, error) {
	g := GuildID(strings.TrimSpace(id))
	if !g.IsValid() {
		return "", ErrInvalidGuildID
	}
	return g, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// UserID Value Object
// ═══════════════════════════════════════════════════════════════════════════

// UserID is the opaque identifier of a chat user.
type UserID string

// IsValid checks if the user ID is non-empty.
func (u UserID) IsValid() bool {
	return strings.TrimSpace(string(u)) != ""
}

// String returns the user ID as string.
func (u UserID) String() string {
	return string(u)
}

// IsEmpty checks if the user ID is empty.
func (u UserID) IsEmpty() bool {
	return u == ""
}

// NewUserID creates a new UserID with validation.
func NewUserID(id string) (UserID, error) {
	u := UserID(strings.TrimSpace(id))
	if !u.IsValid() {
		return "", ErrInvalidUserID
	}
	return u, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Rank Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Rank represents a member's 1-based position on a leaderboard.
type Rank int

const (
	// Unranked indicates the member has no position.
	Unranked Rank = 0
)

// Int returns the underlying int value.
func (r Rank) Int() int {
	return int(r)
}

// IsUnranked checks if the member has no position.
func (r Rank) IsUnranked() bool {
	return r <= Unranked
}

// IsTop checks if the rank is within top N.
func (r Rank) IsTop(n int) bool {
	return !r.IsUnranked() && int(r) <= n
}

// ═══════════════════════════════════════════════════════════════════════════
// Limit Value Object
// ═══════════════════════════════════════════════════════════════════════════

const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// NormalizeLimit clamps a requested leaderboard size into
// [1, MaxLeaderboardLimit]; non-positive requests get the default.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}
