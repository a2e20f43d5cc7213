// Package leaderboard ranks the members of a guild by experience.
package leaderboard

import (
	"sort"
	"time"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD ENTRY
// ══════════════════════════════════════════════════════════════════════════════

// Entry is one row of a leaderboard.
type Entry struct {
	// Position is the 1-based place. Ties get distinct, consecutive positions.
	Position shared.Rank `json:"position"`

	UserID shared.UserID `json:"user_id"`
	Exp    int64         `json:"exp"`
	Level  int           `json:"level"`
	Zone   string        `json:"zone"`
}

func newEntry(pos int, s progress.Standing) Entry {
	return Entry{
		Position: shared.Rank(pos),
		UserID:   s.UserID,
		Exp:      s.Record.Exp,
		Level:    s.Record.Level,
		Zone:     s.Record.Zone(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// BOARD
// ══════════════════════════════════════════════════════════════════════════════

// Board is the top of a guild's ranking at a point in time.
type Board struct {
	GuildID     shared.GuildID `json:"guild_id"`
	Entries     []Entry        `json:"entries"`
	Members     int            `json:"members"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// IsEmpty reports whether the board has no rows.
func (b *Board) IsEmpty() bool {
	return b == nil || len(b.Entries) == 0
}

// Sorted returns a copy of standings ordered by experience descending.
// The sort is stable: members with equal experience keep their
// first-seen order.
func Sorted(standings []progress.Standing) []progress.Standing {
	out := make([]progress.Standing, len(standings))
	copy(out, standings)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Record.Exp > out[j].Record.Exp
	})
	return out
}

// Build ranks standings and keeps the first limit rows. A non-positive
// limit falls back to shared.DefaultLeaderboardLimit.
func Build(guild shared.GuildID, standings []progress.Standing, limit int) *Board {
	limit = shared.NormalizeLimit(limit)
	sorted := Sorted(standings)
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	entries := make([]Entry, 0, len(sorted))
	for i, s := range sorted {
		entries = append(entries, newEntry(i+1, s))
	}

	return &Board{
		GuildID:     guild,
		Entries:     entries,
		Members:     len(standings),
		GeneratedAt: time.Now().UTC(),
	}
}

// PositionOf returns the member's place in the full ranking, or
// shared.Unranked when absent.
func PositionOf(standings []progress.Standing, user shared.UserID) shared.Rank {
	for i, s := range Sorted(standings) {
		if s.UserID == user {
			return shared.Rank(i + 1)
		}
	}
	return shared.Unranked
}
