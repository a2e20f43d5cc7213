package progress

import (
	"context"

	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Implementations live in infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateFunc computes the next record from the current one. Returning an
// error aborts the update and nothing is written.
type UpdateFunc func(current Record) (Record, error)

// Reader is the read-only side of the progress store.
type Reader interface {
	// Get returns the member's record, or NewRecord when absent.
	// It never creates an entry.
	Get(ctx context.Context, guild shared.GuildID, user shared.UserID) (Record, error)

	// AllForGuild returns every member of the guild in first-seen order.
	AllForGuild(ctx context.Context, guild shared.GuildID) ([]Standing, error)
}

// Repository is the progress store. It is the single serialization point
// for mutations.
type Repository interface {
	Reader

	// Update runs one read-modify-write cycle: it reads the current record
	// (NewRecord if absent), applies fn and durably stores the result before
	// returning it. Concurrent cycles never interleave. Durable storage
	// failures are reported as shared.ErrStorageUnavailable.
	Update(ctx context.Context, guild shared.GuildID, user shared.UserID, fn UpdateFunc) (Record, error)

	// Snapshot returns a deep copy of the whole ledger.
	Snapshot(ctx context.Context) (*Ledger, error)
}

// Closer is implemented by stores that hold connections or files.
type Closer interface {
	Close() error
}

// StorageError wraps a durable storage failure.
func StorageError(op string, err error) error {
	return shared.WrapError("progress", op, shared.ErrServiceUnavailable, "progress store unavailable", err)
}
