// Package memory provides in-process implementations of the progress store
// and the leaderboard cache. Nothing survives a restart.
package memory

import (
	"context"
	"sync"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// Store is a progress.Repository backed by a Ledger in memory.
type Store struct {
	mu     sync.Mutex
	ledger *progress.Ledger
}

// NewStore returns an empty store. If seed is non-nil it is copied.
func NewStore(seed *progress.Ledger) *Store {
	l := progress.NewLedger()
	if seed != nil {
		l = seed.Clone()
		l.Normalize()
	}
	return &Store{ledger: l}
}

var _ progress.Repository = (*Store)(nil)

// Get implements progress.Reader.
func (s *Store) Get(ctx context.Context, guild shared.GuildID, user shared.UserID) (progress.Record, error) {
	if err := ctx.Err(); err != nil {
		return progress.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Lookup(guild, user), nil
}

// AllForGuild implements progress.Reader.
func (s *Store) AllForGuild(ctx context.Context, guild shared.GuildID) ([]progress.Standing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Standings(guild), nil
}

// Update implements progress.Repository.
func (s *Store) Update(ctx context.Context, guild shared.GuildID, user shared.UserID, fn progress.UpdateFunc) (progress.Record, error) {
	if err := ctx.Err(); err != nil {
		return progress.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := fn(s.ledger.Lookup(guild, user))
	if err != nil {
		return progress.Record{}, err
	}
	next = next.Normalize()
	s.ledger.Set(guild, user, next)
	return next, nil
}

// Snapshot implements progress.Repository.
func (s *Store) Snapshot(ctx context.Context) (*progress.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Clone(), nil
}
