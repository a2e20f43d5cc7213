package metrics

import (
	"context"
	"time"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
)

// Repository times Update calls of the wrapped store.
type Repository struct {
	progress.Repository
	driver  string
	metrics *Metrics
}

// InstrumentRepository wraps repo so every Update lands in the
// store_update_duration_seconds histogram under driver.
func (m *Metrics) InstrumentRepository(driver string, repo progress.Repository) *Repository {
	return &Repository{Repository: repo, driver: driver, metrics: m}
}

// Update implements progress.Repository.
func (r *Repository) Update(ctx context.Context, guild shared.GuildID, user shared.UserID, fn progress.UpdateFunc) (progress.Record, error) {
	start := time.Now()
	rec, err := r.Repository.Update(ctx, guild, user, fn)
	r.metrics.observeStoreUpdate(r.driver, time.Since(start), err)
	return rec, err
}

// Close closes the wrapped store when it supports closing.
func (r *Repository) Close() error {
	if c, ok := r.Repository.(progress.Closer); ok {
		return c.Close()
	}
	return nil
}
