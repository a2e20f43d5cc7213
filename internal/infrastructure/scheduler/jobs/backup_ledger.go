// Package jobs contains the scheduled jobs of the bot.
package jobs

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/jsonfile"
	"github.com/realm-weaver/weaver-bot/pkg/circuitbreaker"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
	"github.com/realm-weaver/weaver-bot/pkg/retry"
)

// BackupJobName is the scheduler name of BackupLedgerJob.
const BackupJobName = "backup_ledger"

// ArchiveStore receives backup objects.
type ArchiveStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// BackupLedgerJob uploads a copy of the whole ledger, in the ledger file
// format, to an ArchiveStore.
type BackupLedgerJob struct {
	repo    progress.Repository
	archive ArchiveStore
	prefix  string
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	logger  *logger.Logger
	now     func() time.Time
	newID   func() string
}

// BackupOption configures a BackupLedgerJob.
type BackupOption func(*BackupLedgerJob)

// WithRetrier replaces the upload retrier.
func WithRetrier(r *retry.Retrier) BackupOption {
	return func(j *BackupLedgerJob) { j.retrier = r }
}

// WithBreaker replaces the breaker that skips uploads after repeated
// failed runs.
func WithBreaker(cb *circuitbreaker.CircuitBreaker) BackupOption {
	return func(j *BackupLedgerJob) { j.breaker = cb }
}

// WithClock replaces the clock and the object id generator.
func WithClock(now func() time.Time, newID func() string) BackupOption {
	return func(j *BackupLedgerJob) {
		j.now = now
		j.newID = newID
	}
}

// NewBackupLedgerJob creates the job. prefix is the key prefix inside the
// bucket, without trailing slash.
func NewBackupLedgerJob(repo progress.Repository, archive ArchiveStore, prefix string, log *logger.Logger, opts ...BackupOption) *BackupLedgerJob {
	if log == nil {
		log = logger.Nop()
	}
	log = log.With(logger.Component("backup_ledger"))
	j := &BackupLedgerJob{
		repo:    repo,
		archive: archive,
		prefix:  strings.Trim(prefix, "/"),
		logger:  log,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	j.retrier = retry.BlobRetrier(func(attempt int, err error, delay time.Duration) {
		log.Warn("backup upload failed, retrying", logger.Int("attempt", attempt), logger.Duration("delay", delay), logger.Err(err))
	})
	j.breaker = circuitbreaker.ArchiveBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Name implements scheduler.Job.
func (j *BackupLedgerJob) Name() string { return BackupJobName }

// Description implements scheduler.Job.
func (j *BackupLedgerJob) Description() string {
	return "uploads a snapshot of the progress ledger to object storage"
}

// Key returns the object key for a backup taken at t.
func (j *BackupLedgerJob) Key(t time.Time, id string) string {
	name := fmt.Sprintf("%s-%s.json", t.UTC().Format("20060102T150405Z"), id)
	if j.prefix == "" {
		return name
	}
	return path.Join(j.prefix, name)
}

// Run implements scheduler.Job.
func (j *BackupLedgerJob) Run(ctx context.Context) error {
	snap, err := j.repo.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot ledger: %w", err)
	}
	body, err := jsonfile.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	key := j.Key(j.now(), j.newID())
	// One breaker call covers the whole retried upload of a run.
	err = j.breaker.Execute(ctx, func(ctx context.Context) error {
		return j.retrier.Do(ctx, func(ctx context.Context) error {
			return j.archive.Put(ctx, key, body, "application/json")
		})
	})
	if circuitbreaker.IsRejected(err) {
		j.logger.Warn("backup skipped, archive breaker open", logger.String("key", key))
		return fmt.Errorf("upload %s skipped: %w", key, err)
	}
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	j.logger.Info("ledger backed up",
		logger.String("key", key),
		logger.Int("records", snap.Len()),
		logger.Int("bytes", len(body)),
	)
	return nil
}
