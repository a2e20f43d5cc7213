package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEMA
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one schema step. AppliedAt and IsApplied are only filled in
// by Migrator.Status.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// member_progress.seq keeps first-seen order for Snapshot.
var schema = []Migration{
	{
		Version: 1,
		Name:    "create_member_progress",
		UpSQL: `
CREATE TABLE IF NOT EXISTS member_progress (
    seq        BIGSERIAL PRIMARY KEY,
    guild_id   TEXT        NOT NULL,
    user_id    TEXT        NOT NULL,
    exp        BIGINT      NOT NULL DEFAULT 0 CHECK (exp >= 0),
    level      INTEGER     NOT NULL DEFAULT 1 CHECK (level >= 1),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (guild_id, user_id)
);
CREATE INDEX IF NOT EXISTS member_progress_guild_seq ON member_progress (guild_id, seq);
CREATE INDEX IF NOT EXISTS member_progress_guild_exp ON member_progress (guild_id, exp DESC);`,
		DownSQL: `DROP TABLE IF EXISTS member_progress;`,
	},
}

// GetMigrations returns a copy of the embedded schema steps.
func GetMigrations() []Migration {
	return append([]Migration(nil), schema...)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

const (
	createLedgerSQL = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version    INTEGER PRIMARY KEY,
    name       TEXT        NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
	selectLedgerSQL = `SELECT version, applied_at FROM schema_migrations`
	recordStepSQL   = `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`
)

// Migrator brings the database up to the embedded schema.
type Migrator struct {
	conn  *Connection
	steps []Migration
}

// NewMigrator returns a Migrator over the embedded schema.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, steps: GetMigrations()}
}

type ledgerRow struct {
	Version   int
	AppliedAt time.Time
}

// ledger creates schema_migrations if needed and reads it into a map of
// version to apply time.
func (m *Migrator) ledger(ctx context.Context) (map[int]time.Time, error) {
	pool := m.conn.Pool()
	if _, err := pool.Exec(ctx, createLedgerSQL); err != nil {
		return nil, fmt.Errorf("postgres: create schema_migrations: %w", err)
	}
	rows, err := pool.Query(ctx, selectLedgerSQL)
	if err != nil {
		return nil, fmt.Errorf("postgres: read schema_migrations: %w", err)
	}
	list, err := pgx.CollectRows(rows, pgx.RowToStructByPos[ledgerRow])
	if err != nil {
		return nil, fmt.Errorf("postgres: read schema_migrations: %w", err)
	}
	done := make(map[int]time.Time, len(list))
	for _, r := range list {
		done[r.Version] = r.AppliedAt
	}
	return done, nil
}

// Migrate applies every step not yet in the ledger. Each step and its
// ledger row commit together, so a failed step leaves no trace.
func (m *Migrator) Migrate(ctx context.Context) error {
	done, err := m.ledger(ctx)
	if err != nil {
		return err
	}
	for _, step := range m.steps {
		if _, ok := done[step.Version]; ok {
			continue
		}
		if step.UpSQL == "" {
			return fmt.Errorf("%w: step %d has no up SQL", ErrMigrationFailed, step.Version)
		}
		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, step.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, recordStepSQL, step.Version, step.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: step %d (%s): %v", ErrMigrationFailed, step.Version, step.Name, err)
		}
	}
	return nil
}

// Status lists every embedded step with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	done, err := m.ledger(ctx)
	if err != nil {
		return nil, err
	}
	out := GetMigrations()
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied, out[i].AppliedAt = true, at
		}
	}
	return out, nil
}
