// Package postgres implements the progress store on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrConnectionClosed is returned by every call made after Close.
	ErrConnectionClosed = errors.New("postgres: pool closed")

	// ErrMigrationFailed wraps the first schema step that could not be applied.
	ErrMigrationFailed = errors.New("postgres: migration failed")

	// ErrTransactionFailed is returned when a transaction cannot be opened.
	ErrTransactionFailed = errors.New("postgres: cannot begin transaction")
)

// ══════════════════════════════════════════════════════════════════════════════
// POOL
// ══════════════════════════════════════════════════════════════════════════════

// PoolOptions tunes the pool built from a database URL. Zero fields fall
// back to DefaultPoolOptions.
type PoolOptions struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// DefaultPoolOptions returns the pool settings used by the bot. A single
// process serves every guild, so the pool stays small.
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MaxConns:          8,
		MinConns:          1,
		MaxConnLifetime:   45 * time.Minute,
		MaxConnIdleTime:   10 * time.Minute,
		HealthCheckPeriod: 30 * time.Second,
	}
}

func orDefault[T int32 | time.Duration](v, d T) T {
	if v > 0 {
		return v
	}
	return d
}

func (o PoolOptions) applyTo(cfg *pgxpool.Config) {
	d := DefaultPoolOptions()
	cfg.MaxConns = orDefault(o.MaxConns, d.MaxConns)
	cfg.MinConns = orDefault(o.MinConns, d.MinConns)
	cfg.MaxConnLifetime = orDefault(o.MaxConnLifetime, d.MaxConnLifetime)
	cfg.MaxConnIdleTime = orDefault(o.MaxConnIdleTime, d.MaxConnIdleTime)
	cfg.HealthCheckPeriod = orDefault(o.HealthCheckPeriod, d.HealthCheckPeriod)
}

// Connection owns the pgx pool shared by the repository and the migrator.
type Connection struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// Connect parses databaseURL, opens a pool and pings it once. A pool that
// does not answer the ping is closed before returning.
func Connect(ctx context.Context, databaseURL string, opts PoolOptions) (*Connection, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse url: %w", err)
	}
	opts.applyTo(cfg)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Connection{pool: pool}, nil
}

// Pool exposes the pgx pool for plain queries.
func (c *Connection) Pool() *pgxpool.Pool { return c.pool }

// Close releases the pool. Calls after the first are no-ops.
func (c *Connection) Close() error {
	if c.closed.CompareAndSwap(false, true) {
		c.pool.Close()
	}
	return nil
}

// Ping is the readiness check used by the health endpoint.
func (c *Connection) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	return c.pool.Ping(ctx)
}

// WithTx runs fn in a read-committed transaction, committing when fn
// returns nil and rolling back otherwise.
func (c *Connection) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransactionFailed, err)
	}
	// Rollback after a successful Commit returns ErrTxClosed and is ignored.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// Querier is satisfied by both the pool and an open transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// IsNoRows reports whether err came from a QueryRow that matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
