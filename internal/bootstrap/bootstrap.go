// Package bootstrap builds the infrastructure selected by the configuration.
// It is shared by the bot and the worker commands.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/realm-weaver/weaver-bot/config"
	"github.com/realm-weaver/weaver-bot/internal/domain/leaderboard"
	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/blob/s3"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/jsonfile"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/memory"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/postgres"
	rediscache "github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/redis"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/sqlite"
	"github.com/realm-weaver/weaver-bot/pkg/circuitbreaker"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
	"github.com/realm-weaver/weaver-bot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STORE
// ══════════════════════════════════════════════════════════════════════════════

// Store is an opened progress store.
type Store struct {
	Repo   progress.Repository
	Driver config.StoreDriver

	// Check pings the backing database. Nil for file and memory stores.
	Check func(ctx context.Context) error

	// Postgres is set for the postgres driver.
	Postgres *postgres.Connection

	// SQLite is set for the sqlite driver.
	SQLite *sqlite.Store
}

// Close releases the store.
func (s *Store) Close() error {
	switch {
	case s.Postgres != nil:
		return s.Postgres.Close()
	case s.SQLite != nil:
		return s.SQLite.Close()
	}
	return nil
}

// OpenStore opens the store selected by cfg.Driver. The postgres driver
// retries the first connection and applies migrations.
func OpenStore(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Nop()
	}

	switch cfg.Driver {
	case config.DriverJSON:
		st, err := jsonfile.Open(jsonfile.Options{Path: cfg.JSONPath, Logger: log})
		if err != nil {
			return nil, err
		}
		return &Store{Repo: st, Driver: cfg.Driver}, nil

	case config.DriverMemory:
		return &Store{Repo: memory.NewStore(nil), Driver: cfg.Driver}, nil

	case config.DriverSQLite:
		st, err := sqlite.NewStore(cfg.SQLitePath, log)
		if err != nil {
			return nil, err
		}
		if cfg.ImportJSON {
			if err := seedSQLite(ctx, st, cfg.JSONPath, log); err != nil {
				_ = st.Close()
				return nil, err
			}
		}
		return &Store{Repo: st, Driver: cfg.Driver, SQLite: st, Check: st.DB().PingContext}, nil

	case config.DriverPostgres:
		conn, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return &Store{
			Repo:     postgres.NewProgressRepository(conn, log),
			Driver:   cfg.Driver,
			Postgres: conn,
			Check:    conn.Ping,
		}, nil
	}

	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

func connectPostgres(ctx context.Context, cfg config.StoreConfig, log *logger.Logger) (*postgres.Connection, error) {
	opts := postgres.DefaultPoolOptions()
	opts.MaxConns = cfg.MaxConns
	opts.MinConns = cfg.MinConns
	opts.MaxConnLifetime = cfg.ConnMaxLifetime
	opts.MaxConnIdleTime = cfg.ConnMaxIdleTime

	var conn *postgres.Connection
	err := retry.DatabaseRetrier().Do(ctx, func(ctx context.Context) error {
		c, err := postgres.Connect(ctx, cfg.DatabaseURL, opts)
		if err != nil {
			log.Warn("postgres not reachable", logger.Err(err))
			return retry.Retryable(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return conn, nil
}

// seedSQLite copies the JSON ledger into an empty SQLite store.
func seedSQLite(ctx context.Context, st *sqlite.Store, jsonPath string, log *logger.Logger) error {
	current, err := st.Snapshot(ctx)
	if err != nil {
		return err
	}
	if current.Len() > 0 {
		log.Info("sqlite store already populated, skipping import", logger.Int("records", current.Len()))
		return nil
	}

	src, err := jsonfile.Open(jsonfile.Options{Path: jsonPath, Logger: log})
	if err != nil {
		return err
	}
	ledger, err := src.Snapshot(ctx)
	if err != nil {
		return err
	}
	_, err = st.Import(ctx, ledger)
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// Cache is an opened leaderboard cache.
type Cache struct {
	leaderboard.Cache

	// Check and Close are nil for the in-process cache.
	Check func(ctx context.Context) error
	Close func() error
}

// OpenCache connects to Redis when enabled and falls back to an in-process
// cache otherwise.
func OpenCache(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*Cache, error) {
	if !cfg.Enabled {
		return &Cache{Cache: memory.NewLeaderboardCache()}, nil
	}

	rcfg := rediscache.DefaultConfig()
	rcfg.Addr = cfg.Addr
	rcfg.Password = cfg.Password
	rcfg.DB = cfg.DB
	if cfg.PoolSize > 0 {
		rcfg.PoolSize = cfg.PoolSize
	}

	client, err := rediscache.Connect(ctx, rcfg)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	log.Info("leaderboard cache connected", logger.String("addr", cfg.Addr))

	breaker := circuitbreaker.CacheBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
	return &Cache{
		Cache: rediscache.NewGuardedCache(rediscache.NewLeaderboardCache(client, cfg.CacheTTL), breaker),
		Check: func(ctx context.Context) error { return client.Ping(ctx).Err() },
		Close: client.Close,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKUP ARCHIVE
// ══════════════════════════════════════════════════════════════════════════════

// ErrBackupDisabled is returned by OpenArchive when backups are off.
var ErrBackupDisabled = errors.New("backups are disabled")

// OpenArchive creates the S3 store backups are uploaded to.
func OpenArchive(ctx context.Context, cfg config.BackupConfig) (*s3.Store, error) {
	if !cfg.Enabled {
		return nil, ErrBackupDisabled
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s3.New(ctx, s3.Config{
		Region:          cfg.Region,
		Bucket:          cfg.Bucket,
		Endpoint:        cfg.Endpoint,
		AccessKeyID:     cfg.AccessKeyID,
		SecretAccessKey: cfg.SecretAccessKey,
		PathStyle:       cfg.PathStyle,
	})
}
