// Package sqlite implements the progress store on an embedded SQLite
// database. Members keep a sequence number so ranking ties follow
// first-seen order.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// DefaultPath is the database file used when none is configured.
const DefaultPath = "weaver.db"

const schema = `
CREATE TABLE IF NOT EXISTS progress (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id   TEXT    NOT NULL,
	user_id    TEXT    NOT NULL,
	exp        INTEGER NOT NULL DEFAULT 0 CHECK (exp >= 0),
	level      INTEGER NOT NULL DEFAULT 1 CHECK (level >= 1),
	updated_at TEXT    NOT NULL,
	UNIQUE (guild_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_progress_guild_seq ON progress (guild_id, seq);
`

const upsertSQL = `
INSERT INTO progress (guild_id, user_id, exp, level, updated_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (guild_id, user_id) DO UPDATE
SET exp = excluded.exp, level = excluded.level, updated_at = excluded.updated_at`

// Store is a progress.Repository on SQLite.
type Store struct {
	db     *sql.DB
	path   string
	logger *logger.Logger

	// mu serializes read-modify-write cycles inside this process.
	mu sync.Mutex
}

var _ progress.Repository = (*Store)(nil)

// NewStore opens (or creates) the database at path and applies the schema.
func NewStore(path string, log *logger.Logger) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if log == nil {
		log = logger.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: SQLite allows a single writer and this keeps
	// pragmas applied to every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA busy_timeout = 5000`,
		`PRAGMA journal_mode = WAL`,
		`PRAGMA synchronous = FULL`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create progress table: %w", err)
	}

	return &Store{
		db:     db,
		path:   path,
		logger: log.With(logger.Component("sqlite_store"), logger.String("path", path)),
	}, nil
}

// Get implements progress.Reader.
func (s *Store) Get(ctx context.Context, guild shared.GuildID, user shared.UserID) (progress.Record, error) {
	rec, _, err := getRecord(ctx, s.db, guild, user)
	if err != nil {
		return progress.Record{}, progress.StorageError("Get", err)
	}
	return rec, nil
}

// AllForGuild implements progress.Reader.
func (s *Store) AllForGuild(ctx context.Context, guild shared.GuildID) ([]progress.Standing, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, exp FROM progress WHERE guild_id = ? ORDER BY seq`, string(guild))
	if err != nil {
		return nil, progress.StorageError("AllForGuild", err)
	}
	defer func() { _ = rows.Close() }()

	out := []progress.Standing{}
	for rows.Next() {
		var (
			user string
			exp  int64
		)
		if err := rows.Scan(&user, &exp); err != nil {
			return nil, progress.StorageError("AllForGuild", fmt.Errorf("scan: %w", err))
		}
		out = append(out, progress.Standing{
			UserID: shared.UserID(user),
			Record: progress.Record{Exp: exp}.Normalize(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, progress.StorageError("AllForGuild", err)
	}
	return out, nil
}

// Update implements progress.Repository.
func (s *Store) Update(ctx context.Context, guild shared.GuildID, user shared.UserID, fn progress.UpdateFunc) (_ progress.Record, retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return progress.Record{}, progress.StorageError("Update", fmt.Errorf("begin: %w", err))
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	current, _, err := getRecord(ctx, tx, guild, user)
	if err != nil {
		return progress.Record{}, progress.StorageError("Update", err)
	}

	next, err := fn(current)
	if err != nil {
		return progress.Record{}, err
	}
	next = next.Normalize()

	if _, err := tx.ExecContext(ctx, upsertSQL,
		string(guild), string(user), next.Exp, next.Level, time.Now().UTC().Format(time.RFC3339Nano),
	); err != nil {
		return progress.Record{}, progress.StorageError("Update", fmt.Errorf("upsert: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return progress.Record{}, progress.StorageError("Update", fmt.Errorf("commit: %w", err))
	}
	return next, nil
}

// Snapshot implements progress.Repository.
func (s *Store) Snapshot(ctx context.Context) (*progress.Ledger, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT guild_id, user_id, exp FROM progress ORDER BY seq`)
	if err != nil {
		return nil, progress.StorageError("Snapshot", err)
	}
	defer func() { _ = rows.Close() }()

	ledger := progress.NewLedger()
	for rows.Next() {
		var (
			guild, user string
			exp         int64
		)
		if err := rows.Scan(&guild, &user, &exp); err != nil {
			return nil, progress.StorageError("Snapshot", fmt.Errorf("scan: %w", err))
		}
		ledger.Set(shared.GuildID(guild), shared.UserID(user), progress.Record{Exp: exp}.Normalize())
	}
	if err := rows.Err(); err != nil {
		return nil, progress.StorageError("Snapshot", err)
	}
	return ledger, nil
}

// Import copies every record of ledger into the store in ledger order.
// Existing members are overwritten and keep their sequence number.
func (s *Store) Import(ctx context.Context, ledger *progress.Ledger) (n int, retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, progress.StorageError("Import", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, guild := range ledger.Guilds() {
		for _, st := range ledger.Standings(guild) {
			rec := st.Record.Normalize()
			if _, err := tx.ExecContext(ctx, upsertSQL, string(guild), string(st.UserID), rec.Exp, rec.Level, now); err != nil {
				return 0, progress.StorageError("Import", err)
			}
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, progress.StorageError("Import", err)
	}
	s.logger.Info("ledger imported", logger.Int("records", n))
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRecord(ctx context.Context, q queryer, guild shared.GuildID, user shared.UserID) (progress.Record, bool, error) {
	var exp int64
	err := q.QueryRowContext(ctx,
		`SELECT exp FROM progress WHERE guild_id = ? AND user_id = ?`, string(guild), string(user),
	).Scan(&exp)
	if errors.Is(err, sql.ErrNoRows) {
		return progress.NewRecord(), false, nil
	}
	if err != nil {
		return progress.Record{}, false, fmt.Errorf("select progress: %w", err)
	}
	return progress.Record{Exp: exp}.Normalize(), true, nil
}
