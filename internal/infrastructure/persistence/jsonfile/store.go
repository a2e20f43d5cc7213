package jsonfile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/domain/shared"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

// DefaultPath is the ledger file used when none is configured.
const DefaultPath = "data.json"

// Options configures a Store.
type Options struct {
	Path   string
	Logger *logger.Logger

	// FileMode of the ledger file (default 0o644).
	FileMode os.FileMode
}

// Store is a progress.Repository persisted to one JSON file. Each
// mutation holds the store lock for the whole read-modify-write cycle.
type Store struct {
	path   string
	mode   os.FileMode
	logger *logger.Logger

	mu  sync.Mutex
	now func() time.Time
}

var _ progress.Repository = (*Store)(nil)

// Open prepares the ledger file, creating an empty ledger when it does not
// exist yet.
func Open(opts Options) (*Store, error) {
	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = DefaultPath
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.FileMode == 0 {
		opts.FileMode = 0o644
	}

	s := &Store{
		path:   path,
		mode:   opts.FileMode,
		logger: opts.Logger.With(logger.Component("jsonfile_store"), logger.String("path", path)),
		now:    time.Now,
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, progress.StorageError("Open", err)
		}
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.save(progress.NewLedger()); err != nil {
			return nil, progress.StorageError("Open", err)
		}
		s.logger.Info("created empty ledger")
	} else if err != nil {
		return nil, progress.StorageError("Open", err)
	}

	return s, nil
}

// Path returns the ledger file path.
func (s *Store) Path() string {
	return s.path
}

// Get implements progress.Reader. Unreadable ledgers read as empty.
func (s *Store) Get(ctx context.Context, guild shared.GuildID, user shared.UserID) (progress.Record, error) {
	if err := ctx.Err(); err != nil {
		return progress.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadForRead().Lookup(guild, user), nil
}

// AllForGuild implements progress.Reader.
func (s *Store) AllForGuild(ctx context.Context, guild shared.GuildID) ([]progress.Standing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadForRead().Standings(guild), nil
}

// Snapshot implements progress.Repository.
func (s *Store) Snapshot(ctx context.Context) (*progress.Ledger, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadForRead(), nil
}

// Update implements progress.Repository.
func (s *Store) Update(ctx context.Context, guild shared.GuildID, user shared.UserID, fn progress.UpdateFunc) (progress.Record, error) {
	if err := ctx.Err(); err != nil {
		return progress.Record{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, err := s.loadForWrite()
	if err != nil {
		return progress.Record{}, progress.StorageError("Update", err)
	}

	next, err := fn(ledger.Lookup(guild, user))
	if err != nil {
		return progress.Record{}, err
	}
	next = next.Normalize()
	ledger.Set(guild, user, next)

	if err := s.save(ledger); err != nil {
		s.logger.Error("failed to write ledger", logger.GuildID(guild.String()), logger.UserID(user.String()), logger.Err(err))
		return progress.Record{}, progress.StorageError("Update", err)
	}
	return next, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// FILE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// loadForRead never fails: anything that cannot be read is logged and
// treated as an empty ledger. A missing file or users key is repaired.
func (s *Store) loadForRead() *progress.Ledger {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("ledger missing, re-initializing")
		s.tryRewrite(progress.NewLedger())
		return progress.NewLedger()
	}
	if err != nil {
		s.logger.Warn("ledger unreadable, serving empty ledger", logger.Err(err))
		return progress.NewLedger()
	}

	ledger, info, err := Decode(data)
	if err != nil {
		s.logger.Warn("ledger corrupt, serving empty ledger", logger.Err(err))
		return progress.NewLedger()
	}
	if info.NeedsRewrite() {
		s.logRepair(info)
		s.tryRewrite(ledger)
	}
	return ledger
}

// loadForWrite returns the ledger a mutation starts from. A missing file
// starts a new ledger; a corrupt one is moved aside first. I/O failures
// abort the mutation so a ledger that could not be read is never
// overwritten.
func (s *Store) loadForWrite() (*progress.Ledger, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("ledger missing, starting a new one")
		return progress.NewLedger(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	ledger, info, err := Decode(data)
	if err != nil {
		s.quarantine(err)
		return progress.NewLedger(), nil
	}
	if info.NeedsRewrite() {
		s.logRepair(info)
	}
	return ledger, nil
}

// quarantine moves a corrupt ledger to <path>.corrupt-<timestamp>. Failure
// to do so is logged; the next save replaces the file either way.
func (s *Store) quarantine(cause error) {
	dst := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().UTC().Format("20060102T150405.000000000Z"))
	if err := os.Rename(s.path, dst); err != nil {
		s.logger.Error("ledger corrupt and could not be moved aside", logger.Err(cause), logger.String("rename_error", err.Error()))
		return
	}
	s.logger.Warn("ledger corrupt, moved aside and starting a new one", logger.Err(cause), logger.String("backup", dst))
}

func (s *Store) logRepair(info DecodeInfo) {
	s.logger.Warn("ledger repaired on load",
		logger.Bool("missing_users", info.MissingUsers),
		logger.Int("skipped_entries", info.Skipped),
		logger.Bool("relevelled", info.Relevelled),
	)
}

func (s *Store) tryRewrite(ledger *progress.Ledger) {
	if err := s.save(ledger); err != nil {
		s.logger.Warn("ledger re-initialization failed", logger.Err(err))
	}
}

// save writes the ledger to a temp file in the same directory and renames
// it over the ledger.
func (s *Store) save(ledger *progress.Ledger) error {
	data, err := Encode(ledger)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace ledger: %w", err)
	}
	return nil
}
