// Package main is the maintenance command of the Weaver bot.
//
// It runs one task against the configured stores and exits:
//
//	worker backup           upload a ledger snapshot to object storage
//	worker backups          list uploaded snapshots
//	worker export           write the ledger, in file format, to stdout
//	worker import <file>    upsert a ledger file into the sqlite store
//	worker migrate          apply postgres migrations
//	worker status           show postgres migration status
//
// Configuration is read from the same environment variables as the bot.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/realm-weaver/weaver-bot/config"
	"github.com/realm-weaver/weaver-bot/internal/bootstrap"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/jsonfile"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/persistence/postgres"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/scheduler"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/scheduler/jobs"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

const usage = "usage: worker <backup|backups|export|import <file>|migrate|status>"

var errUsage = errors.New(usage)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Observability.LogLevel),
		Format: cfg.Observability.LogFormat,
	}).With(logger.Component("worker"), logger.Operation(args[0]))
	defer func() { _ = log.Sync() }()

	switch args[0] {
	case "backup":
		return runBackup(ctx, cfg, log)
	case "backups":
		return listBackups(ctx, cfg)
	case "export":
		return exportLedger(ctx, cfg, log)
	case "import":
		if len(args) != 2 {
			return errUsage
		}
		return importLedger(ctx, cfg, args[1], log)
	case "migrate", "status":
		return migrations(ctx, cfg, args[0] == "migrate", log)
	}
	return fmt.Errorf("unknown task %q\n%s", args[0], usage)
}

// ══════════════════════════════════════════════════════════════════════════════
// BACKUPS
// ══════════════════════════════════════════════════════════════════════════════

func runBackup(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	archive, err := bootstrap.OpenArchive(ctx, cfg.Backup)
	if err != nil {
		return err
	}
	store, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer store.Close()

	sched := scheduler.New(scheduler.Config{Logger: log})
	job := jobs.NewBackupLedgerJob(store.Repo, archive, cfg.Backup.Prefix, log)
	if err := sched.Register(job, scheduler.Every(cfg.Backup.Interval)); err != nil {
		return err
	}

	res, err := sched.RunNow(ctx, job.Name())
	if err != nil {
		return err
	}
	if res.Error != nil {
		return res.Error
	}
	log.Info("backup complete", logger.Latency(res.Duration))
	return nil
}

func listBackups(ctx context.Context, cfg *config.Config) error {
	archive, err := bootstrap.OpenArchive(ctx, cfg.Backup)
	if err != nil {
		return err
	}
	objects, err := archive.List(ctx, cfg.Backup.Prefix)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tSIZE\tMODIFIED")
	for _, o := range objects {
		fmt.Fprintf(w, "%s\t%d\t%s\n", o.Key, o.Size, o.LastModified.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

// ══════════════════════════════════════════════════════════════════════════════
// LEDGER TRANSFER
// ══════════════════════════════════════════════════════════════════════════════

func exportLedger(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	store, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := store.Repo.Snapshot(ctx)
	if err != nil {
		return err
	}
	body, err := jsonfile.Encode(snap)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(append(body, '\n'))
	return err
}

func importLedger(ctx context.Context, cfg *config.Config, path string, log *logger.Logger) error {
	if cfg.Store.Driver != config.DriverSQLite {
		return fmt.Errorf("import requires STORE_DRIVER=sqlite, got %q", cfg.Store.Driver)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	ledger, info, err := jsonfile.Decode(raw)
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if info.Skipped > 0 {
		log.Warn("ledger file has malformed entries", logger.Int("skipped", info.Skipped))
	}

	store, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := store.SQLite.Import(ctx, ledger)
	if err != nil {
		return err
	}
	log.Info("ledger imported", logger.String("file", path), logger.Int("records", n))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// migrations opens the postgres store, which applies pending migrations,
// and prints the resulting status.
func migrations(ctx context.Context, cfg *config.Config, announce bool, log *logger.Logger) error {
	if cfg.Store.Driver != config.DriverPostgres {
		return fmt.Errorf("migrations require STORE_DRIVER=postgres, got %q", cfg.Store.Driver)
	}
	store, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer store.Close()

	status, err := postgres.NewMigrator(store.Postgres).Status(ctx)
	if err != nil {
		return err
	}

	applied := 0
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
	for _, m := range status {
		when := "pending"
		if m.IsApplied {
			applied++
			when = m.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, when)
	}
	if announce {
		log.Info("database schema is up to date", logger.Int("applied", applied), logger.Int("total", len(status)))
	}
	return w.Flush()
}
