// Package main is the entry point of the Weaver bot.
//
// The bot reads chat platform envelopes as newline-delimited JSON on stdin,
// awards experience, answers commands and writes replies and announcements
// back on stdout. Logs go to stderr. A small REST API exposes leaderboards,
// ranks, health and metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/realm-weaver/weaver-bot/config"
	"github.com/realm-weaver/weaver-bot/internal/application/command"
	"github.com/realm-weaver/weaver-bot/internal/application/eventhandler"
	"github.com/realm-weaver/weaver-bot/internal/application/query"
	"github.com/realm-weaver/weaver-bot/internal/bootstrap"
	"github.com/realm-weaver/weaver-bot/internal/domain/progress"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/messaging"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/metrics"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/scheduler"
	"github.com/realm-weaver/weaver-bot/internal/infrastructure/scheduler/jobs"
	"github.com/realm-weaver/weaver-bot/internal/interface/chat"
	httpserver "github.com/realm-weaver/weaver-bot/internal/interface/http"
	"github.com/realm-weaver/weaver-bot/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output:    os.Stderr,
		Level:     logger.ParseLevel(cfg.Observability.LogLevel),
		Format:    cfg.Observability.LogFormat,
		AddCaller: cfg.IsDevelopment(),
	}).With(logger.String("app", cfg.App.Name), logger.String("version", cfg.App.Version))
	defer func() { _ = log.Sync() }()

	log.Info("starting weaver bot",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("store", string(cfg.Store.Driver)),
	)

	m := metrics.New()

	// ═══════════════════════════════════════════════════════════════════════
	// STORAGE
	// ═══════════════════════════════════════════════════════════════════════

	store, err := bootstrap.OpenStore(ctx, cfg.Store, log)
	if err != nil {
		return fmt.Errorf("failed to open progress store: %w", err)
	}
	defer func() {
		log.Info("closing progress store")
		if err := store.Close(); err != nil {
			log.Warn("closing progress store failed", logger.Err(err))
		}
	}()
	var repo progress.Repository = m.InstrumentRepository(string(store.Driver), store.Repo)

	cache, err := bootstrap.OpenCache(ctx, cfg.Redis, log)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	if cache.Close != nil {
		defer func() { _ = cache.Close() }()
	}

	// ═══════════════════════════════════════════════════════════════════════
	// EVENTS
	// ═══════════════════════════════════════════════════════════════════════

	bus := messaging.New(messaging.Config{
		AsyncMode:      true,
		WorkerPoolSize: 10,
		Logger:         log,
		Observer:       m.ObserveHandler,
	})
	if err := m.Register(bus); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	console := chat.NewConsole(os.Stdout, log)
	if err := eventhandler.NewOnProgressHandler(console, cfg.Leveling.NotifyTimeout, log).Register(bus); err != nil {
		return fmt.Errorf("failed to register progress announcements: %w", err)
	}
	if err := eventhandler.NewOnMemberJoinedHandler(console, cfg.Leveling.NotifyTimeout, log).Register(bus); err != nil {
		return fmt.Errorf("failed to register welcome announcements: %w", err)
	}

	// ═══════════════════════════════════════════════════════════════════════
	// APPLICATION
	// ═══════════════════════════════════════════════════════════════════════

	deltas, err := progress.NewRandomDelta(cfg.Leveling.ActivityMin, cfg.Leveling.ActivityMax, nil)
	if err != nil {
		return fmt.Errorf("invalid activity range: %w", err)
	}

	leaderboardQuery := query.NewGetLeaderboardHandler(repo, cache, log)
	rankQuery := query.NewGetRankHandler(repo)

	router := chat.NewRouter(chat.Handlers{
		Award:       command.NewAwardActivityHandler(repo, deltas, bus, cache, log),
		Adjust:      command.NewAdjustExperienceHandler(repo, bus, cache, log),
		Joined:      command.NewMemberJoinedHandler(bus, log),
		Leaderboard: leaderboardQuery,
		Rank:        rankQuery,
	}, chat.RouterConfig{
		Logger:    log,
		Presenter: console.Presenter(),
		Observer: func(name string, err error) {
			m.ObserveCommand(name, metrics.OutcomeFor(err))
		},
		LeaderboardLimit: cfg.Leveling.LeaderboardLimit,
	})
	console.SetRouter(router)

	// ═══════════════════════════════════════════════════════════════════════
	// SERVICES
	// ═══════════════════════════════════════════════════════════════════════

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		checks := map[string]httpserver.HealthCheck{}
		if store.Check != nil {
			checks["store"] = store.Check
		}
		if cache.Check != nil {
			checks["redis"] = cache.Check
		}

		deps := httpserver.Dependencies{
			GetLeaderboardHandler: leaderboardQuery,
			GetRankHandler:        rankQuery,
			Checks:                checks,
			Logger:                log,
		}
		if cfg.Observability.MetricsEnabled {
			deps.Metrics = m.Handler()
		}

		httpConfig := httpserver.DefaultConfig()
		httpConfig.Addr = cfg.HTTP.Addr
		httpConfig.ShutdownTimeout = cfg.App.ShutdownTimeout
		srv := httpserver.NewServer(httpConfig, deps)
		g.Go(func() error { return srv.Run(gctx) })
	}

	if cfg.Backup.Enabled {
		archive, err := bootstrap.OpenArchive(ctx, cfg.Backup)
		if err != nil {
			return fmt.Errorf("failed to configure backups: %w", err)
		}
		sched := scheduler.New(scheduler.Config{Logger: log})
		job := jobs.NewBackupLedgerJob(repo, archive, cfg.Backup.Prefix, log)
		if err := sched.Register(job, scheduler.Every(cfg.Backup.Interval)); err != nil {
			return fmt.Errorf("failed to schedule backups: %w", err)
		}
		g.Go(func() error { return sched.Run(gctx) })
	}

	if cfg.App.ConsoleEnabled {
		g.Go(func() error {
			err := console.Run(gctx, os.Stdin)
			// Closing stdin ends the session.
			stop()
			return err
		})
	}

	log.Info("weaver bot is running",
		logger.Bool("console", cfg.App.ConsoleEnabled),
		logger.Bool("http", cfg.HTTP.Enabled),
		logger.Bool("backups", cfg.Backup.Enabled),
	)

	err = g.Wait()

	log.Info("draining event bus")
	if cerr := bus.Close(); cerr != nil {
		log.Warn("closing event bus failed", logger.Err(cerr))
	}
	if err != nil {
		return err
	}
	log.Info("weaver bot stopped")
	return nil
}
