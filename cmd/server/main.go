package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/territories/internal/config"
	"github.com/playperu/territories/internal/database"
	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/handler/health"
	"github.com/playperu/territories/internal/handler/stream"
	"github.com/playperu/territories/internal/live"
	"github.com/playperu/territories/internal/migrations"
	"github.com/playperu/territories/internal/server"
	"github.com/playperu/territories/internal/storage"
	"github.com/playperu/territories/internal/upload"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// stateStore is a game.Store that can also report its health.
type stateStore interface {
	game.Store
	health.Checker
}

func run(ctx context.Context, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	// --- State store ---
	var store stateStore
	switch cfg.StateStore {
	case "sqlite":
		path := inDataDir(cfg.DataDir, cfg.DBPath)
		db, err := database.Open(ctx, path)
		if err != nil {
			return fmt.Errorf("connecting to sqlite: %w", err)
		}
		defer db.Close()

		if err := migrations.Run(ctx, db, logger); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("connected to sqlite", "path", path)
		store = storage.NewDocStore(db)
	default:
		path := inDataDir(cfg.DataDir, cfg.StateFile)
		logger.Info("using state file", "path", path)
		store = storage.NewFileStore(path)
	}

	seed, err := storage.LoadSeed(cfg.SeedFile)
	if err != nil {
		return fmt.Errorf("loading seed: %w", err)
	}

	// --- Game ---
	broker := live.NewBroker(cfg.QueueSize, logger)
	sessions := live.NewSessions(cfg.SessionTTL)
	uploads := upload.NewStore(filepath.Join(cfg.DataDir, "uploads"), 0)

	opts := game.Options{
		Rules: game.Rules{
			VerifyWindow:        cfg.VerifyWindow,
			TaskWindow:          cfg.TaskWindow,
			CaptureLock:         cfg.CaptureLock,
			WrongAnswerLock:     cfg.WrongAnswerLock,
			WrongAnswerCooldown: cfg.WrongAnswerCooldown,
			MaxAnswerLen:        cfg.MaxAnswerLen,
			EventLogCap:         cfg.EventLogCap,
		},
		Seed:      seed,
		Geometry:  storage.NewDir(cfg.DataDir),
		Publisher: broker,
		Logger:    logger,
	}
	var archive *storage.Archive
	if cfg.ArchiveOnReset {
		archive = storage.NewArchive(filepath.Join(cfg.DataDir, "archive"))
		opts.Archiver = archive
	}

	engine := game.NewEngine(store, opts)
	if err := engine.Load(ctx); err != nil {
		return err
	}

	// --- HTTP Server ---
	deps := server.Deps{
		Engine:    engine,
		Sessions:  sessions,
		Broker:    broker,
		Uploads:   uploads,
		PublicDir: cfg.PublicDir,
		Heartbeat: cfg.HeartbeatInterval,
		RateLimit: cfg.RateLimitRPS,
		RateBurst: cfg.RateLimitBurst,
	}
	if archive != nil {
		deps.Archives = archive
	}

	srv := server.New(cfg.HTTPAddr, logger, deps, func(r chi.Router) {
		r.Mount("/healthz", health.NewHandler(logger,
			map[string]health.Checker{"state": store},
			map[string]health.Gauge{
				"streams":  broker.Len,
				"sessions": sessions.Len,
			},
		).Routes())
		r.Mount("/api/ws", stream.NewHandler(logger, sessions, engine, broker, cfg.HeartbeatInterval).Routes())
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	g.Go(func() error {
		return engine.RunResync(gctx, cfg.ResyncInterval)
	})

	return g.Wait()
}

// inDataDir resolves relative paths against the data directory.
func inDataDir(dir, path string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
