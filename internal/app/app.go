package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/afero"

	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/adapters/notify"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/adapters/source"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/config"
	core "github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/models"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/domain/ports"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/core/service"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/database/bunstore"
	"github.com/IAM-NET-GmbH/fileserver-sub001/internal/server"
)

const shutdownTimeout = 5 * time.Second

// App wires the provider orchestration engine together and owns its
// lifecycle.
type App struct {
	cfg       *config.Config
	log       *slog.Logger
	store     *bunstore.BunStore
	scheduler *service.Scheduler
	srv       *http.Server
	cancel    context.CancelFunc
}

func New(cfg *config.Config) *App {
	return &App{cfg: cfg}
}

// Start brings up storage, recovers interrupted checks, starts the
// scheduler and serves the API. Returns once everything is running.
func (a *App) Start() error {
	a.log = newLogger(a.cfg.LogLevel)

	if dir := filepath.Dir(a.cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create database directory: %w", err)
		}
	}
	sqldb, err := bunstore.OpenSQLite(a.cfg.DatabasePath)
	if err != nil {
		return err
	}
	store, err := bunstore.New(sqldb, nil)
	if err != nil {
		return err
	}
	a.store = store

	notifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	state := service.NewStateMachine(store, store, notifier, a.cfg.EmptyCheckLimit, a.log)
	ingest := service.NewIngestService(store, a.log)
	factory := service.NewAdapterFactory(afero.NewOsFs(), a.log)

	a.scheduler = service.NewScheduler(store, state, ingest, factory, notifier, service.SchedulerOptions{
		Tick:                a.cfg.SchedulerTick,
		CheckTimeout:        a.cfg.CheckTimeout,
		MaxConcurrentChecks: a.cfg.MaxConcurrentChecks,
	}, a.log)

	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	// Providers stuck in "checking" from a previous process must be
	// resolved before any dispatching starts.
	if err := state.RecoverInterrupted(ctx); err != nil {
		return fmt.Errorf("startup recovery failed: %w", err)
	}

	a.scheduler.Start(ctx)

	if a.cfg.WatchLocalFolders {
		if err := a.startWatcher(ctx); err != nil {
			a.log.Warn("local folder watcher disabled", slog.Any("error", err))
		}
	}

	apiServer := server.NewServer(state, a.scheduler, store, store, store, a.log)
	a.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.APIPort),
		Handler: apiServer.RegisterRoutes(),
	}
	go func() {
		a.log.Info("listening", slog.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("server stopped", slog.Any("error", err))
			os.Exit(2)
		}
	}()

	return nil
}

// Stop shuts the API down, halts scheduling and waits for in-flight checks.
func (a *App) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.srv != nil {
		_ = a.srv.Shutdown(ctx)
	}
	if a.cancel != nil {
		a.cancel()
	}
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
}

func (a *App) newNotifier() (ports.Notifier, error) {
	if a.cfg.RedisURL == "" {
		return notify.NewSlogNotifier(a.log), nil
	}
	opt, err := redis.ParseURL(a.cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid FS_REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("cannot reach redis: %w", err)
	}
	a.log.Info("publishing events to redis", slog.String("channel", a.cfg.NotifyChannel))
	return notify.NewRedisNotifier(rdb, a.cfg.NotifyChannel, a.log), nil
}

// startWatcher registers filesystem watches for local-folder providers so
// local drops trigger a check ahead of the interval.
func (a *App) startWatcher(ctx context.Context) error {
	watcher, err := source.NewWatcher(func(ctx context.Context, providerID string) {
		if _, err := a.scheduler.CheckNow(ctx, providerID); err != nil {
			a.log.Warn("watch-triggered check failed", slog.String("provider", providerID), slog.Any("error", err))
		}
	}, a.log)
	if err != nil {
		return err
	}

	providers, err := a.store.ListProviders(ctx)
	if err != nil {
		return err
	}
	watched := 0
	for _, p := range providers {
		if p.Type != core.TypeLocalFolder || !p.Enabled {
			continue
		}
		cfg, err := p.DecodeConfig()
		if err != nil || cfg.Folder == nil {
			continue
		}
		if err := watcher.AddProvider(p.ID, cfg.Folder.WatchPath); err != nil {
			a.log.Warn("cannot watch provider path", slog.String("provider", p.ID), slog.Any("error", err))
			continue
		}
		watched++
	}
	if watched == 0 {
		return nil
	}

	go func() {
		if err := watcher.Start(ctx); err != nil {
			a.log.Warn("watcher stopped", slog.Any("error", err))
		}
	}()
	return nil
}

func newLogger(level string) *slog.Logger {
	lo := &slog.HandlerOptions{}
	switch level {
	case "debug":
		lo.Level = slog.LevelDebug
	case "warn":
		lo.Level = slog.LevelWarn
	case "error":
		lo.Level = slog.LevelError
	default:
		lo.Level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, lo))
}
