// Package app wires the sync core together: durable store, cache, queue,
// orchestrator and the S3 remote, plus the command surface of the syncbox
// binary.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dkarpov/syncbox/internal/cache"
	"github.com/dkarpov/syncbox/internal/config"
	"github.com/dkarpov/syncbox/internal/logging"
	"github.com/dkarpov/syncbox/internal/models"
	"github.com/dkarpov/syncbox/internal/queue"
	s3remote "github.com/dkarpov/syncbox/internal/remote/s3"
	"github.com/dkarpov/syncbox/internal/storage"
	"github.com/dkarpov/syncbox/internal/storage/postgres"
	"github.com/dkarpov/syncbox/internal/storage/sqlite"
	"github.com/dkarpov/syncbox/internal/syncer"
)

type App struct {
	config   *config.Config
	logger   logging.Logger
	store    storage.Store
	cache    *cache.Store
	queue    *queue.Queue
	remote   syncer.Remote
	resolver *syncer.Resolver
	syncer   *syncer.Orchestrator
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	maxBytes := int64(cfg.MaxCacheSizeMB) * 1024 * 1024
	ttls := cache.TTLs{
		High:   cfg.HighPriorityTTL,
		Medium: cfg.MediumPriorityTTL,
		Low:    cfg.LowPriorityTTL,
	}
	c := cache.NewStore(store, maxBytes, ttls, logger)
	q := queue.New(store, cfg.MaxRetries, logger)

	remote, err := s3remote.New(ctx, cfg.S3, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("remote init error: %w", err)
	}

	return &App{
		config:   cfg,
		logger:   logger,
		store:    store,
		cache:    c,
		queue:    q,
		remote:   remote,
		resolver: syncer.NewResolver(store, logger),
		syncer:   syncer.New(q, remote, store, cfg.SyncBatchSize, logger),
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.StoreDriver {
	case "postgres":
		return postgres.Open(ctx, cfg.StoreDSN)
	case "sqlite":
		return sqlite.Open(ctx, cfg.StoreDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Run dispatches the subcommand in args (stats, cleanup, sync, status or
// run) and releases the store afterwards.
func (app *App) Run(ctx context.Context, args []string) error {
	defer app.store.Close()

	cmd := "run"
	if len(args) > 0 {
		cmd = args[0]
	}

	switch cmd {
	case "stats":
		return app.runStats(ctx)
	case "cleanup":
		return app.runCleanup(ctx)
	case "sync":
		return app.runSync(ctx)
	case "status":
		return app.runStatus(ctx)
	case "run":
		return app.runLoop(ctx)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (app *App) runStats(ctx context.Context) error {
	stats, err := app.queue.Stats(ctx)
	if err != nil {
		return err
	}
	quota, err := app.cache.Quota(ctx)
	if err != nil {
		return err
	}
	return printJSON(map[string]any{
		"queue": stats,
		"quota": quota,
	})
}

func (app *App) runCleanup(ctx context.Context) error {
	res, err := app.cache.Cleanup(ctx)
	if err != nil {
		return err
	}
	app.logger.Info(ctx, "cleanup finished",
		"expired_cache_entries", res.ExpiredCacheEntries,
		"completed_operations", res.CompletedOperations,
		"failed_operations", res.FailedOperations)
	return printJSON(res)
}

func (app *App) runSync(ctx context.Context) error {
	if _, err := app.queue.RecoverStale(ctx); err != nil {
		return err
	}
	result, err := app.syncer.Sync(ctx, syncer.Options{})
	if err != nil {
		return err
	}
	return printJSON(result)
}

func (app *App) runStatus(ctx context.Context) error {
	return printJSON(app.syncer.Status(ctx))
}

// runLoop starts the periodic drain against the remote and blocks until a
// termination signal arrives.
func (app *App) runLoop(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.initSignalHandler(cancel)

	if _, err := app.queue.RecoverStale(ctx); err != nil {
		return err
	}

	app.queue.StartDrain(ctx, app.config.SyncInterval, app.config.RetryDelay, app.attempt)
	app.logger.Info(ctx, "sync loop running", "interval", app.config.SyncInterval.String())

	<-ctx.Done()
	app.queue.StopDrain()
	app.logger.Info(context.Background(), "sync loop stopped")
	return nil
}

// attempt adapts the remote's verdicts to the drain loop: conflicts
// resolved by policy count as applied, manual ones keep the operation
// failing until someone intervenes.
func (app *App) attempt(ctx context.Context, op models.Operation) error {
	res, err := app.remote.Attempt(ctx, op)
	if err != nil {
		return err
	}

	switch {
	case res.Conflict:
		record, rerr := app.resolver.Resolve(ctx, op, res.RemoteData)
		if rerr != nil {
			return rerr
		}
		if record.Resolution == models.Manual {
			return errors.New("manual conflict resolution required")
		}
		return nil
	case res.Success:
		return nil
	default:
		if res.Error != "" {
			return errors.New(res.Error)
		}
		return errors.New("remote rejected operation")
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
