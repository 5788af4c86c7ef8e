package entrypoint

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	http_controllers "github.com/mrlokans/bibliotheek/internal/http"
	"github.com/mrlokans/bibliotheek/internal/scheduler"
	"github.com/mrlokans/bibliotheek/internal/tasks"
)

// Serve runs the task queue, the sync scheduler and the local status API
// until SIGINT or SIGTERM, then shuts them down in reverse order.
func Serve(ctx context.Context, app *App, version string) error {
	cfg := app.Config
	log := app.Log

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var taskClient *tasks.Client
	opts := scheduler.Options{
		Sync:    cfg.Sync,
		Audit:   cfg.Audit,
		Purger:  app.Cache,
		Cleaner: app.Audit,
	}
	if cfg.Tasks.Enabled {
		taskCfg := tasks.FromConfig(cfg.Tasks)
		var err error
		taskClient, err = tasks.NewClient(cfg.Database.Path, taskCfg, log)
		if err != nil {
			return fmt.Errorf("task queue: %w", err)
		}
		defer func() {
			if err := taskClient.Close(); err != nil {
				log.Warn("error closing task client", zap.Error(err))
			}
		}()

		taskClient.Register(
			tasks.NewSyncAllQueue(app.Syncer, taskCfg, log),
			tasks.NewPurgeDeletedQueue(app.Cache, log),
			tasks.NewCleanupAuditEventsQueue(app.Audit, log),
		)
		// Workers get their own context so in-flight tasks can finish
		// during shutdown.
		taskCtx, cancelTasks := context.WithCancel(context.Background())
		defer cancelTasks()
		go taskClient.Start(taskCtx)
		opts.Queue = taskClient
	}

	sched := scheduler.NewSyncScheduler(app.Syncer, opts, log)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	if cfg.Sync.OnStartup {
		if err := sched.RunNow(ctx, "startup"); err != nil {
			log.Warn("startup sync not started", zap.Error(err))
		}
	}

	routerCfg := http_controllers.RouterConfig{
		Database:   app.DB,
		Session:    app.Session,
		Remote:     app.Remote,
		States:     app.States,
		Sync:       sched,
		Audit:      app.Audit,
		Catalog:    http_controllers.CacheReader{Catalog: app.Cache},
		PurgeAfter: cfg.Sync.PurgeAfter,
		Version:    version,
		Logger:     log,
	}
	if taskClient != nil {
		routerCfg.Tasks = taskClient
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:           http_controllers.NewRouter(routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
	}

	timeout := time.Duration(cfg.Global.ShutdownTimeoutInSeconds) * time.Second
	log.Info("shutting down", zap.Duration("timeout", timeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
	sched.Stop()
	if taskClient != nil {
		taskClient.Stop(shutdownCtx)
	}

	log.Info("server exited")
	return nil
}
