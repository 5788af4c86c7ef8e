// Package tasks runs sync passes and cache maintenance on a durable queue
// stored next to the cache database.
package tasks

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"
)

// Client owns the queue database and the backlite dispatcher.
type Client struct {
	queue   *backlite.Client
	db      *sql.DB
	workers int
	log     *zap.Logger
	started atomic.Bool
}

// QueuePath returns where the queue lives for a given cache database:
// "cache.db" becomes "cache-tasks.db" in the same directory.
func QueuePath(cachePath string) string {
	ext := filepath.Ext(cachePath)
	return strings.TrimSuffix(cachePath, ext) + "-tasks" + ext
}

// NewClient opens (and if needed installs) the queue database next to
// cachePath. Queues must be registered before Start.
func NewClient(cachePath string, cfg Config, log *zap.Logger) (*Client, error) {
	log = log.Named("tasks")
	path := QueuePath(cachePath)

	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open task queue %s: %w", path, err)
	}
	// Workers plus the enqueueing side and backlite's cleanup loop.
	db.SetMaxOpenConns(cfg.Workers + 2)
	db.SetConnMaxLifetime(time.Hour)

	queue, err := backlite.NewClient(backlite.ClientConfig{
		DB:              db,
		NumWorkers:      cfg.Workers,
		ReleaseAfter:    cfg.ReleaseAfter,
		CleanupInterval: cfg.CleanupInterval,
		Logger:          backliteLogger{log.Sugar()},
	})
	if err == nil {
		err = queue.Install()
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare task queue %s: %w", path, err)
	}

	log.Debug("task queue ready", zap.String("path", path))
	return &Client{queue: queue, db: db, workers: cfg.Workers, log: log}, nil
}

func (c *Client) Register(queues ...backlite.Queue) {
	for _, q := range queues {
		c.queue.Register(q)
	}
}

// Start dispatches tasks until ctx is cancelled or Stop is called. Calls
// after the first are no-ops.
func (c *Client) Start(ctx context.Context) {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	c.log.Info("task queue started", zap.Int("workers", c.workers))
	c.queue.Start(ctx)
}

// Stop waits for running tasks until ctx expires and reports whether they
// all finished.
func (c *Client) Stop(ctx context.Context) bool {
	if !c.started.Load() {
		return true
	}
	drained := c.queue.Stop(ctx)
	if drained {
		c.log.Info("task queue stopped")
	} else {
		c.log.Warn("task queue stopped before running tasks finished")
	}
	return drained
}

// Close releases the queue database. Call it after Stop.
func (c *Client) Close() error {
	return c.db.Close()
}

// Enqueue stores one task and returns its id.
func (c *Client) Enqueue(ctx context.Context, task backlite.Task) (string, error) {
	ids, err := c.queue.Add(task).Ctx(ctx).Save()
	if err != nil {
		return "", fmt.Errorf("enqueue %s: %w", task.Config().Name, err)
	}
	return ids[0], nil
}

func (c *Client) Status(ctx context.Context, taskID string) (backlite.TaskStatus, error) {
	return c.queue.Status(ctx, taskID)
}

// backliteLogger feeds backlite's key/value log calls into zap.
type backliteLogger struct {
	log *zap.SugaredLogger
}

func (l backliteLogger) Info(message string, params ...any)  { l.log.Infow(message, params...) }
func (l backliteLogger) Error(message string, params ...any) { l.log.Errorw(message, params...) }
