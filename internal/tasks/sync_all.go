package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/syncer"
)

// Syncer runs a full sync pass.
type Syncer interface {
	SyncAll(ctx context.Context) syncer.SyncReport
}

// SyncAllTask runs one full push and pull pass over every entity kind.
type SyncAllTask struct {
	// Trigger names what asked for the pass: "schedule", "startup" or "manual".
	Trigger string `json:"trigger,omitempty"`
}

// Config returns the queue configuration for sync tasks.
func (t SyncAllTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "sync_all",
		MaxAttempts: 1, // the next scheduled pass is the retry
		Backoff:     time.Minute,
		Timeout:     15 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// SyncAllProcessor creates a processor function for SyncAllTask. The task
// fails when at least one kind did not sync, so the queue keeps its data.
func SyncAllProcessor(s Syncer, cfg Config, log *zap.Logger) backlite.QueueProcessor[SyncAllTask] {
	return func(ctx context.Context, task SyncAllTask) error {
		if s == nil {
			return fmt.Errorf("sync pass: syncer %w", errNotConfigured)
		}
		if cfg.TaskTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.TaskTimeout)
			defer cancel()
		}

		report := s.SyncAll(ctx)
		log.Info("sync task finished",
			zap.String("trigger", task.Trigger),
			zap.String("pass_id", report.PassID),
			zap.Bool("ok", report.OK()))

		if failed := report.Failed(); len(failed) > 0 {
			return fmt.Errorf("sync pass %s: kinds failed: %v", report.PassID, failed)
		}
		return nil
	}
}

// NewSyncAllQueue creates a backlite queue for sync tasks.
func NewSyncAllQueue(s Syncer, cfg Config, log *zap.Logger) backlite.Queue {
	return backlite.NewQueue(SyncAllProcessor(s, cfg, log.Named("tasks")))
}
