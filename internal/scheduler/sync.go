// Package scheduler runs full sync passes and cache maintenance on a cron
// schedule, either inline or through the task queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/config"
	"github.com/mrlokans/bibliotheek/internal/tasks"
)

// maintenanceSchedule runs purge and audit cleanup once a day.
const maintenanceSchedule = "30 3 * * *"

// ErrSyncInProgress is returned by RunNow while an inline pass is running.
var ErrSyncInProgress = errors.New("sync already in progress")

// Enqueuer hands tasks to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
}

// Options configures a SyncScheduler.
type Options struct {
	Sync  config.Sync
	Audit config.Audit
	// Queue, when set, receives the work as tasks; otherwise it runs inline.
	Queue Enqueuer
	// Purger and Cleaner run maintenance inline when Queue is nil.
	Purger  tasks.DeletedPurger
	Cleaner tasks.AuditEventCleaner
}

// SyncScheduler manages periodic full sync passes.
type SyncScheduler struct {
	syncer tasks.Syncer
	opts   Options
	log    *zap.Logger

	cron      *cron.Cron
	entryID   cron.EntryID
	mu        sync.RWMutex
	isRunning bool
	isSyncing bool
	stopWatch context.CancelFunc
}

func NewSyncScheduler(s tasks.Syncer, opts Options, log *zap.Logger) *SyncScheduler {
	return &SyncScheduler{
		syncer: s,
		opts:   opts,
		log:    log.Named("scheduler"),
		cron:   cron.New(cron.WithParser(parser)),
	}
}

// Start schedules the sync and maintenance jobs if periodic sync is enabled.
// The scheduler stops when ctx is cancelled.
func (s *SyncScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return nil
	}
	if !s.opts.Sync.Enabled {
		s.log.Info("periodic sync disabled")
		return nil
	}

	schedule := s.opts.Sync.Schedule
	if err := ValidateSchedule(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule '%s': %w", schedule, err)
	}

	entryID, err := s.cron.AddFunc(schedule, func() {
		if err := s.trigger(context.Background(), "schedule"); err != nil && !errors.Is(err, ErrSyncInProgress) {
			s.log.Error("scheduled sync failed to start", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	s.entryID = entryID

	if _, err := s.cron.AddFunc(maintenanceSchedule, func() {
		s.runMaintenance(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule maintenance job: %w", err)
	}

	var watchCtx context.Context
	watchCtx, s.stopWatch = context.WithCancel(ctx)

	s.cron.Start()
	s.isRunning = true

	next, _ := NextRun(schedule, time.Now())
	s.log.Info("sync scheduler started",
		zap.String("schedule", schedule),
		zap.String("description", Describe(schedule)),
		zap.Time("next_run", next))

	go func() {
		<-watchCtx.Done()
		s.Stop()
	}()
	return nil
}

// Stop stops accepting new jobs and waits for running ones to complete.
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stopWatch := s.stopWatch
	s.stopWatch = nil
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	if stopWatch != nil {
		stopWatch()
	}
	s.log.Info("sync scheduler stopped")
}

// RunNow triggers a pass immediately. With a queue the pass is enqueued;
// otherwise it runs in the background and ErrSyncInProgress is returned when
// one is already running.
func (s *SyncScheduler) RunNow(ctx context.Context, trigger string) error {
	return s.trigger(ctx, trigger)
}

// IsRunning returns whether the scheduler is active.
func (s *SyncScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// IsSyncing returns whether an inline pass is in progress.
func (s *SyncScheduler) IsSyncing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isSyncing
}

// NextRunTime returns when the next scheduled pass will occur.
func (s *SyncScheduler) NextRunTime() *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.isRunning {
		return nil
	}
	for _, entry := range s.cron.Entries() {
		if entry.ID == s.entryID {
			t := entry.Next
			return &t
		}
	}
	return nil
}

func (s *SyncScheduler) trigger(ctx context.Context, trigger string) error {
	if s.opts.Queue != nil {
		id, err := s.opts.Queue.Enqueue(ctx, tasks.SyncAllTask{Trigger: trigger})
		if err != nil {
			return err
		}
		s.log.Info("sync task enqueued", zap.String("trigger", trigger), zap.String("task_id", id))
		return nil
	}

	if !s.beginSync() {
		s.log.Info("sync skipped, already syncing", zap.String("trigger", trigger))
		return ErrSyncInProgress
	}
	go func() {
		defer s.endSync()
		report := s.syncer.SyncAll(context.WithoutCancel(ctx))
		s.log.Info("sync pass done",
			zap.String("trigger", trigger),
			zap.String("pass_id", report.PassID),
			zap.Bool("ok", report.OK()))
	}()
	return nil
}

func (s *SyncScheduler) beginSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isSyncing {
		return false
	}
	s.isSyncing = true
	return true
}

func (s *SyncScheduler) endSync() {
	s.mu.Lock()
	s.isSyncing = false
	s.mu.Unlock()
}

// runMaintenance purges acknowledged deletes and expired audit events.
func (s *SyncScheduler) runMaintenance(ctx context.Context) {
	purge := tasks.PurgeDeletedTask{OlderThanHours: int(s.opts.Sync.PurgeAfter / time.Hour)}
	cleanup := tasks.CleanupAuditEventsTask{RetentionDays: s.opts.Audit.RetentionDays}

	if s.opts.Queue != nil {
		for _, task := range []backlite.Task{purge, cleanup} {
			if _, err := s.opts.Queue.Enqueue(ctx, task); err != nil {
				s.log.Error("failed to enqueue maintenance task", zap.String("task", task.Config().Name), zap.Error(err))
			}
		}
		return
	}

	if s.opts.Purger != nil {
		if err := tasks.PurgeDeletedProcessor(s.opts.Purger, s.log)(ctx, purge); err != nil {
			s.log.Error("purge failed", zap.Error(err))
		}
	}
	if s.opts.Cleaner != nil {
		if err := tasks.CleanupAuditEventsProcessor(s.opts.Cleaner, s.log)(ctx, cleanup); err != nil {
			s.log.Error("audit cleanup failed", zap.Error(err))
		}
	}
}
