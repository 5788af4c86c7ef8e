package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

// Defaults applied when a maintenance task carries no explicit age.
const (
	DefaultPurgeAfter     = 30 * 24 * time.Hour
	DefaultAuditRetention = 30
)

var errNotConfigured = errors.New("not configured")

// DeletedPurger hard-deletes acknowledged soft-deleted cache rows.
type DeletedPurger interface {
	PurgeDeleted(ctx context.Context, before time.Time) (map[entities.Kind]int64, error)
}

// AuditEventCleaner drops audit events past their retention.
type AuditEventCleaner interface {
	DeleteOldEvents(ctx context.Context, retention time.Duration) (int64, error)
}

// maintenanceQueue is shared by the housekeeping tasks. They are cheap and
// idempotent, so they retry a few times and keep payloads only on failure.
func maintenanceQueue(name string) backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        name,
		MaxAttempts: 3,
		Backoff:     5 * time.Minute,
		Timeout:     2 * time.Minute,
		Retention: &backlite.Retention{
			Duration: 24 * time.Hour,
			Data:     &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// PurgeDeletedTask removes soft-deleted rows the store of record has
// acknowledged and that have not changed for the given age.
type PurgeDeletedTask struct {
	OlderThanHours int `json:"older_than_hours"`
}

func (t PurgeDeletedTask) Config() backlite.QueueConfig {
	return maintenanceQueue("purge_deleted")
}

func (t PurgeDeletedTask) age() time.Duration {
	if t.OlderThanHours <= 0 {
		return DefaultPurgeAfter
	}
	return time.Duration(t.OlderThanHours) * time.Hour
}

// PurgeDeletedProcessor hard-deletes rows older than the task's age.
func PurgeDeletedProcessor(purger DeletedPurger, log *zap.Logger) backlite.QueueProcessor[PurgeDeletedTask] {
	return func(ctx context.Context, task PurgeDeletedTask) error {
		if purger == nil {
			return fmt.Errorf("purge deleted rows: purger %w", errNotConfigured)
		}

		age := task.age()
		purged, err := purger.PurgeDeleted(ctx, time.Now().Add(-age))
		if err != nil {
			return fmt.Errorf("purge deleted rows: %w", err)
		}

		fields := []zap.Field{zap.Duration("older_than", age)}
		for kind, n := range purged {
			fields = append(fields, zap.Int64(string(kind), n))
		}
		log.Info("purged deleted rows", fields...)
		return nil
	}
}

func NewPurgeDeletedQueue(purger DeletedPurger, log *zap.Logger) backlite.Queue {
	return backlite.NewQueue(PurgeDeletedProcessor(purger, log.Named("tasks")))
}

// CleanupAuditEventsTask drops audit events older than RetentionDays.
type CleanupAuditEventsTask struct {
	RetentionDays int `json:"retention_days"`
}

func (t CleanupAuditEventsTask) Config() backlite.QueueConfig {
	return maintenanceQueue("cleanup_audit_events")
}

func (t CleanupAuditEventsTask) retention() (int, time.Duration) {
	days := t.RetentionDays
	if days <= 0 {
		days = DefaultAuditRetention
	}
	return days, time.Duration(days) * 24 * time.Hour
}

func CleanupAuditEventsProcessor(cleaner AuditEventCleaner, log *zap.Logger) backlite.QueueProcessor[CleanupAuditEventsTask] {
	return func(ctx context.Context, task CleanupAuditEventsTask) error {
		if cleaner == nil {
			return fmt.Errorf("cleanup audit events: cleaner %w", errNotConfigured)
		}

		days, retention := task.retention()
		deleted, err := cleaner.DeleteOldEvents(ctx, retention)
		if err != nil {
			return fmt.Errorf("cleanup audit events: %w", err)
		}

		log.Info("cleaned up audit events", zap.Int64("deleted", deleted), zap.Int("retention_days", days))
		return nil
	}
}

func NewCleanupAuditEventsQueue(cleaner AuditEventCleaner, log *zap.Logger) backlite.Queue {
	return backlite.NewQueue(CleanupAuditEventsProcessor(cleaner, log.Named("tasks")))
}
