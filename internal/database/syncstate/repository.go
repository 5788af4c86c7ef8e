// Package syncstate records the outcome of full-sync passes per entity kind.
//
// # Usage
//
//	repo := syncstate.NewRepository(db)
//	err := repo.Start(ctx, entities.KindBook, passID)
//	err = repo.Complete(ctx, entities.KindBook, pulled, pushed, nil)
package syncstate

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

// staleAfter is how long a running state may go without updates before it is
// treated as interrupted.
const staleAfter = 10 * time.Minute

// Repository handles all sync state database operations.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewRepository creates a new sync state repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db, now: time.Now}
}

// Get returns the state of kind, or nil when it never synced.
func (r *Repository) Get(ctx context.Context, kind entities.Kind) (*entities.SyncState, error) {
	var state entities.SyncState
	err := r.db.WithContext(ctx).Where("kind = ?", kind).First(&state).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// All returns the state of every kind that has synced at least once.
func (r *Repository) All(ctx context.Context) ([]entities.SyncState, error) {
	var states []entities.SyncState
	err := r.db.WithContext(ctx).Order("kind").Find(&states).Error
	return states, err
}

// Start creates or resets the state of kind for a new pass. The time of the
// last success survives the reset.
func (r *Repository) Start(ctx context.Context, kind entities.Kind, passID string) error {
	now := r.now()
	state := entities.SyncState{
		Kind:      kind,
		PassID:    passID,
		Status:    entities.SyncStatusRunning,
		StartedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "kind"}},
		DoUpdates: clause.Assignments(map[string]any{
			"pass_id":      passID,
			"status":       entities.SyncStatusRunning,
			"pulled":       0,
			"pushed":       0,
			"error":        "",
			"started_at":   now,
			"updated_at":   now,
			"completed_at": nil,
		}),
	}).Create(&state).Error
}

// Complete marks the pass of kind finished, failed when syncErr is non-nil.
func (r *Repository) Complete(ctx context.Context, kind entities.Kind, pulled, pushed int, syncErr error) error {
	now := r.now()
	updates := map[string]any{
		"status":       entities.SyncStatusCompleted,
		"pulled":       pulled,
		"pushed":       pushed,
		"updated_at":   now,
		"completed_at": now,
	}
	if syncErr != nil {
		updates["status"] = entities.SyncStatusFailed
		updates["error"] = syncErr.Error()
	} else {
		updates["error"] = ""
		updates["last_success_at"] = now
	}
	return r.db.WithContext(ctx).Model(&entities.SyncState{}).
		Where("kind = ?", kind).
		Updates(updates).Error
}

// IsRunning reports whether any kind is mid-pass. A state not updated for
// ten minutes is marked failed as interrupted and does not count.
func (r *Repository) IsRunning(ctx context.Context) (bool, error) {
	var states []entities.SyncState
	err := r.db.WithContext(ctx).Where("status = ?", entities.SyncStatusRunning).Find(&states).Error
	if err != nil {
		return false, err
	}

	running := false
	threshold := r.now().Add(-staleAfter)
	for _, s := range states {
		if s.UpdatedAt.Before(threshold) {
			if err := r.Complete(ctx, s.Kind, s.Pulled, s.Pushed, errors.New("sync was interrupted")); err != nil {
				return false, err
			}
			continue
		}
		running = true
	}
	return running, nil
}
