package entities

import (
	"time"
)

type SyncStatus string

const (
	SyncStatusRunning   SyncStatus = "running"
	SyncStatusCompleted SyncStatus = "completed"
	SyncStatusFailed    SyncStatus = "failed"
)

// SyncState tracks the most recent full-sync attempt for one kind.
type SyncState struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	Kind          Kind       `gorm:"size:20;uniqueIndex" json:"kind"`
	PassID        string     `gorm:"size:36" json:"pass_id"`
	Status        SyncStatus `gorm:"size:20" json:"status"`
	Pulled        int        `json:"pulled"`
	Pushed        int        `json:"pushed"`
	Error         string     `gorm:"type:text" json:"error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	LastSuccessAt *time.Time `json:"last_success_at,omitempty"`
}

func (SyncState) TableName() string {
	return "sync_states"
}
