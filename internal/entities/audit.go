package entities

import "time"

type AuditEventType string

const (
	AuditEventRead      AuditEventType = "read"
	AuditEventWrite     AuditEventType = "write"
	AuditEventSync      AuditEventType = "sync"
	AuditEventBootstrap AuditEventType = "bootstrap"
	AuditEventAuth      AuditEventType = "auth"
)

type AuditStatus string

const (
	AuditStatusSuccess  AuditStatus = "success"
	AuditStatusDegraded AuditStatus = "degraded"
	AuditStatusFailed   AuditStatus = "failed"
)

// AuditEvent is one diagnostic record: a remote fallback, a failed
// write-through, a sync pass outcome or a bootstrap step.
type AuditEvent struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	PassID      string         `gorm:"index;size:36" json:"pass_id,omitempty"`
	EventType   AuditEventType `gorm:"index;size:50" json:"event_type"`
	Kind        Kind           `gorm:"size:20" json:"kind,omitempty"`
	Action      string         `gorm:"size:100" json:"action"`
	Description string         `gorm:"size:500" json:"description"`
	EntityID    *uint          `gorm:"index" json:"entity_id,omitempty"`
	Status      AuditStatus    `gorm:"index;size:20" json:"status"`
	ErrorMsg    string         `gorm:"size:500" json:"error_msg,omitempty"`
	CreatedAt   time.Time      `gorm:"index" json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
