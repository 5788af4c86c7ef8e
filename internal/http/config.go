package http

import (
	"context"
	"time"

	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	dbaudit "github.com/mrlokans/bibliotheek/internal/database/audit"
	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/session"
)

// Pinger reports whether the local database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionView exposes the current session without letting handlers change it.
type SessionView interface {
	Mode() session.Mode
	Identity() session.Identity
}

// RemoteStatus reports whether the store of record is currently reachable
// from the client's point of view.
type RemoteStatus interface {
	Available() bool
}

type SyncStates interface {
	All(ctx context.Context) ([]entities.SyncState, error)
}

// SyncTrigger starts full sync passes on demand.
type SyncTrigger interface {
	RunNow(ctx context.Context, trigger string) error
	IsSyncing() bool
	NextRunTime() *time.Time
}

type TaskQueue interface {
	Enqueue(ctx context.Context, task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}

type AuditReader interface {
	Events(ctx context.Context, f dbaudit.Filter, limit, offset int) ([]entities.AuditEvent, int64, error)
}

// CatalogReader serves list endpoints straight from the local cache so they
// keep answering while the remote is down.
type CatalogReader interface {
	Counts(ctx context.Context) (map[entities.Kind]int64, error)
	List(ctx context.Context, kind entities.Kind) (any, error)
	OpenLoans(ctx context.Context) ([]entities.Loan, error)
	OverdueLoans(ctx context.Context, now time.Time) ([]entities.Loan, error)
}

// RouterConfig contains all dependencies needed to create the HTTP router.
// Nil dependencies disable the endpoints that need them.
type RouterConfig struct {
	Database Pinger
	Session  SessionView
	Remote   RemoteStatus
	States   SyncStates
	Sync     SyncTrigger
	Tasks    TaskQueue
	Audit    AuditReader
	Catalog  CatalogReader

	// PurgeAfter is the default age for purge_deleted tasks started over HTTP.
	PurgeAfter time.Duration

	Version string
	Logger  *zap.Logger
}
