package interfaces

// Compile-time checks that concrete types satisfy the interfaces their
// consumers declare.
//
// To verify all checks pass: go build ./internal/interfaces/...

import (
	"github.com/mrlokans/bibliotheek/internal/audit"
	"github.com/mrlokans/bibliotheek/internal/database"
	"github.com/mrlokans/bibliotheek/internal/database/cache"
	"github.com/mrlokans/bibliotheek/internal/database/syncstate"
	"github.com/mrlokans/bibliotheek/internal/http"
	"github.com/mrlokans/bibliotheek/internal/remote"
	"github.com/mrlokans/bibliotheek/internal/scheduler"
	"github.com/mrlokans/bibliotheek/internal/session"
	"github.com/mrlokans/bibliotheek/internal/syncer"
	"github.com/mrlokans/bibliotheek/internal/tasks"
)

// =============================================================================
// Bootstrap
// =============================================================================

var _ session.Schema = (*database.Database)(nil)
var _ session.Authenticator = (*remote.Client)(nil)

// =============================================================================
// Task queue and scheduler
// =============================================================================

var _ tasks.Syncer = (*syncer.Orchestrator)(nil)
var _ tasks.DeletedPurger = (*cache.Catalog)(nil)
var _ tasks.AuditEventCleaner = (*audit.Service)(nil)
var _ scheduler.Enqueuer = (*tasks.Client)(nil)

// =============================================================================
// Status API
// =============================================================================

var _ http.Pinger = (*database.Database)(nil)
var _ http.SessionView = (*session.Session)(nil)
var _ http.RemoteStatus = (*remote.Client)(nil)
var _ http.SyncStates = (*syncstate.Repository)(nil)
var _ http.SyncTrigger = (*scheduler.SyncScheduler)(nil)
var _ http.TaskQueue = (*tasks.Client)(nil)
var _ http.AuditReader = (*audit.Service)(nil)
var _ http.CatalogReader = http.CacheReader{}
