package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/scheduler"
)

// SyncStatusResponse describes the per-kind sync state and the schedule.
type SyncStatusResponse struct {
	Syncing   bool                 `json:"syncing"`
	NextRunAt *time.Time           `json:"next_run_at,omitempty"`
	Kinds     []entities.SyncState `json:"kinds"`
}

type SyncController struct {
	trigger SyncTrigger
	states  SyncStates
	log     *zap.Logger
}

func NewSyncController(trigger SyncTrigger, states SyncStates, log *zap.Logger) *SyncController {
	return &SyncController{trigger: trigger, states: states, log: log}
}

// Status handles GET /api/sync
func (sc *SyncController) Status(c *gin.Context) {
	resp := SyncStatusResponse{Kinds: []entities.SyncState{}}
	if sc.trigger != nil {
		resp.Syncing = sc.trigger.IsSyncing()
		resp.NextRunAt = sc.trigger.NextRunTime()
	}
	if sc.states != nil {
		states, err := sc.states.All(c.Request.Context())
		if err != nil {
			respondInternalError(c, sc.log, err, "load sync states")
			return
		}
		resp.Kinds = states
	}
	c.JSON(http.StatusOK, resp)
}

// Trigger handles POST /api/sync
// The pass runs in the background; poll GET /api/sync for the outcome.
func (sc *SyncController) Trigger(c *gin.Context) {
	if sc.trigger == nil {
		respondError(c, http.StatusServiceUnavailable, "sync_disabled", "sync is not configured")
		return
	}

	err := sc.trigger.RunNow(c.Request.Context(), "manual")
	switch {
	case errors.Is(err, scheduler.ErrSyncInProgress):
		respondError(c, http.StatusConflict, "sync_in_progress", err.Error())
	case err != nil:
		respondInternalError(c, sc.log, err, "trigger sync")
	default:
		respondAccepted(c, "sync started", nil)
	}
}
