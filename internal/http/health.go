package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

type HealthResponse struct {
	Status   string            `json:"status"`
	Time     string            `json:"time"`
	Version  string            `json:"version,omitempty"`
	Mode     string            `json:"mode"`
	Identity string            `json:"identity,omitempty"`
	Checks   map[string]string `json:"checks"`
}

// HealthController reports the local database, the session and the remote.
// Only a broken database makes the service unhealthy; an unreachable remote
// or a failed sync kind is reported as degraded since the cache still serves.
type HealthController struct {
	db      Pinger
	sess    SessionView
	remote  RemoteStatus
	states  SyncStates
	version string
}

func NewHealthController(db Pinger, sess SessionView, remote RemoteStatus, states SyncStates, version string) *HealthController {
	return &HealthController{
		db:      db,
		sess:    sess,
		remote:  remote,
		states:  states,
		version: version,
	}
}

func (h *HealthController) Status(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := statusHealthy
	degrade := func() {
		if status == statusHealthy {
			status = statusDegraded
		}
	}

	if h.db == nil {
		checks["database"] = "not configured"
		status = statusUnhealthy
	} else if err := h.db.Ping(ctx); err != nil {
		checks["database"] = "error: " + err.Error()
		status = statusUnhealthy
	} else {
		checks["database"] = "ok"
	}

	switch {
	case h.remote == nil:
		checks["remote"] = "not configured"
	case h.remote.Available():
		checks["remote"] = "ok"
	default:
		checks["remote"] = "unavailable"
		degrade()
	}

	if h.states != nil {
		states, err := h.states.All(ctx)
		if err != nil {
			checks["sync"] = "error: " + err.Error()
			degrade()
		}
		for _, st := range states {
			checks["sync."+string(st.Kind)] = string(st.Status)
			if st.Status == entities.SyncStatusFailed {
				degrade()
			}
		}
	}

	health := HealthResponse{
		Status:  status,
		Time:    time.Now().Format(time.RFC3339),
		Version: h.version,
		Mode:    "unknown",
		Checks:  checks,
	}
	if h.sess != nil {
		health.Mode = h.sess.Mode().String()
		health.Identity = h.sess.Identity().Email
	}

	statusCode := http.StatusOK
	if status == statusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	c.IndentedJSON(statusCode, health)
}
