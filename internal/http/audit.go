package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	dbaudit "github.com/mrlokans/bibliotheek/internal/database/audit"
	"github.com/mrlokans/bibliotheek/internal/entities"
)

type AuditController struct {
	reader AuditReader
	log    *zap.Logger
}

func NewAuditController(reader AuditReader, log *zap.Logger) *AuditController {
	return &AuditController{reader: reader, log: log}
}

// GetAuditEvents returns paginated audit events as JSON
// GET /api/audit?type=&status=&kind=&pass_id=&since=&page=&limit=
func (ac *AuditController) GetAuditEvents(c *gin.Context) {
	limit, offset := parsePage(c)

	f := dbaudit.Filter{
		EventType: entities.AuditEventType(c.Query("type")),
		Status:    entities.AuditStatus(c.Query("status")),
		Kind:      entities.Kind(c.Query("kind")),
		PassID:    c.Query("pass_id"),
	}
	if since := c.Query("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			respondBadRequest(c, "invalid since, expected RFC3339")
			return
		}
		f.Since = t
	}

	events, total, err := ac.reader.Events(c.Request.Context(), f, limit, offset)
	if err != nil {
		respondInternalError(c, ac.log, err, "load audit events")
		return
	}

	c.JSON(http.StatusOK, newPage(events, total, limit, offset))
}

// GetEventTypes handles GET /api/audit/types
func (ac *AuditController) GetEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"event_types": []entities.AuditEventType{
			entities.AuditEventRead,
			entities.AuditEventWrite,
			entities.AuditEventSync,
			entities.AuditEventBootstrap,
			entities.AuditEventAuth,
		},
	})
}
