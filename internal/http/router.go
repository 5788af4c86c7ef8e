package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter creates the local status API. It exposes health, sync control,
// the task queue, the audit trail and read-only views of the cache.
func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("http")

	router := gin.New()
	router.Use(requestLogger(log))
	router.Use(gin.Recovery())
	router.Use(securityHeaders())

	health := NewHealthController(cfg.Database, cfg.Session, cfg.Remote, cfg.States, cfg.Version)
	router.GET("/health", health.Status)

	api := router.Group("/api")

	syncController := NewSyncController(cfg.Sync, cfg.States, log)
	api.GET("/sync", syncController.Status)
	api.POST("/sync", syncController.Trigger)

	if cfg.Tasks != nil {
		tasksController := NewTasksController(cfg.Tasks, cfg.PurgeAfter, log)
		api.GET("/tasks/types", tasksController.ListTaskTypes)
		api.GET("/tasks/:id", tasksController.GetTaskStatus)
		api.POST("/tasks/:type/run", tasksController.RunTask)
	}

	if cfg.Audit != nil {
		auditController := NewAuditController(cfg.Audit, log)
		api.GET("/audit", auditController.GetAuditEvents)
		api.GET("/audit/types", auditController.GetEventTypes)
	}

	if cfg.Catalog != nil {
		catalogController := NewCatalogController(cfg.Catalog, log)
		api.GET("/catalog", catalogController.Counts)
		api.GET("/catalog/:kind", catalogController.List)
		api.GET("/loans", catalogController.Loans)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "route not found"})
	})

	return router
}
