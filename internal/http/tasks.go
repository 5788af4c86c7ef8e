package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikestefanello/backlite"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/tasks"
)

// TasksController starts queue tasks on demand and reports their status.
type TasksController struct {
	queue TaskQueue
	kinds []taskKind
	log   *zap.Logger
}

// RunTaskRequest is the optional body for POST /api/tasks/:type/run.
type RunTaskRequest struct {
	OlderThanHours int `json:"older_than_hours,omitempty" binding:"omitempty,min=1"`
	RetentionDays  int `json:"retention_days,omitempty" binding:"omitempty,min=1"`
}

type TaskTypeInfo struct {
	Type        string `json:"type"`
	Description string `json:"description"`
}

type TaskStatusResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type RunTaskResponse struct {
	TaskID string `json:"task_id"`
	Type   string `json:"type"`
}

type taskKind struct {
	TaskTypeInfo
	build func(RunTaskRequest) backlite.Task
}

// NewTasksController registers the runnable task types. purgeAfter is the
// default age for purge_deleted when the request does not set one.
func NewTasksController(queue TaskQueue, purgeAfter time.Duration, log *zap.Logger) *TasksController {
	defaultHours := int(purgeAfter / time.Hour)
	return &TasksController{
		queue: queue,
		log:   log,
		kinds: []taskKind{
			{
				TaskTypeInfo: TaskTypeInfo{"sync_all", "Push pending local changes and pull every kind"},
				build: func(RunTaskRequest) backlite.Task {
					return tasks.SyncAllTask{Trigger: "manual"}
				},
			},
			{
				TaskTypeInfo: TaskTypeInfo{"purge_deleted", "Hard-delete acknowledged soft-deleted cache rows"},
				build: func(r RunTaskRequest) backlite.Task {
					if r.OlderThanHours == 0 {
						r.OlderThanHours = defaultHours
					}
					return tasks.PurgeDeletedTask{OlderThanHours: r.OlderThanHours}
				},
			},
			{
				TaskTypeInfo: TaskTypeInfo{"cleanup_audit_events", "Remove audit events past retention"},
				build: func(r RunTaskRequest) backlite.Task {
					return tasks.CleanupAuditEventsTask{RetentionDays: r.RetentionDays}
				},
			},
		},
	}
}

var taskStatusNames = map[backlite.TaskStatus]string{
	backlite.TaskStatusPending:  "pending",
	backlite.TaskStatusRunning:  "running",
	backlite.TaskStatusSuccess:  "success",
	backlite.TaskStatusFailure:  "failure",
	backlite.TaskStatusNotFound: "not_found",
}

func taskStatusName(status backlite.TaskStatus) string {
	if name, ok := taskStatusNames[status]; ok {
		return name
	}
	return "unknown"
}

// ListTaskTypes handles GET /api/tasks/types
func (tc *TasksController) ListTaskTypes(c *gin.Context) {
	types := make([]TaskTypeInfo, len(tc.kinds))
	for i, k := range tc.kinds {
		types[i] = k.TaskTypeInfo
	}
	c.JSON(http.StatusOK, gin.H{"task_types": types})
}

// GetTaskStatus handles GET /api/tasks/:id
func (tc *TasksController) GetTaskStatus(c *gin.Context) {
	id := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, err := tc.queue.Status(ctx, id)
	if err != nil {
		respondInternalError(c, tc.log, err, "task status")
		return
	}
	if status == backlite.TaskStatusNotFound {
		respondNotFound(c, "task")
		return
	}
	c.JSON(http.StatusOK, TaskStatusResponse{ID: id, Status: taskStatusName(status)})
}

// RunTask handles POST /api/tasks/:type/run
func (tc *TasksController) RunTask(c *gin.Context) {
	name := c.Param("type")

	var kind *taskKind
	for i := range tc.kinds {
		if tc.kinds[i].Type == name {
			kind = &tc.kinds[i]
			break
		}
	}
	if kind == nil {
		respondBadRequest(c, "unknown task type: "+name)
		return
	}

	var req RunTaskRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBadRequest(c, err.Error())
			return
		}
	}

	id, err := tc.queue.Enqueue(c.Request.Context(), kind.build(req))
	if err != nil {
		respondInternalError(c, tc.log, err, "enqueue "+name)
		return
	}
	c.JSON(http.StatusAccepted, RunTaskResponse{TaskID: id, Type: name})
}
