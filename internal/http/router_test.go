package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/audit"
	dbaudit "github.com/mrlokans/bibliotheek/internal/database/audit"
	"github.com/mrlokans/bibliotheek/internal/database/cache"
	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/scheduler"
	"github.com/mrlokans/bibliotheek/internal/tasks"
)

type fakeTrigger struct {
	err      error
	syncing  bool
	next     *time.Time
	triggers []string
}

func (f *fakeTrigger) RunNow(_ context.Context, trigger string) error {
	f.triggers = append(f.triggers, trigger)
	return f.err
}
func (f *fakeTrigger) IsSyncing() bool         { return f.syncing }
func (f *fakeTrigger) NextRunTime() *time.Time { return f.next }

type fakeQueue struct {
	enqueued []backlite.Task
	statuses map[string]backlite.TaskStatus
	err      error
}

func (f *fakeQueue) Enqueue(_ context.Context, task backlite.Task) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.enqueued = append(f.enqueued, task)
	return "task-1", nil
}

func (f *fakeQueue) Status(_ context.Context, id string) (backlite.TaskStatus, error) {
	if status, ok := f.statuses[id]; ok {
		return status, nil
	}
	return backlite.TaskStatusNotFound, nil
}

func serve(t *testing.T, cfg RouterConfig, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := NewRouter(cfg)

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouter_SecurityHeadersAndNoRoute(t *testing.T) {
	w := serve(t, RouterConfig{}, "GET", "/nope", "")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Contains(t, w.Body.String(), "route not found")
}

func TestSyncController(t *testing.T) {
	t.Run("trigger starts a manual pass", func(t *testing.T) {
		trigger := &fakeTrigger{}

		w := serve(t, RouterConfig{Sync: trigger}, "POST", "/api/sync", "")

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, []string{"manual"}, trigger.triggers)
	})

	t.Run("trigger while syncing is a conflict", func(t *testing.T) {
		trigger := &fakeTrigger{err: scheduler.ErrSyncInProgress}

		w := serve(t, RouterConfig{Sync: trigger}, "POST", "/api/sync", "")

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Contains(t, w.Body.String(), "sync_in_progress")
	})

	t.Run("trigger failure is a 500 without details", func(t *testing.T) {
		trigger := &fakeTrigger{err: errors.New("queue closed")}

		w := serve(t, RouterConfig{Sync: trigger}, "POST", "/api/sync", "")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "queue closed")
	})

	t.Run("trigger without scheduler is unavailable", func(t *testing.T) {
		w := serve(t, RouterConfig{}, "POST", "/api/sync", "")

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("status lists kinds and next run", func(t *testing.T) {
		next := time.Date(2026, 1, 2, 3, 15, 0, 0, time.UTC)
		trigger := &fakeTrigger{syncing: true, next: &next}
		states := stubStates{states: []entities.SyncState{{Kind: entities.KindBook, Status: entities.SyncStatusRunning}}}

		w := serve(t, RouterConfig{Sync: trigger, States: states}, "GET", "/api/sync", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp SyncStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Syncing)
		require.NotNil(t, resp.NextRunAt)
		assert.True(t, next.Equal(*resp.NextRunAt))
		require.Len(t, resp.Kinds, 1)
		assert.Equal(t, entities.KindBook, resp.Kinds[0].Kind)
	})
}

func TestTasksController(t *testing.T) {
	t.Run("lists task types", func(t *testing.T) {
		w := serve(t, RouterConfig{Tasks: &fakeQueue{}}, "GET", "/api/tasks/types", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "purge_deleted")
	})

	t.Run("status of a known task", func(t *testing.T) {
		queue := &fakeQueue{statuses: map[string]backlite.TaskStatus{"abc": backlite.TaskStatusSuccess}}

		w := serve(t, RouterConfig{Tasks: queue}, "GET", "/api/tasks/abc", "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"id":"abc","status":"success"}`, w.Body.String())
	})

	t.Run("status of an unknown task is 404", func(t *testing.T) {
		w := serve(t, RouterConfig{Tasks: &fakeQueue{}}, "GET", "/api/tasks/missing", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("run sync_all", func(t *testing.T) {
		queue := &fakeQueue{}

		w := serve(t, RouterConfig{Tasks: queue}, "POST", "/api/tasks/sync_all/run", "")

		assert.Equal(t, http.StatusAccepted, w.Code)
		require.Len(t, queue.enqueued, 1)
		assert.Equal(t, tasks.SyncAllTask{Trigger: "manual"}, queue.enqueued[0])
	})

	t.Run("run purge_deleted uses configured age by default", func(t *testing.T) {
		queue := &fakeQueue{}

		w := serve(t, RouterConfig{Tasks: queue, PurgeAfter: 48 * time.Hour}, "POST", "/api/tasks/purge_deleted/run", "")

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, tasks.PurgeDeletedTask{OlderThanHours: 48}, queue.enqueued[0])
	})

	t.Run("run cleanup with explicit retention", func(t *testing.T) {
		queue := &fakeQueue{}

		w := serve(t, RouterConfig{Tasks: queue}, "POST", "/api/tasks/cleanup_audit_events/run", `{"retention_days":7}`)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, tasks.CleanupAuditEventsTask{RetentionDays: 7}, queue.enqueued[0])
	})

	t.Run("invalid body", func(t *testing.T) {
		w := serve(t, RouterConfig{Tasks: &fakeQueue{}}, "POST", "/api/tasks/purge_deleted/run", `{"older_than_hours":-3}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown type", func(t *testing.T) {
		w := serve(t, RouterConfig{Tasks: &fakeQueue{}}, "POST", "/api/tasks/enrich_book/run", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "unknown task type")
	})
}

func TestAuditController(t *testing.T) {
	db := setupHealthTestDB(t)
	sink := audit.NewService(dbaudit.NewRepository(db.DB), zap.NewNop())
	ctx := context.Background()

	sink.Record(ctx, entities.AuditEvent{EventType: entities.AuditEventSync, Action: "sync_kind", Kind: entities.KindBook, Status: entities.AuditStatusSuccess, PassID: "p1"})
	sink.Record(ctx, entities.AuditEvent{EventType: entities.AuditEventWrite, Action: "create", Kind: entities.KindMember, Status: entities.AuditStatusDegraded})
	sink.Record(ctx, entities.AuditEvent{EventType: entities.AuditEventSync, Action: "sync_kind", Kind: entities.KindLoan, Status: entities.AuditStatusFailed, PassID: "p1"})

	cfg := RouterConfig{Audit: sink}

	t.Run("filters by type and pass", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/audit?type=sync&pass_id=p1", "")

		require.Equal(t, http.StatusOK, w.Code)
		var page struct {
			Data  []entities.AuditEvent `json:"data"`
			Total int64                 `json:"total"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Equal(t, int64(2), page.Total)
		assert.Len(t, page.Data, 2)
	})

	t.Run("filters by status", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/audit?status=degraded", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":1`)
	})

	t.Run("paginates", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/audit?limit=2", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"has_more":true`)
	})

	t.Run("rejects a bad since", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/audit?since=yesterday", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestCatalogController(t *testing.T) {
	db := setupHealthTestDB(t)
	ctx := context.Background()
	_, err := db.Seed(ctx)
	require.NoError(t, err)

	cat := cache.New(db.DB, zap.NewNop())
	cfg := RouterConfig{Catalog: CacheReader{Catalog: cat}}

	t.Run("counts", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/catalog", "")

		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Counts map[entities.Kind]int64 `json:"counts"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, int64(5), resp.Counts[entities.KindCategory])
		assert.Equal(t, int64(3), resp.Counts[entities.KindBook])
		assert.Equal(t, int64(0), resp.Counts[entities.KindLoan])
	})

	t.Run("lists books from the cache", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/catalog/book", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "A Brief History of Time")
	})

	t.Run("unknown kind", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/catalog/shelf", "")

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("open loans", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/loans", "")

		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"total":0`)
	})

	t.Run("bad loan filter", func(t *testing.T) {
		w := serve(t, cfg, "GET", "/api/loans?filter=late", "")

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
