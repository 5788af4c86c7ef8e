package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/mrlokans/bibliotheek/internal/entities"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "audit.db")), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&entities.AuditEvent{})
	require.NoError(t, err)

	return db
}

func TestRepository_LogEvent(t *testing.T) {
	repo := NewRepository(setupTestDB(t))

	event := &entities.AuditEvent{
		EventType:   entities.AuditEventRead,
		Kind:        entities.KindBook,
		Action:      "get",
		Description: "remote read failed, served from cache",
		Status:      entities.AuditStatusDegraded,
	}

	err := repo.LogEvent(context.Background(), event)
	require.NoError(t, err)
	assert.NotZero(t, event.ID)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestRepository_Events(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		status := entities.AuditStatusSuccess
		if i%3 == 0 {
			status = entities.AuditStatusDegraded
		}
		require.NoError(t, repo.LogEvent(ctx, &entities.AuditEvent{
			EventType: entities.AuditEventSync,
			Kind:      entities.KindMember,
			PassID:    "pass-1",
			Action:    "pull",
			Status:    status,
		}))
	}
	require.NoError(t, repo.LogEvent(ctx, &entities.AuditEvent{
		EventType: entities.AuditEventWrite,
		Kind:      entities.KindLoan,
		Action:    "create",
		Status:    entities.AuditStatusFailed,
	}))

	t.Run("pagination", func(t *testing.T) {
		events, total, err := repo.Events(ctx, Filter{}, 10, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(16), total)
		assert.Len(t, events, 10)

		rest, _, err := repo.Events(ctx, Filter{}, 10, 10)
		require.NoError(t, err)
		assert.Len(t, rest, 6)
	})

	t.Run("filter by status", func(t *testing.T) {
		events, total, err := repo.Events(ctx, Filter{Status: entities.AuditStatusDegraded}, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, int64(5), total)
		assert.Len(t, events, 5)
	})

	t.Run("filter by kind and type", func(t *testing.T) {
		events, _, err := repo.Events(ctx, Filter{EventType: entities.AuditEventWrite, Kind: entities.KindLoan}, 0, 0)
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, entities.AuditStatusFailed, events[0].Status)
	})
}

func TestRepository_DeleteOldEvents(t *testing.T) {
	repo := NewRepository(setupTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.LogEvent(ctx, &entities.AuditEvent{Action: "old", CreatedAt: time.Now().Add(-40 * 24 * time.Hour)}))
	require.NoError(t, repo.LogEvent(ctx, &entities.AuditEvent{Action: "new"}))

	deleted, err := repo.DeleteOldEvents(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	events, total, err := repo.Events(ctx, Filter{}, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "new", events[0].Action)
}
