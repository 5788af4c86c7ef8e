package tasks

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/config"
)

type echoTask struct {
	Value string `json:"value"`
}

func (echoTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{Name: "echo", MaxAttempts: 1, Timeout: 5 * time.Second}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := NewClient(filepath.Join(t.TempDir(), "cache.db"), DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestQueuePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"/var/lib/bibliotheek/cache.db", "/var/lib/bibliotheek/cache-tasks.db"},
		{"cache.sqlite3", "cache-tasks.sqlite3"},
		{"data/cache", "data/cache-tasks"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, QueuePath(tt.in), tt.in)
	}
}

func TestClient_StopBeforeStart(t *testing.T) {
	client := newTestClient(t)

	assert.True(t, client.Stop(context.Background()))
}

func TestClient_RunsEnqueuedTask(t *testing.T) {
	client := newTestClient(t)

	done := make(chan string, 1)
	client.Register(backlite.NewQueue(func(_ context.Context, task echoTask) error {
		done <- task.Value
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Start(ctx)

	id, err := client.Enqueue(ctx, echoTask{Value: "ping"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	select {
	case got := <-done:
		assert.Equal(t, "ping", got)
	case <-time.After(5 * time.Second):
		t.Fatal("task did not run")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer stopCancel()
	assert.True(t, client.Stop(stopCtx))
}

func TestClient_UnknownTaskStatus(t *testing.T) {
	client := newTestClient(t)

	status, _ := client.Status(context.Background(), "does-not-exist")
	assert.Equal(t, backlite.TaskStatusNotFound, status)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, 10*time.Minute, cfg.TaskTimeout)
	assert.Equal(t, 15*time.Minute, cfg.ReleaseAfter)
	assert.Equal(t, time.Hour, cfg.CleanupInterval)
	assert.Equal(t, 24*time.Hour, cfg.RetentionDuration)
}

func TestFromConfig_KeepsDefaultsForUnset(t *testing.T) {
	cfg := FromConfig(config.Tasks{Workers: 3, TaskTimeout: time.Minute})

	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, time.Minute, cfg.TaskTimeout)
	assert.Equal(t, 15*time.Minute, cfg.ReleaseAfter)
}
