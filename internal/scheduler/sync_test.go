package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mikestefanello/backlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrlokans/bibliotheek/internal/config"
	"github.com/mrlokans/bibliotheek/internal/entities"
	"github.com/mrlokans/bibliotheek/internal/syncer"
	"github.com/mrlokans/bibliotheek/internal/tasks"
)

type blockingSyncer struct {
	release chan struct{}
	calls   chan struct{}
}

func newBlockingSyncer() *blockingSyncer {
	return &blockingSyncer{release: make(chan struct{}), calls: make(chan struct{}, 4)}
}

func (b *blockingSyncer) SyncAll(context.Context) syncer.SyncReport {
	b.calls <- struct{}{}
	<-b.release
	return syncer.SyncReport{PassID: "pass"}
}

type recordingQueue struct {
	mu    sync.Mutex
	tasks []backlite.Task
}

func (q *recordingQueue) Enqueue(_ context.Context, task backlite.Task) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, task)
	return "task-1", nil
}

type countingPurger struct{ calls int }

func (p *countingPurger) PurgeDeleted(context.Context, time.Time) (map[entities.Kind]int64, error) {
	p.calls++
	return nil, nil
}

type countingCleaner struct{ retention time.Duration }

func (c *countingCleaner) DeleteOldEvents(_ context.Context, retention time.Duration) (int64, error) {
	c.retention = retention
	return 0, nil
}

func TestRunNow_InlineSkipsOverlappingPass(t *testing.T) {
	s := newBlockingSyncer()
	sched := NewSyncScheduler(s, Options{}, zap.NewNop())

	require.NoError(t, sched.RunNow(context.Background(), "manual"))
	<-s.calls
	assert.True(t, sched.IsSyncing())

	assert.ErrorIs(t, sched.RunNow(context.Background(), "manual"), ErrSyncInProgress)

	close(s.release)
	assert.Eventually(t, func() bool { return !sched.IsSyncing() }, time.Second, 5*time.Millisecond)
	require.NoError(t, sched.RunNow(context.Background(), "manual"))
	<-s.calls
}

func TestRunNow_EnqueuesWithQueue(t *testing.T) {
	q := &recordingQueue{}
	sched := NewSyncScheduler(newBlockingSyncer(), Options{Queue: q}, zap.NewNop())

	require.NoError(t, sched.RunNow(context.Background(), "manual"))
	require.NoError(t, sched.RunNow(context.Background(), "manual"))

	require.Len(t, q.tasks, 2, "queued passes are serialised by the queue, not skipped")
	assert.Equal(t, tasks.SyncAllTask{Trigger: "manual"}, q.tasks[0])
}

func TestStart_Disabled(t *testing.T) {
	sched := NewSyncScheduler(newBlockingSyncer(), Options{}, zap.NewNop())

	require.NoError(t, sched.Start(context.Background()))
	assert.False(t, sched.IsRunning())
	assert.Nil(t, sched.NextRunTime())
}

func TestStart_InvalidSchedule(t *testing.T) {
	sched := NewSyncScheduler(newBlockingSyncer(), Options{
		Sync: config.Sync{Enabled: true, Schedule: "every now and then"},
	}, zap.NewNop())

	assert.Error(t, sched.Start(context.Background()))
	assert.False(t, sched.IsRunning())
}

func TestStart_StopsWithContext(t *testing.T) {
	sched := NewSyncScheduler(newBlockingSyncer(), Options{
		Sync: config.Sync{Enabled: true, Schedule: "*/15 * * * *"},
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, sched.Start(ctx))
	assert.True(t, sched.IsRunning())

	next := sched.NextRunTime()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))
	assert.LessOrEqual(t, time.Until(*next), 15*time.Minute)

	cancel()
	assert.Eventually(t, func() bool { return !sched.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestRunMaintenance_Inline(t *testing.T) {
	p := &countingPurger{}
	c := &countingCleaner{}
	sched := NewSyncScheduler(newBlockingSyncer(), Options{
		Sync:    config.Sync{PurgeAfter: 48 * time.Hour},
		Audit:   config.Audit{RetentionDays: 7},
		Purger:  p,
		Cleaner: c,
	}, zap.NewNop())

	sched.runMaintenance(context.Background())

	assert.Equal(t, 1, p.calls)
	assert.Equal(t, 7*24*time.Hour, c.retention)
}

func TestRunMaintenance_Queued(t *testing.T) {
	q := &recordingQueue{}
	sched := NewSyncScheduler(newBlockingSyncer(), Options{
		Sync:  config.Sync{PurgeAfter: 48 * time.Hour},
		Audit: config.Audit{RetentionDays: 7},
		Queue: q,
	}, zap.NewNop())

	sched.runMaintenance(context.Background())

	require.Len(t, q.tasks, 2)
	assert.Equal(t, tasks.PurgeDeletedTask{OlderThanHours: 48}, q.tasks[0])
	assert.Equal(t, tasks.CleanupAuditEventsTask{RetentionDays: 7}, q.tasks[1])
}

func TestCronHelpers(t *testing.T) {
	assert.NoError(t, ValidateSchedule("0 */6 * * *"))
	assert.Error(t, ValidateSchedule("* * *"))
	assert.Equal(t, "Every 15 minutes", Describe("*/15 * * * *"))
	assert.Equal(t, "Custom schedule: 5 4 * * *", Describe("5 4 * * *"))

	from := time.Date(2024, 3, 1, 10, 7, 0, 0, time.Local)
	next, err := NextRun("*/15 * * * *", from)
	require.NoError(t, err)
	assert.True(t, time.Date(2024, 3, 1, 10, 15, 0, 0, time.Local).Equal(next), "got %v", next)
}
