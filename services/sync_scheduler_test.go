package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSyncer struct {
	calls       int32
	hadDeadline int32
}

func (s *countingSyncer) Sync(ctx context.Context) SyncResult {
	atomic.AddInt32(&s.calls, 1)
	if _, ok := ctx.Deadline(); ok {
		atomic.StoreInt32(&s.hadDeadline, 1)
	}
	return SyncResult{Message: SyncMessageCompleted}
}

func TestSyncSchedulerStartAndStop(t *testing.T) {
	syncer := &countingSyncer{}
	scheduler := NewSyncScheduler(syncer, "0 */5 * * * *", time.Minute, nil)

	assert.Nil(t, scheduler.NextRun(), "до запуска следующего прогона нет")

	require.NoError(t, scheduler.Start())
	next := scheduler.NextRun()
	require.NotNil(t, next)
	assert.True(t, next.After(time.Now()))
	assert.Zero(t, next.Second())
	assert.Zero(t, next.Minute()%5)

	scheduler.Stop()
}

func TestSyncSchedulerInvalidSchedule(t *testing.T) {
	scheduler := NewSyncScheduler(&countingSyncer{}, "not a cron", time.Minute, nil)
	assert.Error(t, scheduler.Start())
}

func TestSyncSchedulerRunOnceAppliesTimeout(t *testing.T) {
	syncer := &countingSyncer{}
	NewSyncScheduler(syncer, "@every 1h", 30*time.Second, nil).RunOnce()

	assert.Equal(t, int32(1), atomic.LoadInt32(&syncer.calls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&syncer.hadDeadline))
}
