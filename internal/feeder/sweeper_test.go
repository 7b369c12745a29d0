package feeder

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/jobs"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/models"
	"github.com/ternarybob/chomp/internal/queue"
	"github.com/ternarybob/chomp/internal/storage/memory"
)

func TestSweeperAbandonsStaleJobs(t *testing.T) {
	ctx := context.Background()
	store := memory.NewJobStore()
	stateChanges := queue.NewMemoryQueue()
	clock := newManualClock(time.Now().UTC().Truncate(time.Microsecond))
	writer := jobs.NewWriter(store, queue.NewMemoryQueue(), stateChanges, clock, arbor.NewLogger())
	collector := metrics.NewCollector(prometheus.NewRegistry())

	stale := testJob(t, "job-stale", models.JobStateDownloading)
	stale.UpdatedAt = clock.Now()
	require.NoError(t, store.Put(ctx, stale))

	cache := NewCache()
	cache.Update(stale)

	sweeper := NewSweeper(cache, writer, clock, 24*time.Hour, collector, arbor.NewLogger())

	// Under the threshold, nothing happens.
	clock.Advance(23 * time.Hour)
	require.NoError(t, sweeper.Tick(ctx))
	got, err := store.Get(ctx, "job-stale")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateDownloading, got.State)

	// Over the threshold, the job is abandoned and leaves the cache.
	clock.Advance(2 * time.Hour)
	require.NoError(t, sweeper.Tick(ctx))

	got, err = store.Get(ctx, "job-stale")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateAbandoned, got.State)
	assert.Contains(t, got.StateDetail, "abandoned after")
	assert.Equal(t, 0, cache.Len())

	// Abandonment is a state change like any other.
	ids, err := stateChanges.Pop(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"job-stale"}, ids)
}

func TestSweeperDoubleSweepIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := memory.NewJobStore()
	clock := newManualClock(time.Now().UTC().Truncate(time.Microsecond))
	writer := jobs.NewWriter(store, queue.NewMemoryQueue(), queue.NewMemoryQueue(), clock, arbor.NewLogger())
	collector := metrics.NewCollector(prometheus.NewRegistry())

	stale := testJob(t, "job-stale", models.JobStatePending)
	stale.UpdatedAt = clock.Now()
	require.NoError(t, store.Put(ctx, stale))

	cache := NewCache()
	cache.Update(stale)

	sweeper := NewSweeper(cache, writer, clock, time.Hour, collector, arbor.NewLogger())

	clock.Advance(2 * time.Hour)
	require.NoError(t, sweeper.Tick(ctx))

	// Re-prime the cache with the stale snapshot, as if a racing refresh
	// resurrected it. Sweeping again converges on the same terminal state.
	cache.Update(stale)
	require.NoError(t, sweeper.Tick(ctx))

	got, err := store.Get(ctx, "job-stale")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateAbandoned, got.State)
	assert.Equal(t, 0, cache.Len())
}

func TestSweeperLeavesFreshJobsAlone(t *testing.T) {
	ctx := context.Background()
	store := memory.NewJobStore()
	clock := newManualClock(time.Now().UTC().Truncate(time.Microsecond))
	writer := jobs.NewWriter(store, queue.NewMemoryQueue(), queue.NewMemoryQueue(), clock, arbor.NewLogger())
	collector := metrics.NewCollector(prometheus.NewRegistry())

	fresh := testJob(t, "job-fresh", models.JobStateEncoding)
	fresh.UpdatedAt = clock.Now()
	require.NoError(t, store.Put(ctx, fresh))

	cache := NewCache()
	cache.Update(fresh)

	sweeper := NewSweeper(cache, writer, clock, 24*time.Hour, collector, arbor.NewLogger())
	clock.Advance(time.Hour)
	require.NoError(t, sweeper.Tick(ctx))

	got, err := store.Get(ctx, "job-fresh")
	require.NoError(t, err)
	assert.Equal(t, models.JobStateEncoding, got.State)
	assert.Equal(t, 1, cache.Len())
}
