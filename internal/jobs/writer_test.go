package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/models"
	"github.com/ternarybob/chomp/internal/queue"
	"github.com/ternarybob/chomp/internal/storage/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func newTestWriter(t *testing.T) (*Writer, *memory.JobStore, *queue.MemoryQueue, *queue.MemoryQueue) {
	t.Helper()
	store := memory.NewJobStore()
	newJobs := queue.NewMemoryQueue()
	stateChanges := queue.NewMemoryQueue()
	clock := fixedClock{now: time.Now().UTC().Truncate(time.Microsecond)}
	return NewWriter(store, newJobs, stateChanges, clock, arbor.NewLogger()), store, newJobs, stateChanges
}

func TestCreateAssignsIDAndEnqueues(t *testing.T) {
	ctx := context.Background()
	writer, store, newJobs, stateChanges := newTestWriter(t)

	job := models.NewJob("mem://in/a.avi", "mem://out/a.mp4", "ffmpeg", json.RawMessage(`[{}]`), "")
	id, err := writer.Create(ctx, job)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, models.JobStatePending, job.State)

	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePending, stored.State)

	ids, err := newJobs.Pop(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids, "creation announces the id to workers")

	n, err := stateChanges.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "creation is not a state change")
}

func TestCreateRejectsExistingID(t *testing.T) {
	writer, _, _, _ := newTestWriter(t)

	job := models.NewJob("mem://in/a.avi", "mem://out/a.mp4", "ffmpeg", json.RawMessage(`[{}]`), "")
	job.ID = "already-set"

	_, err := writer.Create(context.Background(), job)
	assert.Error(t, err)
}

func TestSetStatePersistsThenEnqueues(t *testing.T) {
	ctx := context.Background()
	writer, store, _, stateChanges := newTestWriter(t)

	job := models.NewJob("mem://in/a.avi", "mem://out/a.mp4", "ffmpeg", json.RawMessage(`[{}]`), "")
	id, err := writer.Create(ctx, job)
	require.NoError(t, err)

	require.NoError(t, writer.SetState(ctx, job, models.JobStateDownloading, "fetching source"))

	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateDownloading, stored.State)
	assert.Equal(t, "fetching source", stored.StateDetail)

	ids, err := stateChanges.Pop(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)
}

func TestSetStateRejectsInvalidTransition(t *testing.T) {
	ctx := context.Background()
	writer, store, _, stateChanges := newTestWriter(t)

	job := models.NewJob("mem://in/a.avi", "mem://out/a.mp4", "ffmpeg", json.RawMessage(`[{}]`), "")
	id, err := writer.Create(ctx, job)
	require.NoError(t, err)

	err = writer.SetState(ctx, job, models.JobStateFinished, "")
	require.Error(t, err, "PENDING cannot jump to FINISHED")

	stored, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatePending, stored.State, "rejected transition leaves the record untouched")

	n, err := stateChanges.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "rejected transition emits no state change")
}

func TestSaveBumpsModificationTime(t *testing.T) {
	ctx := context.Background()
	store := memory.NewJobStore()
	start := time.Now().UTC().Truncate(time.Microsecond)
	writer := NewWriter(store, queue.NewMemoryQueue(), queue.NewMemoryQueue(), fixedClock{now: start.Add(time.Minute)}, arbor.NewLogger())

	job := models.NewJob("mem://in/a.avi", "mem://out/a.mp4", "ffmpeg", json.RawMessage(`[{}]`), "")
	job.ID = "job-1"
	job.State = models.JobStatePending
	job.CreatedAt = start
	job.UpdatedAt = start
	require.NoError(t, store.Put(ctx, job))

	require.NoError(t, writer.Save(ctx, job))

	stored, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.True(t, stored.UpdatedAt.After(start))
	assert.True(t, stored.CreatedAt.Equal(start))
}
