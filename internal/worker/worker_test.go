package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/backends"
	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/compute"
	"github.com/ternarybob/chomp/internal/encoders"
	"github.com/ternarybob/chomp/internal/jobs"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/models"
	"github.com/ternarybob/chomp/internal/pipeline"
	"github.com/ternarybob/chomp/internal/queue"
	"github.com/ternarybob/chomp/internal/storage/memory"
)

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Now().UTC().Truncate(time.Microsecond)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	service *Service
	store   *memory.JobStore
	nodes   *memory.NodeStore
	newJobs *queue.MemoryQueue
	mem     *backends.MemBackend
	fake    *compute.FakeCompute
	clock   *manualClock
	config  *common.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	config := common.NewDefaultConfig()
	config.Worker.WorkDir = t.TempDir()

	store := memory.NewJobStore()
	nodes := memory.NewNodeStore()
	newJobs := queue.NewMemoryQueue()
	clock := newManualClock()
	logger := arbor.NewLogger()
	collector := metrics.NewCollector(prometheus.NewRegistry())
	fake := compute.NewFakeCompute("i-worker", 1)

	mem := backends.NewMemBackend()
	backendReg := backends.NewRegistry()
	backendReg.Register("mem", mem)

	encoderReg := encoders.NewRegistry()
	encoderReg.Register("noop", func() encoders.Encoder { return encoders.NewNoopEncoder() })

	writer := jobs.NewWriter(store, newJobs, queue.NewMemoryQueue(), clock, logger)
	runner := pipeline.NewRunner(writer, backendReg, encoderReg, config.Worker.WorkDir, logger)

	service, err := NewService(config, newJobs, store, nodes, fake, runner, clock, collector, logger)
	require.NoError(t, err)

	return &fixture{
		service: service,
		store:   store,
		nodes:   nodes,
		newJobs: newJobs,
		mem:     mem,
		fake:    fake,
		clock:   clock,
		config:  config,
	}
}

func (f *fixture) submitJob(t *testing.T, id string, state models.JobState) *models.Job {
	t.Helper()
	now := f.clock.Now()
	job := &models.Job{
		ID:         id + "-0123456789abcdef",
		SourcePath: "mem://in/" + id + ".avi",
		DestPath:   "mem://out/" + id + ".mp4",
		Nommer:     "noop",
		Options:    json.RawMessage(`[{}]`),
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.store.Put(context.Background(), job))
	f.mem.Seed(job.SourcePath, []byte("frames for "+id))
	return job
}

func (f *fixture) waitForDrain(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.service.InFlight() == 0
	}, 5*time.Second, 10*time.Millisecond, "encoder tasks did not finish")
}

func TestIntakeRunsJobToCompletion(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	job := f.submitJob(t, "clip", models.JobStatePending)
	require.NoError(t, f.newJobs.Enqueue(ctx, job.ID))

	require.NoError(t, f.service.IntakeTick(ctx))
	f.waitForDrain(t)

	stored, err := f.store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateFinished, stored.State)

	out, ok := f.mem.Object(job.DestPath)
	require.True(t, ok)
	assert.Equal(t, []byte("frames for clip"), out)
}

func TestIntakeRespectsSlotLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.config.Scaling.MaxJobsPerNode = 2

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		job := f.submitJob(t, id, models.JobStatePending)
		require.NoError(t, f.newJobs.Enqueue(ctx, job.ID))
	}

	require.NoError(t, f.service.IntakeTick(ctx))
	f.waitForDrain(t)

	n, err := f.newJobs.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "one tick claims at most the free slot count")
}

func TestIntakeSkipsNonPendingJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// A redelivered id for a job already claimed elsewhere.
	job := f.submitJob(t, "claimed", models.JobStateEncoding)
	require.NoError(t, f.newJobs.Enqueue(ctx, job.ID))

	require.NoError(t, f.service.IntakeTick(ctx))
	f.waitForDrain(t)

	stored, err := f.store.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStateEncoding, stored.State, "the worker must not restart a claimed job")
}

func TestIntakeSkipsMissingRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.newJobs.Enqueue(ctx, "no-such-job"))
	require.NoError(t, f.service.IntakeTick(ctx))

	assert.Equal(t, 0, f.service.InFlight())
}

func TestHeartbeatWritesNodeRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	require.NoError(t, f.service.HeartbeatTick(ctx))

	node, err := f.nodes.Get(ctx, "i-worker")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStateActive, node.State)
	assert.Equal(t, 0, node.ActiveJobs)
	assert.True(t, node.LastReportAt.Equal(f.clock.Now()))
}

func TestHeartbeatIdleSelfTermination(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.config.Worker.IdleTerminationEnabled = true
	f.config.Worker.IdleThreshold = "10m"

	// Under the threshold the worker stays up.
	f.clock.Advance(9 * time.Minute)
	require.NoError(t, f.service.HeartbeatTick(ctx))
	assert.Empty(t, f.fake.Terminated)

	// Over the threshold it reports TERMINATED and shuts itself down.
	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.service.HeartbeatTick(ctx))

	assert.Equal(t, []string{"i-worker"}, f.fake.Terminated)
	node, err := f.nodes.Get(ctx, "i-worker")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStateTerminated, node.State)

	// A terminated worker never reports ACTIVE again.
	require.NoError(t, f.service.HeartbeatTick(ctx))
	node, err = f.nodes.Get(ctx, "i-worker")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStateTerminated, node.State)
}

func TestHeartbeatNoTerminationWhenDisabled(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.config.Worker.IdleTerminationEnabled = false

	f.clock.Advance(24 * time.Hour)
	require.NoError(t, f.service.HeartbeatTick(ctx))

	assert.Empty(t, f.fake.Terminated)
	node, err := f.nodes.Get(ctx, "i-worker")
	require.NoError(t, err)
	assert.Equal(t, models.NodeStateActive, node.State)
}

func TestWorkActivityResetsIdleClock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.config.Worker.IdleTerminationEnabled = true
	f.config.Worker.IdleThreshold = "10m"

	f.clock.Advance(9 * time.Minute)

	// A job arriving counts as activity.
	job := f.submitJob(t, "busy", models.JobStatePending)
	require.NoError(t, f.newJobs.Enqueue(ctx, job.ID))
	require.NoError(t, f.service.IntakeTick(ctx))
	f.waitForDrain(t)

	f.clock.Advance(2 * time.Minute)
	require.NoError(t, f.service.HeartbeatTick(ctx))
	assert.Empty(t, f.fake.Terminated, "recent work must defer self-termination")
}
