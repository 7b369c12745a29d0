package feeder

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ternarybob/chomp/internal/models"
)

// manualClock is an interfaces.Clock the tests advance by hand.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock(start time.Time) *manualClock {
	return &manualClock{now: start}
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

// fakeNotifier records every callback it is asked to deliver.
type fakeNotifier struct {
	mu    sync.Mutex
	calls []*models.Job
}

func (n *fakeNotifier) Notify(ctx context.Context, job *models.Job) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, job)
}

func (n *fakeNotifier) Calls() []*models.Job {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]*models.Job(nil), n.calls...)
}

func testJob(t *testing.T, id string, state models.JobState) *models.Job {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Job{
		ID:         id,
		SourcePath: "mem://in/" + id,
		DestPath:   "mem://out/" + id,
		Nommer:     "noop",
		Options:    json.RawMessage(`[{}]`),
		State:      state,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
