package compute

import (
	"context"
	"sync"
)

// FakeCompute records calls for tests and lets them script the fleet
// size.
type FakeCompute struct {
	mu           sync.Mutex
	ID           string
	NodeCount    int
	Launched     []int
	Terminated   []string
	LaunchErr    error
	NodeCntErr   error
	TerminateErr error
}

func NewFakeCompute(id string, nodeCount int) *FakeCompute {
	if id == "" {
		id = "i-test"
	}
	return &FakeCompute{
		ID:        id,
		NodeCount: nodeCount,
	}
}

func (c *FakeCompute) InstanceID(ctx context.Context) (string, error) {
	return c.ID, nil
}

func (c *FakeCompute) ActiveNodeCount(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.NodeCntErr != nil {
		return 0, c.NodeCntErr
	}
	return c.NodeCount, nil
}

func (c *FakeCompute) Launch(ctx context.Context, count int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.LaunchErr != nil {
		return c.LaunchErr
	}
	c.Launched = append(c.Launched, count)
	c.NodeCount += count
	return nil
}

func (c *FakeCompute) Terminate(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.TerminateErr != nil {
		return c.TerminateErr
	}
	c.Terminated = append(c.Terminated, id)
	return nil
}

// TotalLaunched sums all launch calls
func (c *FakeCompute) TotalLaunched() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.Launched {
		total += n
	}
	return total
}
