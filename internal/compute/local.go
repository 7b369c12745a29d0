// Package compute provides implementations of the elastic-compute seam.
// LocalCompute is the development driver: a single permanent "local"
// node that cannot be launched or terminated. Cloud drivers implement
// the same interface against a real instance API.
package compute

import (
	"context"

	"github.com/ternarybob/arbor"
)

// LocalInstanceID marks a process running outside the cloud.
const LocalInstanceID = "local"

// LocalCompute is the no-op driver used for local development.
type LocalCompute struct {
	logger arbor.ILogger
}

func NewLocalCompute(logger arbor.ILogger) *LocalCompute {
	return &LocalCompute{logger: logger}
}

func (c *LocalCompute) InstanceID(ctx context.Context) (string, error) {
	return LocalInstanceID, nil
}

// ActiveNodeCount reports one node: this process.
func (c *LocalCompute) ActiveNodeCount(ctx context.Context) (int, error) {
	return 1, nil
}

// Launch logs and does nothing; locally there is no fleet to grow.
func (c *LocalCompute) Launch(ctx context.Context, count int) error {
	c.logger.Info().Int("count", count).Msg("Launch requested (local compute, no-op)")
	return nil
}

// Terminate logs and does nothing; the local node never dies.
func (c *LocalCompute) Terminate(ctx context.Context, id string) error {
	c.logger.Info().Str("node_id", id).Msg("Terminate requested (local compute, no-op)")
	return nil
}
