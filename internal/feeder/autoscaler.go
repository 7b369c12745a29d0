package feeder

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/metrics"
)

// Autoscaler launches worker nodes when the backlog exceeds fleet
// capacity. It never terminates anything; workers self-terminate when
// idle.
type Autoscaler struct {
	compute interfaces.Compute
	store   interfaces.JobStore
	scaling common.ScalingConfig
	metrics *metrics.Collector
	logger  arbor.ILogger
}

func NewAutoscaler(compute interfaces.Compute, store interfaces.JobStore, scaling common.ScalingConfig, collector *metrics.Collector, logger arbor.ILogger) *Autoscaler {
	return &Autoscaler{
		compute: compute,
		store:   store,
		scaling: scaling,
		metrics: collector,
		logger:  logger,
	}
}

// Tick measures backlog and fleet size, then launches the planned node
// count. Compute failures are logged and dropped; the next tick retries.
func (a *Autoscaler) Tick(ctx context.Context) error {
	if !a.scaling.Enabled {
		return nil
	}

	activeNodes, err := a.compute.ActiveNodeCount(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to count active nodes")
		return nil
	}
	a.metrics.SetNodesActive(activeNodes)

	activeJobs, err := a.store.ListActive(ctx)
	if err != nil {
		a.logger.Error().Err(err).Msg("Failed to count unfinished jobs")
		return nil
	}

	toLaunch := PlanLaunch(activeNodes, len(activeJobs), a.scaling)
	if toLaunch <= 0 {
		return nil
	}

	a.logger.Info().
		Int("active_nodes", activeNodes).
		Int("unfinished_jobs", len(activeJobs)).
		Int("to_launch", toLaunch).
		Msg("Launching worker nodes")

	if err := a.compute.Launch(ctx, toLaunch); err != nil {
		a.logger.Error().Int("to_launch", toLaunch).Err(err).Msg("Failed to launch worker nodes")
		return nil
	}

	a.metrics.RecordNodesLaunched(toLaunch)
	return nil
}

// PlanLaunch computes how many nodes to launch for the given fleet size
// and backlog. Bootstrap: any backlog with zero nodes launches one.
// Overflow: once the backlog exceeds capacity plus the slack threshold,
// launch one node per MaxJobsPerNode of deficit, clamped to the fleet
// ceiling.
func PlanLaunch(activeNodes, unfinishedJobs int, cfg common.ScalingConfig) int {
	capacity := activeNodes * cfg.MaxJobsPerNode
	deficit := unfinishedJobs - capacity - cfg.JobOverflowThreshold

	bootstrap := unfinishedJobs > 0 && activeNodes == 0
	if !bootstrap && deficit < 0 {
		return 0
	}

	toLaunch := deficit / cfg.MaxJobsPerNode
	if toLaunch < 1 {
		toLaunch = 1
	}

	if activeNodes+toLaunch > cfg.MaxNodes {
		toLaunch = cfg.MaxNodes - activeNodes
	}
	if toLaunch < 0 {
		return 0
	}
	return toLaunch
}
