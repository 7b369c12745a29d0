package feeder

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/jobs"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/scheduler"
)

// Service is the controller: the job cache plus the three periodic
// loops. The submit handler shares its cache and writer.
type Service struct {
	Cache  *Cache
	Writer *jobs.Writer

	ingestor   *Ingestor
	sweeper    *Sweeper
	autoscaler *Autoscaler
	sched      *scheduler.Scheduler
	store      interfaces.JobStore
	config     *common.Config
	logger     arbor.ILogger
}

// NewService wires the controller loops
func NewService(
	config *common.Config,
	store interfaces.JobStore,
	newJobs, stateChanges interfaces.Queue,
	compute interfaces.Compute,
	clock interfaces.Clock,
	notifier Notifier,
	collector *metrics.Collector,
	logger arbor.ILogger,
) *Service {
	cache := NewCache()
	writer := jobs.NewWriter(store, newJobs, stateChanges, clock, logger)

	abandonThreshold := common.Duration(config.Controller.AbandonThreshold, 24*time.Hour)

	return &Service{
		Cache:      cache,
		Writer:     writer,
		ingestor:   NewIngestor(store, stateChanges, cache, notifier, collector, logger),
		sweeper:    NewSweeper(cache, writer, clock, abandonThreshold, collector, logger),
		autoscaler: NewAutoscaler(compute, store, config.Scaling, collector, logger),
		sched:      scheduler.New(logger),
		store:      store,
		config:     config,
		logger:     logger,
	}
}

// Start loads the cache from the store and begins the loops
func (s *Service) Start(ctx context.Context) error {
	if err := s.Cache.Refresh(ctx, s.store, s.logger); err != nil {
		return fmt.Errorf("failed to load job cache: %w", err)
	}

	stateChangeInterval := common.Duration(s.config.Controller.StateChangeInterval, 60*time.Second)
	pruneInterval := common.Duration(s.config.Controller.PruneInterval, 300*time.Second)
	autoscaleInterval := common.Duration(s.config.Controller.AutoscaleInterval, 60*time.Second)

	if err := s.sched.Register("state-change-ingestion", stateChangeInterval, s.ingestor.Tick); err != nil {
		return err
	}
	if err := s.sched.Register("stale-job-sweep", pruneInterval, s.sweeper.Tick); err != nil {
		return err
	}
	if err := s.sched.Register("autoscaler", autoscaleInterval, s.autoscaler.Tick); err != nil {
		return err
	}

	s.sched.Start()
	s.logger.Info().Msg("Controller loops started")
	return nil
}

// Stop halts the loops
func (s *Service) Stop() {
	s.sched.Stop()
}
