// Package worker implements the encoder node daemon: the job-intake
// loop, the heartbeat loop with idle self-termination, and the activity
// accounting that ties them together.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/models"
	"github.com/ternarybob/chomp/internal/pipeline"
	"github.com/ternarybob/chomp/internal/scheduler"
)

// Service is one worker node. Busy-ness is an explicit counter owned by
// the encoder task lifecycle, not an inspection of runtime threads.
type Service struct {
	config  *common.Config
	newJobs interfaces.Queue
	store   interfaces.JobStore
	nodes   interfaces.NodeStore
	compute interfaces.Compute
	runner  *pipeline.Runner
	clock   interfaces.Clock
	metrics *metrics.Collector
	logger  arbor.ILogger
	sched   *scheduler.Scheduler

	instanceID string
	inFlight   atomic.Int64

	mu           sync.Mutex
	lastActivity time.Time
	terminated   bool
}

func NewService(
	config *common.Config,
	newJobs interfaces.Queue,
	store interfaces.JobStore,
	nodes interfaces.NodeStore,
	compute interfaces.Compute,
	runner *pipeline.Runner,
	clock interfaces.Clock,
	collector *metrics.Collector,
	logger arbor.ILogger,
) (*Service, error) {
	instanceID, err := compute.InstanceID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to determine instance id: %w", err)
	}

	s := &Service{
		config:       config,
		newJobs:      newJobs,
		store:        store,
		nodes:        nodes,
		compute:      compute,
		runner:       runner,
		clock:        clock,
		metrics:      collector,
		logger:       logger,
		sched:        scheduler.New(logger),
		instanceID:   instanceID,
		lastActivity: clock.Now(),
	}

	// Pipeline state writes count as activity for idle accounting.
	runner.OnStateWrite(s.Touch)

	return s, nil
}

// Start begins the intake and heartbeat loops
func (s *Service) Start() error {
	intakeInterval := common.Duration(s.config.Worker.NewJobCheckInterval, 60*time.Second)
	heartbeatInterval := common.Duration(s.config.Worker.HeartbeatInterval, 60*time.Second)

	if err := s.sched.Register("job-intake", intakeInterval, s.IntakeTick); err != nil {
		return err
	}
	if err := s.sched.Register("heartbeat", heartbeatInterval, s.HeartbeatTick); err != nil {
		return err
	}

	s.sched.Start()
	s.logger.Info().
		Str("node_id", s.instanceID).
		Int("max_jobs", s.config.Scaling.MaxJobsPerNode).
		Msg("Worker loops started")
	return nil
}

// Stop halts the loops; running encoder tasks finish on their own
func (s *Service) Stop() {
	s.sched.Stop()
}

// InFlight returns the current number of encoder tasks
func (s *Service) InFlight() int {
	return int(s.inFlight.Load())
}

// Touch records activity now
func (s *Service) Touch() {
	s.mu.Lock()
	s.lastActivity = s.clock.Now()
	s.mu.Unlock()
}

// IntakeTick pops as many job ids as this node has free slots and spawns
// an encoder task per id.
func (s *Service) IntakeTick(ctx context.Context) error {
	slots := s.config.Scaling.MaxJobsPerNode - s.InFlight()
	if slots <= 0 {
		return nil
	}

	popCtx, cancel := context.WithTimeout(ctx, common.Duration(s.config.Queue.ReceiveWait, 20*time.Second))
	defer cancel()

	ids, err := s.newJobs.Pop(popCtx, slots)
	if err != nil {
		return fmt.Errorf("failed to pop new jobs: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	s.Touch()
	s.logger.Info().Int("count", len(ids)).Int("slots", slots).Msg("Picked up new jobs")

	for _, id := range ids {
		job, err := s.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, interfaces.ErrJobNotFound) {
				// Message without a record; the id is already deleted
				// from the queue, nothing to reconcile here.
				s.logger.Warn().Str("job_id", id).Msg("Queued job id has no record, skipping")
				continue
			}
			s.logger.Error().Str("job_id", id).Err(err).Msg("Failed to load queued job")
			continue
		}
		if job.State != models.JobStatePending {
			// Redelivered id for a job another pop already claimed.
			s.logger.Warn().
				Str("job_id", id).
				Str("job_state", string(job.State)).
				Msg("Queued job is not pending, skipping")
			continue
		}

		s.spawnEncoderTask(ctx, job)
	}

	return nil
}

func (s *Service) spawnEncoderTask(ctx context.Context, job *models.Job) {
	s.inFlight.Add(1)
	s.metrics.EncodeStarted()
	started := s.clock.Now()

	common.SafeGoWithContext(ctx, s.logger, "encoderTask-"+job.ID, func() {
		defer func() {
			s.inFlight.Add(-1)
			s.metrics.EncodeDone(s.clock.Now().Sub(started).Seconds())
			s.Touch()
		}()
		s.runner.Run(ctx, job)
	})
}

// HeartbeatTick reports this node's state, or self-terminates when idle
// long enough.
func (s *Service) HeartbeatTick(ctx context.Context) error {
	s.mu.Lock()
	if s.terminated {
		s.mu.Unlock()
		return nil
	}
	idleFor := s.clock.Now().Sub(s.lastActivity)
	s.mu.Unlock()

	active := s.InFlight()
	idleThreshold := common.Duration(s.config.Worker.IdleThreshold, 10*time.Minute)

	if s.config.Worker.IdleTerminationEnabled && active == 0 && idleFor > idleThreshold {
		return s.terminate(ctx, idleFor)
	}

	node := &models.Node{
		ID:           s.instanceID,
		ActiveJobs:   active,
		State:        models.NodeStateActive,
		LastReportAt: s.clock.Now(),
	}
	if err := s.nodes.Put(ctx, node); err != nil {
		return fmt.Errorf("failed to write heartbeat: %w", err)
	}

	s.logger.Debug().
		Str("node_id", s.instanceID).
		Int("active_jobs", active).
		Msg("Heartbeat written")
	return nil
}

func (s *Service) terminate(ctx context.Context, idleFor time.Duration) error {
	s.logger.Info().
		Str("node_id", s.instanceID).
		Str("idle_for", idleFor.Round(time.Second).String()).
		Msg("Idle threshold exceeded, self-terminating")

	// Report TERMINATED before the compute call; if termination fails
	// the next heartbeat flips the record back to ACTIVE.
	node := &models.Node{
		ID:           s.instanceID,
		ActiveJobs:   0,
		State:        models.NodeStateTerminated,
		LastReportAt: s.clock.Now(),
	}
	if err := s.nodes.Put(ctx, node); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to record terminated state")
	}

	if err := s.compute.Terminate(ctx, s.instanceID); err != nil {
		return fmt.Errorf("failed to terminate instance %s: %w", s.instanceID, err)
	}

	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()
	return nil
}
