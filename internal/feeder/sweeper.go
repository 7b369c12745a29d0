package feeder

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/jobs"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/models"
)

// Sweeper abandons jobs nothing has touched within the threshold: the
// worker died mid-encode, the queue lost the id, or no worker ever
// existed. Abandonment is a normal state write, so it persists and emits
// a state-change like any other transition.
type Sweeper struct {
	cache     *Cache
	writer    *jobs.Writer
	clock     interfaces.Clock
	threshold time.Duration
	metrics   *metrics.Collector
	logger    arbor.ILogger
}

func NewSweeper(cache *Cache, writer *jobs.Writer, clock interfaces.Clock, threshold time.Duration, collector *metrics.Collector, logger arbor.ILogger) *Sweeper {
	if threshold <= 0 {
		threshold = 24 * time.Hour
	}
	return &Sweeper{
		cache:     cache,
		writer:    writer,
		clock:     clock,
		threshold: threshold,
		metrics:   collector,
		logger:    logger,
	}
}

// Tick marks every over-age cached job ABANDONED. The transition guard
// makes a double sweep of the same job a no-op: the first write leaves
// the job terminal, so a second attempt fails validation and is skipped.
func (s *Sweeper) Tick(ctx context.Context) error {
	now := s.clock.Now()
	stale := s.cache.OlderThan(now.Add(-s.threshold))
	if len(stale) == 0 {
		return nil
	}

	s.logger.Info().Int("count", len(stale)).Msg("Sweeping stale jobs")

	for _, job := range stale {
		age := now.Sub(job.UpdatedAt)
		detail := fmt.Sprintf("abandoned after %s without progress", age.Round(time.Second))

		if err := s.writer.SetState(ctx, job, models.JobStateAbandoned, detail); err != nil {
			s.logger.Warn().
				Str("job_id", job.ID).
				Err(err).
				Msg("Failed to abandon stale job")
			continue
		}

		s.metrics.RecordAbandoned()
		s.cache.Remove(job.ID)
		s.logger.Warn().
			Str("job_id", job.ID).
			Str("age", age.String()).
			Msg("Job abandoned")
	}

	return nil
}
