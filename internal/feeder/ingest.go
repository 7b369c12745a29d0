package feeder

import (
	"context"
	"errors"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/metrics"
	"github.com/ternarybob/chomp/internal/models"
)

// Ingestor tails the state-change queue. A message is only a hint that
// a job may have changed; the store record is fetched and diffed against
// the cache before any callback fires.
type Ingestor struct {
	store        interfaces.JobStore
	stateChanges interfaces.Queue
	cache        *Cache
	notifier     Notifier
	metrics      *metrics.Collector
	logger       arbor.ILogger
}

func NewIngestor(store interfaces.JobStore, stateChanges interfaces.Queue, cache *Cache, notifier Notifier, collector *metrics.Collector, logger arbor.ILogger) *Ingestor {
	return &Ingestor{
		store:        store,
		stateChanges: stateChanges,
		cache:        cache,
		notifier:     notifier,
		metrics:      collector,
		logger:       logger,
	}
}

// Tick pops one batch of state-change hints and reconciles each against
// the store. Duplicate ids were collapsed by the queue, so each id costs
// exactly one store read.
func (s *Ingestor) Tick(ctx context.Context) error {
	ids, err := s.stateChanges.Pop(ctx, interfaces.MaxPopBatch)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	s.logger.Debug().Int("count", len(ids)).Msg("Processing state-change hints")

	for _, id := range ids {
		cached := s.cache.Get(id)

		job, err := s.store.Get(ctx, id)
		if err != nil {
			if errors.Is(err, interfaces.ErrJobNotFound) {
				// Message outlived its record (wipe or very old queue
				// entry). The message is already deleted; drop the hint.
				s.logger.Warn().Str("job_id", id).Msg("State change for unknown job, discarding")
				s.cache.Remove(id)
				continue
			}
			s.logger.Error().Str("job_id", id).Err(err).Msg("Failed to refresh job for state change")
			continue
		}

		changed := cached == nil || cached.State != job.State
		if changed {
			s.recordOutcome(job.State)
			if job.NotifyURL != "" {
				notify := job.Clone()
				common.SafeGo(s.logger, "stateChangeCallback", func() {
					s.notifier.Notify(ctx, notify)
				})
			}
		}

		// Update drops terminal jobs from the cache.
		s.cache.Update(job)
	}

	s.metrics.SetJobsActive(s.cache.Len())
	return nil
}

func (s *Ingestor) recordOutcome(state models.JobState) {
	switch state {
	case models.JobStateFinished:
		s.metrics.RecordFinished()
	case models.JobStateError:
		s.metrics.RecordErrored()
	}
}
