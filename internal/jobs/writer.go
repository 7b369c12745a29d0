// Package jobs owns the write path for job records: creation feeds the
// new-job queue, state changes feed the state-change queue. Persistence
// always wins; a failed enqueue is logged and left for the sweeper to
// reconcile, never rolled back.
package jobs

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/common"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/models"
)

// Writer performs job record writes and their queue side effects.
type Writer struct {
	store        interfaces.JobStore
	newJobs      interfaces.Queue
	stateChanges interfaces.Queue
	clock        interfaces.Clock
	logger       arbor.ILogger
}

func NewWriter(store interfaces.JobStore, newJobs, stateChanges interfaces.Queue, clock interfaces.Clock, logger arbor.ILogger) *Writer {
	return &Writer{
		store:        store,
		newJobs:      newJobs,
		stateChanges: stateChanges,
		clock:        clock,
		logger:       logger,
	}
}

// Create saves a new job record and announces it on the new-job queue.
// The id, PENDING state and creation time are assigned here; the id is
// immutable afterwards.
func (w *Writer) Create(ctx context.Context, job *models.Job) (string, error) {
	if job.ID != "" {
		return "", fmt.Errorf("job already has id %s", job.ID)
	}

	now := w.clock.Now()
	job.ID = common.NewJobID(job.SourcePath, job.DestPath, string(job.Options))
	job.State = models.JobStatePending
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := w.store.Put(ctx, job); err != nil {
		return "", fmt.Errorf("failed to save new job: %w", err)
	}

	if err := w.newJobs.Enqueue(ctx, job.ID); err != nil {
		// The record exists; the sweeper will abandon it if no worker
		// ever sees the id.
		w.logger.Error().
			Str("job_id", job.ID).
			Err(err).
			Msg("Failed to enqueue new job id")
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("nommer", job.Nommer).
		Str("source", job.SourcePath).
		Str("dest", job.DestPath).
		Msg("Job created")

	return job.ID, nil
}

// SetState transitions the job, persists the full record, then enqueues
// the id on the state-change queue.
func (w *Writer) SetState(ctx context.Context, job *models.Job, to models.JobState, detail string) error {
	if err := job.Transition(to, detail, w.clock.Now()); err != nil {
		return err
	}

	if err := w.store.Put(ctx, job); err != nil {
		return fmt.Errorf("failed to persist job %s state %s: %w", job.ID, to, err)
	}

	if err := w.stateChanges.Enqueue(ctx, job.ID); err != nil {
		w.logger.Error().
			Str("job_id", job.ID).
			Str("job_state", string(to)).
			Err(err).
			Msg("Failed to enqueue state change")
	}

	w.logger.Info().
		Str("job_id", job.ID).
		Str("job_state", string(to)).
		Msg("Job state updated")

	return nil
}

// Save re-persists the record without a state transition, bumping the
// modification time.
func (w *Writer) Save(ctx context.Context, job *models.Job) error {
	job.UpdatedAt = w.clock.Now()
	if err := w.store.Put(ctx, job); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}
