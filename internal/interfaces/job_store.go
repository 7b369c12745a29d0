package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/chomp/internal/models"
)

// ErrJobNotFound is returned when a job id has no record in the store.
var ErrJobNotFound = errors.New("job not found")

// JobStore is the durable attribute store for job records. It is the
// source of truth: queue messages carry ids only and are disposable.
type JobStore interface {
	// Put creates or replaces the record for job.ID.
	Put(ctx context.Context, job *models.Job) error

	// Get returns the record for the id, or ErrJobNotFound.
	Get(ctx context.Context, id string) (*models.Job, error)

	// ListActive returns every non-terminal job. Malformed rows are
	// logged and skipped, never fatal to the scan.
	ListActive(ctx context.Context) ([]*models.Job, error)

	// Wipe drops every job record. Idempotent; wiping an empty or
	// missing table succeeds.
	Wipe(ctx context.Context) error
}
