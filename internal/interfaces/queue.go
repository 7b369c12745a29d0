package interfaces

import "context"

// MaxPopBatch is the hard per-pop ceiling of the underlying queue.
const MaxPopBatch = 10

// Queue is a durable at-least-once message queue whose payload is a job
// id. Messages are deleted as part of a successful Pop; the job record is
// the source of truth, so a lost message only delays the sweeper.
type Queue interface {
	// Enqueue appends a job id to the queue.
	Enqueue(ctx context.Context, jobID string) error

	// Pop returns up to max job ids (capped at MaxPopBatch), deleting
	// the claimed messages. Duplicate ids within the batch collapse to
	// one entry. An empty queue returns an empty slice, not an error.
	Pop(ctx context.Context, max int) ([]string, error)

	// Len reports the number of stored messages, visible or not.
	Len(ctx context.Context) (int, error)
}
