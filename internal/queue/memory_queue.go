package queue

import (
	"context"
	"sync"

	"github.com/ternarybob/chomp/internal/interfaces"
)

// MemoryQueue is an in-memory Queue for tests and hermetic runs. Same
// contract as BadgerQueue: FIFO, delete-on-pop, duplicates collapsed
// within a batch.
type MemoryQueue struct {
	mu  sync.Mutex
	ids []string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ids = append(q.ids, jobID)
	return nil
}

func (q *MemoryQueue) Pop(ctx context.Context, max int) ([]string, error) {
	if max <= 0 {
		return nil, nil
	}
	if max > interfaces.MaxPopBatch {
		max = interfaces.MaxPopBatch
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := max
	if n > len(q.ids) {
		n = len(q.ids)
	}

	seen := make(map[string]bool, n)
	var out []string
	for _, id := range q.ids[:n] {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	q.ids = q.ids[n:]

	return out, nil
}

func (q *MemoryQueue) Len(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ids), nil
}
