// Package memory provides in-memory store implementations used by tests
// and hermetic local runs. They hold the same contracts as the badger
// stores, including attribute-level serialization.
package memory

import (
	"context"
	"sync"

	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/models"
)

// JobStore is a mutex-guarded in-memory job store. Records round-trip
// through the attribute schema on every access so serialization bugs
// show up in unit tests, not just against badger.
type JobStore struct {
	mu   sync.RWMutex
	rows map[string]map[string]string
}

func NewJobStore() *JobStore {
	return &JobStore{
		rows: make(map[string]map[string]string),
	}
}

func (s *JobStore) Put(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[job.ID] = job.Attributes()
	return nil
}

func (s *JobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	s.mu.RLock()
	attrs, ok := s.rows[id]
	s.mu.RUnlock()
	if !ok {
		return nil, interfaces.ErrJobNotFound
	}
	return models.JobFromAttributes(attrs)
}

func (s *JobStore) ListActive(ctx context.Context) ([]*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(s.rows))
	for _, attrs := range s.rows {
		job, err := models.JobFromAttributes(attrs)
		if err != nil {
			// Malformed rows are skipped, matching the badger store.
			continue
		}
		if job.State.IsTerminal() {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (s *JobStore) Wipe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = make(map[string]map[string]string)
	return nil
}

// CorruptRow overwrites a stored attribute for malformed-record tests.
func (s *JobStore) CorruptRow(id, attr, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		row[attr] = value
	}
}
