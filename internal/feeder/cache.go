// Package feeder implements the controller: the job cache, state-change
// ingestion, the stale-job sweeper, the autoscaler and the callback
// notifier, scheduled as independent periodic loops.
package feeder

import (
	"context"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/chomp/internal/interfaces"
	"github.com/ternarybob/chomp/internal/models"
)

// Cache mirrors the active job records controller-side. It is rebuilt
// from the store at startup and kept current by ingestion; it never
// holds terminal jobs.
type Cache struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
}

func NewCache() *Cache {
	return &Cache{
		jobs: make(map[string]*models.Job),
	}
}

// Refresh rebuilds the cache from the store's active jobs
func (c *Cache) Refresh(ctx context.Context, store interfaces.JobStore, logger arbor.ILogger) error {
	jobs, err := store.ListActive(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.jobs = make(map[string]*models.Job, len(jobs))
	for _, job := range jobs {
		c.jobs[job.ID] = job
	}
	c.mu.Unlock()

	logger.Info().Int("count", len(jobs)).Msg("Job cache loaded from store")
	return nil
}

// Get returns the cached record for an id, or nil
func (c *Cache) Get(id string) *models.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if job, ok := c.jobs[id]; ok {
		return job.Clone()
	}
	return nil
}

// Update stores a copy of the record; terminal jobs are removed instead
func (c *Cache) Update(job *models.Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if job.State.IsTerminal() {
		delete(c.jobs, job.ID)
		return
	}
	c.jobs[job.ID] = job.Clone()
}

// Remove drops an id from the cache
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.jobs, id)
}

// Len returns the number of cached jobs
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.jobs)
}

// OlderThan returns copies of cached jobs whose last modification is
// before the cutoff.
func (c *Cache) OlderThan(cutoff time.Time) []*models.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var stale []*models.Job
	for _, job := range c.jobs {
		if job.UpdatedAt.Before(cutoff) {
			stale = append(stale, job.Clone())
		}
	}
	return stale
}
