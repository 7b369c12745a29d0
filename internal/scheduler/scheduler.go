// Package scheduler runs the periodic control loops. It is a thin layer
// over robfig/cron: each loop registers a tick function and an interval,
// ticks get panic recovery, and overlapping ticks of the same loop are
// skipped rather than queued.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// loopEntry tracks one registered loop
type loopEntry struct {
	name      string
	interval  time.Duration
	tick      func(ctx context.Context) error
	isRunning bool
	lastError string
	lastRun   time.Time
}

// Scheduler drives registered loops at their intervals.
type Scheduler struct {
	cron    *cron.Cron
	logger  arbor.ILogger
	mu      sync.Mutex
	loops   map[string]*loopEntry
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

func New(logger arbor.ILogger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron.New(),
		logger: logger,
		loops:  make(map[string]*loopEntry),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Register adds a loop to run every interval. Must be called before
// Start.
func (s *Scheduler) Register(name string, interval time.Duration, tick func(ctx context.Context) error) error {
	if interval <= 0 {
		return fmt.Errorf("loop %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.loops[name]; exists {
		return fmt.Errorf("loop %s already registered", name)
	}

	entry := &loopEntry{
		name:     name,
		interval: interval,
		tick:     tick,
	}
	s.loops[name] = entry

	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, func() {
		s.runLoop(name)
	}); err != nil {
		delete(s.loops, name)
		return fmt.Errorf("failed to schedule loop %s: %w", name, err)
	}

	s.logger.Info().
		Str("loop", name).
		Str("interval", interval.String()).
		Msg("Loop registered")

	return nil
}

// Start begins ticking all registered loops
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Int("loops", len(s.loops)).Msg("Scheduler started")
}

// Stop halts the loops and waits for in-flight ticks to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info().Msg("Scheduler stopped")
}

// RunOnce ticks a named loop immediately, outside its schedule
func (s *Scheduler) RunOnce(name string) {
	s.runLoop(name)
}

// runLoop executes one tick with panic recovery and overlap protection
func (s *Scheduler) runLoop(name string) {
	s.mu.Lock()
	entry, exists := s.loops[name]
	if !exists || entry.isRunning {
		s.mu.Unlock()
		return
	}
	entry.isRunning = true
	tick := entry.tick
	s.mu.Unlock()

	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("loop", name).
				Str("panic", fmt.Sprintf("%v", r)).
				Msg("PANIC RECOVERED in control loop")
			s.finishLoop(name, started, fmt.Sprintf("panic: %v", r))
		}
	}()

	err := tick(s.ctx)
	if err != nil {
		s.logger.Error().
			Str("loop", name).
			Err(err).
			Msg("Control loop tick failed")
		s.finishLoop(name, started, err.Error())
		return
	}

	s.finishLoop(name, started, "")
}

func (s *Scheduler) finishLoop(name string, started time.Time, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry, exists := s.loops[name]; exists {
		entry.isRunning = false
		entry.lastRun = started
		entry.lastError = errMsg
	}
}
