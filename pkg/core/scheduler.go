// Package core runs the background heartbeat: periodic housekeeping and
// jobs keyed to the distance walked.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"odysseywalk/pkg/model"
)

// DefaultInterval is the heartbeat when none is configured.
const DefaultInterval = time.Second

// Scheduler manages the central heartbeat and scheduled jobs.
type Scheduler struct {
	interval time.Duration
	clk      clockwork.Clock
	jobs     []Job

	mu   sync.Mutex
	last *model.LocationUpdate
	wg   sync.WaitGroup
}

// NewScheduler creates a new Scheduler.
func NewScheduler(interval time.Duration, clk clockwork.Clock) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Scheduler{interval: interval, clk: clk}
}

// AddJob registers a job. Jobs must be added before Start.
func (s *Scheduler) AddJob(j Job) {
	s.jobs = append(s.jobs, j)
}

// Observe records the latest position for the next tick.
func (s *Scheduler) Observe(u model.LocationUpdate) {
	s.mu.Lock()
	s.last = &u
	s.mu.Unlock()
}

// Start runs the main loop. It blocks until ctx is cancelled and the jobs
// it started have returned.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := s.clk.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("Scheduler started", "interval", s.interval, "jobs", len(s.jobs))
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			slog.Info("Scheduler stopped")
			return
		case <-ticker.Chan():
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	t := &Tick{Now: s.clk.Now()}
	s.mu.Lock()
	if s.last != nil {
		loc := *s.last
		t.Location = &loc
	}
	s.mu.Unlock()

	for _, job := range s.jobs {
		if !job.ShouldFire(t) {
			continue
		}
		slog.Debug("Job firing", "job", job.Name())
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job.Run(ctx, t)
		}()
	}
}
