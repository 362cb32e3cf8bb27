// Package scheduler drives the periodic background passes: overdue and
// reminder scans, push delivery, recurrence rollover and retention.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"foratask-backend/pkg/clock"
)

var ErrUnknownJob = errors.New("unknown job")

// Cadence yields the next run time after from.
type Cadence interface {
	Next(from time.Time) time.Time
}

type interval time.Duration

// Every runs a job once per d.
func Every(d time.Duration) Cadence {
	return interval(d)
}

func (i interval) Next(from time.Time) time.Time {
	return from.Add(time.Duration(i))
}

type daily struct{}

// Daily runs a job at midnight UTC.
func Daily() Cadence {
	return daily{}
}

func (daily) Next(from time.Time) time.Time {
	y, m, d := from.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}

// Job is one named periodic pass.
type Job struct {
	Name    string
	Cadence Cadence
	// Immediate makes the first run happen on the first tick instead of a full period later.
	Immediate bool
	Run       func(ctx context.Context) error
}

type entry struct {
	job     Job
	next    time.Time
	running bool
}

// Scheduler checks its jobs every tick against an injectable clock. A job
// still running from its previous slot is skipped, so passes never overlap.
type Scheduler struct {
	clock    clock.Clock
	tick     time.Duration
	mu       sync.Mutex
	entries  []*entry
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a scheduler that wakes up every tick
func New(clk clock.Clock, tick time.Duration) *Scheduler {
	if tick <= 0 {
		tick = time.Second
	}
	return &Scheduler{
		clock:    clk,
		tick:     tick,
		stopChan: make(chan struct{}),
	}
}

func (s *Scheduler) Add(job Job) {
	now := s.clock.Now()
	next := job.Cadence.Next(now)
	if job.Immediate {
		next = now
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, &entry{job: job, next: next})
}

// Jobs lists the registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.entries))
	for _, e := range s.entries {
		names = append(names, e.job.Name)
	}
	return names
}

// Start begins the scheduler loop
func (s *Scheduler) Start(ctx context.Context) {
	log.Printf("[TaskScheduler] Starting scheduler with %d jobs (tick: %s)", len(s.Jobs()), s.tick)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.dispatch(ctx)

		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.dispatch(ctx)
			case <-s.stopChan:
				log.Println("[TaskScheduler] Scheduler stopped")
				return
			case <-ctx.Done():
				log.Println("[TaskScheduler] Context done, scheduler stopped")
				return
			}
		}
	}()
}

// Stop ends the loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

// RunDue runs every job whose time has come, one after another, and returns their names.
func (s *Scheduler) RunDue(ctx context.Context) []string {
	var names []string
	for _, e := range s.claimDue(s.clock.Now()) {
		s.execute(ctx, e)
		names = append(names, e.job.Name)
	}
	return names
}

// RunJob runs the named job once, outside its cadence.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	s.mu.Lock()
	var job *Job
	for _, e := range s.entries {
		if e.job.Name == name {
			job = &e.job
			break
		}
	}
	s.mu.Unlock()

	if job == nil {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return job.Run(ctx)
}

func (s *Scheduler) dispatch(ctx context.Context) {
	for _, e := range s.claimDue(s.clock.Now()) {
		s.wg.Add(1)
		go func(e *entry) {
			defer s.wg.Done()
			s.execute(ctx, e)
		}(e)
	}
}

// claimDue marks due, idle jobs as running and moves them to their next slot.
func (s *Scheduler) claimDue(now time.Time) []*entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*entry
	for _, e := range s.entries {
		if e.running || e.next.After(now) {
			continue
		}
		e.running = true
		e.next = e.job.Cadence.Next(now)
		due = append(due, e)
	}
	return due
}

func (s *Scheduler) execute(ctx context.Context, e *entry) {
	defer func() {
		s.mu.Lock()
		e.running = false
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[TaskScheduler] Job %s panicked: %v", e.job.Name, r)
		}
	}()

	started := time.Now()
	if err := e.job.Run(ctx); err != nil {
		log.Printf("[TaskScheduler] Job %s failed: %v", e.job.Name, err)
		return
	}
	if took := time.Since(started); took > s.tick {
		log.Printf("[TaskScheduler] Job %s took %s", e.job.Name, took)
	}
}
