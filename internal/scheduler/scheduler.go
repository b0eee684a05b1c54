// Package scheduler runs a small fixed set of named tasks on
// interval or daily-at-time cadence. Invocations of one task are
// fully serialized: the next fire time is computed only after the
// previous run returns.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"
)

// Task is one periodic job.
type Task struct {
	Name string
	Run  func(ctx context.Context)

	// Every fires the task each interval. Mutually exclusive with At.
	Every time.Duration
	// At fires the task daily at "HH:MM" local time.
	At string
}

// Stats is a point-in-time snapshot of one task's counters.
type Stats struct {
	Runs   int
	Errors int
	Last   time.Time
}

// Scheduler services its tasks until Stop.
type Scheduler struct {
	log *log.Logger
	now func() time.Time

	mu      sync.Mutex
	tasks   []Task
	stats   map[string]*Stats
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(logger *log.Logger) *Scheduler {
	return &Scheduler{
		log:   logger,
		now:   time.Now,
		stats: make(map[string]*Stats),
	}
}

// Add registers a task. Must be called before Start.
func (s *Scheduler) Add(t Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, t)
	s.stats[t.Name] = &Stats{}
}

// Start launches one loop per task. Panics in task funcs are not
// recovered; tasks are expected to handle their own errors and log.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
	s.log.Printf("scheduler: started tasks=%d", len(s.tasks))
}

// Stop cancels all task loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Printf("scheduler: stopped")
}

// TaskStats returns a snapshot of every task's counters.
func (s *Scheduler) TaskStats() map[string]Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Stats, len(s.stats))
	for name, st := range s.stats {
		out[name] = *st
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()
	for {
		wait := s.nextWait(t)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
		s.log.Printf("scheduler: run task=%s", t.Name)
		start := s.now()
		t.Run(ctx)
		s.mu.Lock()
		st := s.stats[t.Name]
		st.Runs++
		st.Last = start
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
	}
}

// RecordError bumps the error counter for a task; tasks call this
// from their Run when a pass fails.
func (s *Scheduler) RecordError(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.stats[name]; ok {
		st.Errors++
	}
}

func (s *Scheduler) nextWait(t Task) time.Duration {
	if t.Every > 0 {
		return t.Every
	}
	return untilDaily(s.now(), t.At)
}

// untilDaily returns the wait until the next occurrence of "HH:MM".
// An unparsable spec falls back to 24h.
func untilDaily(now time.Time, at string) time.Duration {
	parsed, err := time.Parse("15:04", at)
	if err != nil {
		return 24 * time.Hour
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}
