package scheduler

import (
	"context"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func testScheduler() *Scheduler {
	return New(log.New(io.Discard, "", 0))
}

func TestIntervalTaskRuns(t *testing.T) {
	s := testScheduler()
	var runs atomic.Int32
	s.Add(Task{
		Name:  "tick",
		Every: 10 * time.Millisecond,
		Run:   func(ctx context.Context) { runs.Add(1) },
	})
	s.Start(context.Background())
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("task ran %d times, want >= 2", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTaskInvocationsSerialized(t *testing.T) {
	s := testScheduler()
	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	s.Add(Task{
		Name:  "slow",
		Every: time.Millisecond,
		Run: func(ctx context.Context) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
		},
	})
	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	s.Stop()

	mu.Lock()
	defer mu.Unlock()
	if maxInFlight != 1 {
		t.Errorf("max concurrent invocations = %d, want 1", maxInFlight)
	}
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	s := testScheduler()
	started := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once
	var finished atomic.Bool
	s.Add(Task{
		Name:  "long",
		Every: time.Millisecond,
		Run: func(ctx context.Context) {
			once.Do(func() { close(started) })
			select {
			case <-done:
			case <-time.After(50 * time.Millisecond):
			}
			finished.Store(true)
		},
	})
	s.Start(context.Background())
	<-started
	close(done)
	s.Stop()
	if !finished.Load() {
		t.Error("Stop returned before the in-flight run finished")
	}
}

func TestTaskStatsCount(t *testing.T) {
	s := testScheduler()
	s.Add(Task{
		Name:  "counted",
		Every: 5 * time.Millisecond,
		Run:   func(ctx context.Context) {},
	})
	s.Start(context.Background())
	time.Sleep(40 * time.Millisecond)
	s.Stop()

	st := s.TaskStats()["counted"]
	if st.Runs == 0 {
		t.Error("no runs recorded")
	}
	s.RecordError("counted")
	if s.TaskStats()["counted"].Errors != 1 {
		t.Error("error not recorded")
	}
}

func TestUntilDaily(t *testing.T) {
	now := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		at   string
		want time.Duration
	}{
		{"10:30", 30 * time.Minute},
		{"09:00", 23 * time.Hour},
		{"10:00", 24 * time.Hour},
		{"garbage", 24 * time.Hour},
	}
	for _, tc := range cases {
		if got := untilDaily(now, tc.at); got != tc.want {
			t.Errorf("untilDaily(%s) = %v, want %v", tc.at, got, tc.want)
		}
	}
}
