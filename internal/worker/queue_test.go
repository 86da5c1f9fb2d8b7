package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestQueue(t *testing.T, buffer int, delay time.Duration) *Queue {
	t.Helper()
	q, err := New(buffer, delay, zerolog.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { q.Stop() })
	return q
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(0, time.Second, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for zero buffer")
	}
	if _, err := New(1, -time.Second, zerolog.Nop()); err == nil {
		t.Fatalf("expected error for negative delay")
	}
}

func TestQueue_RunsJobsInOrder(t *testing.T) {
	q := newTestQueue(t, 8, 0)

	var runs atomic.Int32
	order := make(chan int, 3)
	for i := 1; i <= 3; i++ {
		i := i
		if !q.Enqueue(Job{Name: "job", Run: func(context.Context) {
			runs.Add(1)
			order <- i
		}}) {
			t.Fatalf("enqueue %d rejected", i)
		}
	}

	if !q.Start() {
		t.Fatalf("Start returned false")
	}

	for want := 1; want <= 3; want++ {
		select {
		case got := <-order:
			if got != want {
				t.Fatalf("expected job %d, got %d", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for job %d", want)
		}
	}
	if runs.Load() != 3 {
		t.Fatalf("expected 3 runs, got %d", runs.Load())
	}
}

func TestQueue_StartTwiceAndStop(t *testing.T) {
	q := newTestQueue(t, 1, 0)

	if !q.Start() {
		t.Fatalf("first Start returned false")
	}
	if q.Start() {
		t.Fatalf("second Start should return false")
	}
	if !q.IsRunning() {
		t.Fatalf("expected running")
	}
	if !q.Stop() {
		t.Fatalf("Stop returned false")
	}
	if q.Stop() {
		t.Fatalf("second Stop should return false")
	}
	if q.IsRunning() {
		t.Fatalf("expected stopped")
	}
}

func TestQueue_EnqueueRejectsWhenFull(t *testing.T) {
	q := newTestQueue(t, 1, 0)
	// Not started, so the buffer never drains.
	if !q.Enqueue(Job{Name: "a", Run: func(context.Context) {}}) {
		t.Fatalf("first enqueue should succeed")
	}
	if q.Enqueue(Job{Name: "b", Run: func(context.Context) {}}) {
		t.Fatalf("second enqueue should be rejected")
	}
	if q.Pending() != 1 {
		t.Fatalf("expected 1 pending, got %d", q.Pending())
	}
}

func TestQueue_RecoversFromPanic(t *testing.T) {
	q := newTestQueue(t, 4, 0)

	done := make(chan struct{})
	q.Enqueue(Job{Name: "boom", Run: func(context.Context) { panic("boom") }})
	q.Enqueue(Job{Name: "after", Run: func(context.Context) { close(done) }})

	q.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not survive panic")
	}
}

func TestQueue_DelayBetweenJobs(t *testing.T) {
	q := newTestQueue(t, 4, 50*time.Millisecond)

	var times [2]time.Time
	done := make(chan struct{})
	q.Enqueue(Job{Name: "first", Run: func(context.Context) { times[0] = time.Now() }})
	q.Enqueue(Job{Name: "second", Run: func(context.Context) {
		times[1] = time.Now()
		close(done)
	}})

	q.Start()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("jobs did not complete")
	}
	if gap := times[1].Sub(times[0]); gap < 40*time.Millisecond {
		t.Fatalf("expected >=40ms gap between jobs, got %v", gap)
	}
}
