package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

func quietPool(workers, queue int) *Pool {
	return NewPool(workers, queue, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPool_StopDrainsQueuedJobs(t *testing.T) {
	p := quietPool(2, 16)
	p.Start(context.Background())

	var mu sync.Mutex
	seen := 0
	for i := 0; i < 10; i++ {
		ok := p.Submit(NewJob("test", func(ctx context.Context) error {
			mu.Lock()
			seen++
			mu.Unlock()
			return nil
		}))
		if !ok {
			t.Fatalf("Submit %d rejected", i)
		}
	}
	p.Stop()

	if seen != 10 || p.Processed() != 10 {
		t.Errorf("Expected 10 jobs run, got seen=%d processed=%d", seen, p.Processed())
	}
}

func TestPool_FullQueueDrops(t *testing.T) {
	p := quietPool(1, 1)
	noop := func(ctx context.Context) error { return nil }

	if !p.Submit(NewJob("test", noop)) {
		t.Fatal("Expected first job accepted")
	}
	if p.Submit(NewJob("test", noop)) {
		t.Error("Expected second job dropped while queue is full")
	}
	p.Stop()
	if p.Submit(NewJob("test", noop)) {
		t.Error("Expected submit after stop to be rejected")
	}
	p.Stop()
}

func TestPool_FailedJobStatus(t *testing.T) {
	p := quietPool(1, 4)
	p.Start(context.Background())

	job := NewJob("test", func(ctx context.Context) error { return errors.New("db down") })
	if job.Status != JobStatusPending {
		t.Errorf("Expected pending, got %s", job.Status)
	}
	p.Submit(job)
	p.Stop()

	if job.Status != JobStatusFailed || p.Failed() != 1 {
		t.Errorf("Expected failed job, got %s (failed=%d)", job.Status, p.Failed())
	}
}

func TestPool_JobsSurviveParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := quietPool(1, 4)
	p.Start(ctx)
	cancel()

	var jobErr error
	p.Submit(NewJob("test", func(ctx context.Context) error {
		jobErr = ctx.Err()
		return nil
	}))
	p.Stop()

	if jobErr != nil {
		t.Errorf("Expected job context alive after parent cancel, got %v", jobErr)
	}
}
