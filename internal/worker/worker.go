package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/SGK112/ai-website-builder-sub004/internal/metrics"
)

type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusRunning JobStatus = "running"
	JobStatusDone    JobStatus = "done"
	JobStatusFailed  JobStatus = "failed"
)

// Job is a fire-and-forget side effect that runs after a response has been
// served, such as appending a transcript or logging usage.
type Job struct {
	ID        string
	Kind      string
	Run       func(ctx context.Context) error
	Status    JobStatus
	CreatedAt time.Time
}

func NewJob(kind string, run func(ctx context.Context) error) *Job {
	return &Job{
		ID:        uuid.New().String(),
		Kind:      kind,
		Run:       run,
		Status:    JobStatusPending,
		CreatedAt: time.Now(),
	}
}

// Queue accepts jobs without blocking the caller.
type Queue interface {
	Submit(job *Job) bool
}

type Pool struct {
	jobs       chan *Job
	workers    int
	jobTimeout time.Duration
	logger     *slog.Logger

	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool

	processed atomic.Int64
	failed    atomic.Int64
}

func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		jobs:       make(chan *Job, queueSize),
		workers:    workers,
		jobTimeout: 10 * time.Second,
		logger:     logger.With("component", "worker"),
	}
}

// Start launches the workers. Jobs run with a context derived from ctx
// without its cancellation, so that queued work survives shutdown and is
// drained by Stop.
func (p *Pool) Start(ctx context.Context) {
	base := context.WithoutCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.run(base, job)
			}
		}()
	}
}

func (p *Pool) run(ctx context.Context, job *Job) {
	ctx, cancel := context.WithTimeout(ctx, p.jobTimeout)
	defer cancel()

	job.Status = JobStatusRunning
	if err := job.Run(ctx); err != nil {
		job.Status = JobStatusFailed
		p.failed.Add(1)
		p.logger.Error("background job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
		return
	}
	job.Status = JobStatusDone
	p.processed.Add(1)
}

// Submit enqueues job and reports whether it was accepted. A full queue or
// a stopped pool drops the job.
func (p *Pool) Submit(job *Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		metrics.BackgroundJobsDropped.WithLabelValues(job.Kind).Inc()
		return false
	}
	select {
	case p.jobs <- job:
		return true
	default:
		metrics.BackgroundJobsDropped.WithLabelValues(job.Kind).Inc()
		p.logger.Warn("worker queue full, dropping job", "kind", job.Kind)
		return false
	}
}

// Stop rejects new jobs and waits for queued ones to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) Processed() int64 { return p.processed.Load() }
func (p *Pool) Failed() int64    { return p.failed.Load() }
