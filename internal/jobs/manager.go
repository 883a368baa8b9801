// Package jobs owns the asynchronous execution lifecycle: a submitted
// computation gets an identifier immediately, runs on a worker pool away from
// the request path, and any number of listeners can attach before or after it
// finishes and observe the same terminal result.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/cadentj/interp-workbench/internal/metrics"
	"github.com/cadentj/interp-workbench/internal/models"
	"github.com/cadentj/interp-workbench/internal/repository"
)

// ErrJobNotFound reports an unknown job id.
var ErrJobNotFound = errors.New("job not found")

// ErrShutdown marks jobs that were still queued when the manager stopped.
var ErrShutdown = errors.New("job manager shut down before execution")

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Work is the unit a job executes. The payload it returns becomes the job's
// terminal result.
type Work func(ctx context.Context) (any, error)

// Job is one asynchronous unit of work. Terminal fields (payload, err) are
// written exactly once, before done is closed, and never mutated afterwards.
type Job struct {
	id      string
	kind    string
	traceID string
	created time.Time

	done chan struct{}

	mu       sync.Mutex
	state    State
	payload  any
	err      error
	finished time.Time
}

func (j *Job) ID() string { return j.id }

func (j *Job) Kind() string { return j.kind }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Wait blocks until the job is terminal or ctx is cancelled. It can be called
// any number of times, including after the job finished; every caller sees
// the same payload or error.
func (j *Job) Wait(ctx context.Context) (any, error) {
	select {
	case <-j.done:
		return j.payload, j.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// finish records the terminal result. Only the first call wins; later calls
// report false and change nothing.
func (j *Job) finish(payload any, err error) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state == StateCompleted || j.state == StateFailed {
		return false
	}
	j.payload = payload
	j.err = err
	j.finished = time.Now()
	if err != nil {
		j.state = StateFailed
	} else {
		j.state = StateCompleted
	}
	close(j.done)
	return true
}

func (j *Job) setRunning() {
	j.mu.Lock()
	j.state = StateRunning
	j.mu.Unlock()
}

type pendingWork struct {
	job  *Job
	work Work
}

// Manager schedules jobs onto a fixed worker pool and retains terminal jobs
// in memory for ttl before eviction, so late listeners can still replay the
// result within the retention window. Terminal snapshots are also written to
// the repository for audit beyond eviction.
type Manager struct {
	workers int
	ttl     time.Duration
	repo    repository.Repository

	mu      sync.Mutex
	cond    *sync.Cond
	jobs    map[string]*Job
	pending []*pendingWork
	closed  bool
}

// NewManager builds a manager with the given pool size and terminal-job
// retention window. repo may be nil to disable persistence.
func NewManager(workers int, ttl time.Duration, repo repository.Repository) *Manager {
	if workers < 1 {
		workers = 1
	}
	m := &Manager{
		workers: workers,
		ttl:     ttl,
		repo:    repo,
		jobs:    make(map[string]*Job),
	}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Start runs the worker pool and the eviction janitor until ctx is cancelled.
// Jobs already picked up keep running to completion.
func (m *Manager) Start(ctx context.Context) error {
	slog.Info("Job manager starting", "workers", m.workers, "ttl", m.ttl.String())

	var wg sync.WaitGroup
	for i := 0; i < m.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.worker(ctx)
		}()
	}
	go m.janitor(ctx)

	<-ctx.Done()
	m.mu.Lock()
	m.closed = true
	pending := m.pending
	m.pending = nil
	m.cond.Broadcast()
	m.mu.Unlock()

	// Queued jobs that never reached a worker still get a terminal state so
	// attached listeners are released.
	for _, p := range pending {
		m.finish(p.job, nil, ErrShutdown)
	}
	wg.Wait()

	slog.Info("Job manager stopped")
	return nil
}

// Create registers work under a fresh id and schedules it without blocking.
func (m *Manager) Create(kind, traceID string, work Work) *Job {
	job := &Job{
		id:      ulid.Make().String(),
		kind:    kind,
		traceID: traceID,
		created: time.Now(),
		done:    make(chan struct{}),
		state:   StatePending,
	}

	m.mu.Lock()
	m.jobs[job.id] = job
	m.pending = append(m.pending, &pendingWork{job: job, work: work})
	m.cond.Signal()
	m.mu.Unlock()

	slog.Info("Job created", "job_id", job.id, "kind", kind, "trace_id", traceID)
	return job
}

// Get returns the live handle for a job id, or ErrJobNotFound.
func (m *Manager) Get(jobID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job, nil
}

func (m *Manager) worker(ctx context.Context) {
	for {
		m.mu.Lock()
		for len(m.pending) == 0 && !m.closed {
			m.cond.Wait()
		}
		if m.closed {
			m.mu.Unlock()
			return
		}
		next := m.pending[0]
		m.pending = m.pending[1:]
		m.mu.Unlock()

		m.run(ctx, next.job, next.work)
	}
}

func (m *Manager) run(ctx context.Context, job *Job, work Work) {
	job.setRunning()
	metrics.JobStart()

	defer func() {
		if r := recover(); r != nil {
			m.finish(job, nil, fmt.Errorf("job panic: %v", r))
		}
	}()

	payload, err := work(ctx)
	m.finish(job, payload, err)
}

func (m *Manager) finish(job *Job, payload any, err error) {
	if !job.finish(payload, err) {
		return
	}

	status := StateCompleted
	errStr := ""
	if err != nil {
		status = StateFailed
		errStr = err.Error()
		slog.Error("Job failed", "job_id", job.id, "kind", job.kind, "error", err)
	} else {
		slog.Info("Job completed", "job_id", job.id, "kind", job.kind,
			"dur_ms", job.finished.Sub(job.created).Milliseconds())
	}
	metrics.JobEnd(string(status))

	if m.repo == nil {
		return
	}
	payloadJSON := ""
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			payloadJSON = string(b)
		}
	}
	record := &models.JobRecord{
		Timestamp:  job.created,
		JobID:      job.id,
		TraceID:    job.traceID,
		Kind:       job.kind,
		Status:     string(status),
		Payload:    payloadJSON,
		Error:      errStr,
		DurationMs: job.finished.Sub(job.created).Milliseconds(),
	}
	if err := m.repo.Job().LogJob(context.Background(), record); err != nil {
		slog.Warn("Failed to persist job record", "job_id", job.id, "error", err)
	}
}

// janitor evicts terminal jobs past the retention window.
func (m *Manager) janitor(ctx context.Context) {
	interval := m.ttl / 4
	if interval < 30*time.Second {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.evictExpired(now); n > 0 {
				slog.Debug("Evicted terminal jobs", "count", n)
			}
		}
	}
}

func (m *Manager) evictExpired(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, job := range m.jobs {
		job.mu.Lock()
		expired := (job.state == StateCompleted || job.state == StateFailed) &&
			now.Sub(job.finished) > m.ttl
		job.mu.Unlock()
		if expired {
			delete(m.jobs, id)
			evicted++
		}
	}
	return evicted
}
