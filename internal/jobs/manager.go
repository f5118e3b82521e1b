// Package jobs runs author enrichment in the background on a bounded worker pool.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/branchscope/internal/authors"
	"github.com/cam3ron2/branchscope/internal/dashboard"
	"github.com/cam3ron2/branchscope/internal/githubapi"
	"github.com/cam3ron2/branchscope/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// State is the lifecycle state of a job.
type State string

// Job states.
const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Active reports whether the job can still make progress.
func (s State) Active() bool {
	return s == StateQueued || s == StateRunning
}

var (
	// ErrJobNotFound is returned for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrQueueFull is returned when the submission buffer is full.
	ErrQueueFull = errors.New("job queue full")
	// ErrAuthorNotFound is the failure when the author has no commits on the branch.
	ErrAuthorNotFound = errors.New("author not found")
)

// Collector loads the branch the job enriches.
type Collector interface {
	Collect(ctx context.Context, target dashboard.Target) (*dashboard.Dashboard, error)
}

// Enricher fetches commit details for a set of commits.
type Enricher interface {
	Enrich(ctx context.Context, owner, repo string, commits []githubapi.Commit, progress authors.ProgressFunc) (authors.Enrichment, error)
}

// Counter records job counters.
type Counter interface {
	AddMetric(point store.MetricPoint, delta float64) error
}

// Request names the author to enrich on one branch.
type Request struct {
	Target dashboard.Target `json:"target"`
	Author string           `json:"author"`
}

func (r Request) key() string {
	return r.Target.StateKey() + "#" + r.Author
}

// Job is a snapshot of one enrichment job.
type Job struct {
	ID         string            `json:"id"`
	Request    Request           `json:"request"`
	State      State             `json:"state"`
	Done       int               `json:"done"`
	Total      int               `json:"total"`
	Failed     int               `json:"failed"`
	Error      string            `json:"error,omitempty"`
	Analysis   *authors.Analysis `json:"analysis,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
}

// Config controls manager behavior.
type Config struct {
	Collector Collector
	Enricher  Enricher
	// Workers defaults to 2.
	Workers int
	// QueueSize defaults to 32.
	QueueSize int
	// Retention is how long finished jobs stay visible. Zero keeps them forever.
	Retention time.Duration
	Metrics   Counter
	Logger    *zap.Logger
	Now       func() time.Time
}

type entry struct {
	job    Job
	ctx    context.Context
	cancel context.CancelFunc
}

// Manager owns the job table and the worker pool.
type Manager struct {
	collector Collector
	enricher  Enricher
	workers   int
	retention time.Duration
	metrics   Counter
	logger    *zap.Logger
	now       func() time.Time

	queue chan string

	mu     sync.Mutex
	jobs   map[string]*entry
	active map[string]string
}

// NewManager validates cfg and returns a manager. Call Run to start workers.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Collector == nil {
		return nil, errors.New("job collector is required")
	}
	if cfg.Enricher == nil {
		return nil, errors.New("job enricher is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 32
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Manager{
		collector: cfg.Collector,
		enricher:  cfg.Enricher,
		workers:   workers,
		retention: cfg.Retention,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       now,
		queue:     make(chan string, queueSize),
		jobs:      make(map[string]*entry),
		active:    make(map[string]string),
	}, nil
}

// Submit queues an enrichment. While a job for the same branch and author is
// queued or running, that job is returned instead of a new one.
func (m *Manager) Submit(ctx context.Context, req Request) (Job, error) {
	if err := ctx.Err(); err != nil {
		return Job{}, err
	}
	req.Author = strings.TrimSpace(req.Author)
	if req.Target.Owner == "" || req.Target.Repo == "" {
		return Job{}, errors.New("owner and repo are required")
	}
	if req.Author == "" {
		return Job{}, errors.New("author is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.active[req.key()]; ok {
		return m.jobs[id].job, nil
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		job: Job{
			ID:        uuid.NewString(),
			Request:   req,
			State:     StateQueued,
			CreatedAt: m.now(),
		},
		ctx:    jobCtx,
		cancel: cancel,
	}

	select {
	case m.queue <- e.job.ID:
	default:
		cancel()
		return Job{}, ErrQueueFull
	}
	m.jobs[e.job.ID] = e
	m.active[req.key()] = e.job.ID
	m.count("submitted")
	return e.job, nil
}

// Get returns a snapshot of one job.
func (m *Manager) Get(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return e.job, nil
}

// Cancel stops a queued or running job. Canceling a finished job is a no-op.
func (m *Manager) Cancel(id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	e.cancel()
	if e.job.State == StateQueued {
		m.finishLocked(e, StateCanceled, context.Canceled)
	}
	return e.job, nil
}

// List returns all known jobs, newest first.
func (m *Manager) List() []Job {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Job, 0, len(m.jobs))
	for _, e := range m.jobs {
		out = append(out, e.job)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Run processes jobs until ctx is canceled, then cancels whatever is still
// active and waits for the workers to exit.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for range m.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.work(ctx)
		}()
	}
	<-ctx.Done()

	m.mu.Lock()
	for _, e := range m.jobs {
		switch e.job.State {
		case StateQueued:
			m.finishLocked(e, StateCanceled, ctx.Err())
		case StateRunning:
			e.cancel()
		}
	}
	m.mu.Unlock()
	wg.Wait()
}

// GC drops finished jobs older than the retention window.
func (m *Manager) GC() {
	if m.retention <= 0 {
		return
	}
	cutoff := m.now().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.jobs {
		if e.job.FinishedAt != nil && e.job.FinishedAt.Before(cutoff) {
			delete(m.jobs, id)
		}
	}
}

func (m *Manager) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-m.queue:
			m.process(id)
		}
	}
}

func (m *Manager) process(id string) {
	m.mu.Lock()
	e, ok := m.jobs[id]
	if !ok || e.job.State != StateQueued {
		m.mu.Unlock()
		return
	}
	started := m.now()
	e.job.State = StateRunning
	e.job.StartedAt = &started
	req := e.job.Request
	jobCtx := e.ctx
	m.mu.Unlock()

	analysis, err := m.execute(jobCtx, id, req)

	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case jobCtx.Err() != nil:
		m.finishLocked(e, StateCanceled, jobCtx.Err())
	case err != nil:
		m.finishLocked(e, StateFailed, err)
		m.logger.Warn("enrichment job failed",
			zap.String("job_id", id),
			zap.String("repo", req.Target.FullName()),
			zap.String("author", req.Author),
			zap.Error(err),
		)
	default:
		e.job.Analysis = analysis
		m.finishLocked(e, StateSucceeded, nil)
	}
}

func (m *Manager) execute(ctx context.Context, id string, req Request) (*authors.Analysis, error) {
	d, err := m.collector.Collect(ctx, req.Target)
	if err != nil {
		return nil, err
	}
	rollup := d.Author(req.Author)
	if rollup == nil {
		return nil, fmt.Errorf("%w: %q has no commits on %s@%s", ErrAuthorNotFound, req.Author, d.Target.FullName(), d.Target.Branch)
	}
	commits := authors.ForAuthor(d.Commits, req.Author)

	m.setProgress(id, 0, len(commits))
	enrichment, err := m.enricher.Enrich(ctx, req.Target.Owner, req.Target.Repo, commits, func(done, total int) {
		m.setProgress(id, done, total)
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if e, ok := m.jobs[id]; ok {
		e.job.Failed = enrichment.Failed
	}
	m.mu.Unlock()

	analysis := authors.Analyze(enrichment, rollup)
	return &analysis, nil
}

func (m *Manager) setProgress(id string, done, total int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.jobs[id]; ok {
		e.job.Done = done
		e.job.Total = total
	}
}

func (m *Manager) finishLocked(e *entry, state State, err error) {
	finished := m.now()
	e.job.State = state
	e.job.FinishedAt = &finished
	if err != nil {
		e.job.Error = err.Error()
	}
	e.cancel()
	if m.active[e.job.Request.key()] == e.job.ID {
		delete(m.active, e.job.Request.key())
	}
	m.count(string(state))
}

func (m *Manager) count(outcome string) {
	if m.metrics == nil {
		return
	}
	err := m.metrics.AddMetric(store.MetricPoint{
		Name:      "branchscope_enrichment_jobs_total",
		Labels:    map[string]string{"outcome": outcome},
		UpdatedAt: m.now(),
	}, 1)
	if err != nil {
		m.logger.Warn("job counter update failed", zap.Error(err))
	}
}
