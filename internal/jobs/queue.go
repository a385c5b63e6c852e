package jobs

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidluxe/internal/domain"
)

// TimeoutError is the error recorded on jobs failed by the sweep.
const TimeoutError = "timeout"

type Config struct {
	Timeout          time.Duration
	Retention        time.Duration
	SweepInterval    time.Duration
	SnapshotInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Timeout:          10 * time.Minute,
		Retention:        24 * time.Hour,
		SweepInterval:    time.Minute,
		SnapshotInterval: 10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Retention <= 0 {
		c.Retention = def.Retention
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = def.SweepInterval
	}
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = def.SnapshotInterval
	}
	return c
}

// Queue is the in-memory job table backed by a JobStore. Mutations happen on
// the table under mu; only Create, Complete, Fail and Delete write through to
// the store, everything else reaches it on the next snapshot.
type Queue struct {
	store  domain.JobStore
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	mu   sync.RWMutex
	jobs map[string]*domain.Job

	// persistMu is held exclusively by snapshots and shared by single-record
	// writes so a snapshot captured earlier never lands after a terminal write.
	persistMu sync.RWMutex

	listenersMu sync.RWMutex
	listeners   []func(domain.Job)
}

type Option func(*Queue)

func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New loads the persisted table and drops jobs already past retention.
// Recovered jobs are not re-enqueued.
func New(ctx context.Context, store domain.JobStore, cfg Config, logger zerolog.Logger, opts ...Option) (*Queue, error) {
	q := &Queue{
		store:  store,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
		jobs:   make(map[string]*domain.Job),
	}
	for _, opt := range opts {
		opt(q)
	}

	loaded, err := store.LoadJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("jobs: load: %w", err)
	}
	now := q.now()
	dropped := 0
	for i := range loaded {
		job := loaded[i]
		if now.Sub(job.CreatedAt) > q.cfg.Retention {
			dropped++
			continue
		}
		q.jobs[job.ID] = &job
	}
	q.logger.Info().Int("recovered", len(q.jobs)).Int("dropped", dropped).Msg("jobs: recovered table")
	return q, nil
}

// OnTerminal registers fn to be called after a job becomes completed or
// failed. Listeners run synchronously on the goroutine that made the change.
func (q *Queue) OnTerminal(fn func(domain.Job)) {
	q.listenersMu.Lock()
	q.listeners = append(q.listeners, fn)
	q.listenersMu.Unlock()
}

func (q *Queue) Create(ctx context.Context, input domain.JobInput) (domain.Job, error) {
	now := q.now()
	job := domain.Job{
		ID:        uuid.NewString(),
		Status:    domain.JobStatusPending,
		Input:     input,
		CreatedAt: now,
		UpdatedAt: now,
	}

	q.mu.Lock()
	q.jobs[job.ID] = &job
	q.mu.Unlock()

	if err := q.put(ctx, job); err != nil {
		q.mu.Lock()
		delete(q.jobs, job.ID)
		q.mu.Unlock()
		return domain.Job{}, fmt.Errorf("jobs: persist %s: %w", job.ID, err)
	}
	return job.Clone(), nil
}

func (q *Queue) Get(_ context.Context, id string) (domain.Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	job, ok := q.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	return job.Clone(), nil
}

// List returns the user's jobs, newest first.
func (q *Queue) List(_ context.Context, userID string) []domain.Job {
	q.mu.RLock()
	out := make([]domain.Job, 0)
	for _, job := range q.jobs {
		if job.Input.UserID == userID {
			out = append(out, job.Clone())
		}
	}
	q.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Start moves a pending job to processing. Starting a processing job is a no-op.
func (q *Queue) Start(_ context.Context, id string) (domain.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return domain.Job{}, domain.ErrNotFound
	}
	switch job.Status {
	case domain.JobStatusProcessing:
		return job.Clone(), nil
	case domain.JobStatusPending:
	default:
		return job.Clone(), fmt.Errorf("jobs: start %s from %s: %w", id, job.Status, domain.ErrInvalidTransition)
	}
	now := q.now()
	job.Status = domain.JobStatusProcessing
	job.Progress = 0
	job.StartedAt = &now
	job.UpdatedAt = now
	return job.Clone(), nil
}

// UpdateProgress clamps progress to [0,100]. Terminal jobs are left untouched.
// An empty label keeps the previous one.
func (q *Queue) UpdateProgress(_ context.Context, id string, progress int, label string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil
	}
	// 100 is reserved for completed jobs.
	job.Progress = clamp(progress, 0, 99)
	if label != "" {
		job.StageLabel = label
	}
	job.UpdatedAt = q.now()
	return nil
}

// Complete finalises a processing job and writes it through to the store.
// A persistence error is returned after the in-memory transition has happened.
func (q *Queue) Complete(ctx context.Context, id string, result domain.JobResult) (domain.Job, error) {
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return domain.Job{}, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusProcessing {
		status := job.Status
		q.mu.Unlock()
		return domain.Job{}, fmt.Errorf("jobs: complete %s from %s: %w", id, status, domain.ErrInvalidTransition)
	}
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.Result = &result
	job.Error = ""
	job.UpdatedAt = q.now()
	snapshot := job.Clone()
	q.mu.Unlock()

	return q.finish(ctx, snapshot)
}

// Fail finalises a pending or processing job with msg.
func (q *Queue) Fail(ctx context.Context, id, msg string) (domain.Job, error) {
	if msg == "" {
		msg = "unknown error"
	}
	q.mu.Lock()
	job, ok := q.jobs[id]
	if !ok {
		q.mu.Unlock()
		return domain.Job{}, domain.ErrNotFound
	}
	if job.Status.Terminal() {
		status := job.Status
		q.mu.Unlock()
		return domain.Job{}, fmt.Errorf("jobs: fail %s from %s: %w", id, status, domain.ErrInvalidTransition)
	}
	markFailed(job, msg, q.now())
	snapshot := job.Clone()
	q.mu.Unlock()

	return q.finish(ctx, snapshot)
}

// Delete removes the job from the table. The store delete is best effort.
func (q *Queue) Delete(ctx context.Context, id string) bool {
	q.mu.Lock()
	_, ok := q.jobs[id]
	delete(q.jobs, id)
	q.mu.Unlock()
	if !ok {
		return false
	}

	q.persistMu.RLock()
	err := q.store.DeleteJob(ctx, id)
	q.persistMu.RUnlock()
	if err != nil {
		q.logger.Warn().Err(err).Str("job_id", id).Msg("jobs: delete from store failed")
	}
	return true
}

// Sweep fails non-terminal jobs older than the timeout and removes terminal
// jobs older than the retention window.
func (q *Queue) Sweep(ctx context.Context) {
	now := q.now()
	var timedOut []domain.Job
	var expired []string

	q.mu.Lock()
	for id, job := range q.jobs {
		age := now.Sub(job.CreatedAt)
		switch {
		case job.Status.Terminal() && age > q.cfg.Retention:
			expired = append(expired, id)
		case !job.Status.Terminal() && age > q.cfg.Timeout:
			markFailed(job, TimeoutError, now)
			timedOut = append(timedOut, job.Clone())
		}
	}
	q.mu.Unlock()

	for _, job := range timedOut {
		q.logger.Warn().Str("job_id", job.ID).Msg("jobs: processing timeout")
		if _, err := q.finish(ctx, job); err != nil {
			q.logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: persist timeout failed")
		}
	}
	for _, id := range expired {
		q.Delete(ctx, id)
	}
	if len(timedOut) > 0 || len(expired) > 0 {
		q.logger.Info().Int("timed_out", len(timedOut)).Int("expired", len(expired)).Msg("jobs: sweep")
	}
}

// Snapshot writes the full table. Errors are logged and dropped.
func (q *Queue) Snapshot(ctx context.Context) {
	q.persistMu.Lock()
	defer q.persistMu.Unlock()

	q.mu.RLock()
	table := make([]domain.Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		table = append(table, job.Clone())
	}
	q.mu.RUnlock()

	if err := q.store.SaveJobs(ctx, table); err != nil {
		q.logger.Error().Err(err).Int("jobs", len(table)).Msg("jobs: snapshot failed")
	}
}

// Run drives the sweep and snapshot tickers until ctx is done, then takes a
// final snapshot.
func (q *Queue) Run(ctx context.Context) {
	sweep := time.NewTicker(q.cfg.SweepInterval)
	defer sweep.Stop()
	snapshot := time.NewTicker(q.cfg.SnapshotInterval)
	defer snapshot.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			q.Snapshot(flushCtx)
			cancel()
			return
		case <-sweep.C:
			q.Sweep(ctx)
		case <-snapshot.C:
			q.Snapshot(ctx)
		}
	}
}

func (q *Queue) finish(ctx context.Context, job domain.Job) (domain.Job, error) {
	err := q.put(ctx, job)
	q.notify(job)
	if err != nil {
		return job, fmt.Errorf("jobs: persist %s: %w", job.ID, err)
	}
	return job, nil
}

func (q *Queue) put(ctx context.Context, job domain.Job) error {
	q.persistMu.RLock()
	defer q.persistMu.RUnlock()
	return q.store.PutJob(ctx, job)
}

func (q *Queue) notify(job domain.Job) {
	q.listenersMu.RLock()
	listeners := append([]func(domain.Job){}, q.listeners...)
	q.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(job.Clone())
	}
}

func markFailed(job *domain.Job, msg string, now time.Time) {
	job.Status = domain.JobStatusFailed
	job.Error = msg
	job.Result = nil
	if job.Progress >= 100 {
		job.Progress = 99
	}
	job.UpdatedAt = now
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
