// Package worker runs jobs on a fixed number of goroutines fed by a bounded
// backlog.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrQueueFull  = errors.New("worker: queue is full")
	ErrPoolClosed = errors.New("worker: pool is not running")
)

// Runner executes one job to its terminal state.
type Runner interface {
	Run(ctx context.Context, jobID string) error
}

type Pool struct {
	runner      Runner
	logger      zerolog.Logger
	concurrency int
	backlog     chan string

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup
}

func NewPool(runner Runner, concurrency, backlog int, logger zerolog.Logger) *Pool {
	if concurrency <= 0 {
		concurrency = 4
	}
	if backlog <= 0 {
		backlog = concurrency * 16
	}
	return &Pool{
		runner:      runner,
		logger:      logger,
		concurrency: concurrency,
		backlog:     make(chan string, backlog),
	}
}

// Start launches the workers. They stop picking up new jobs once ctx is done;
// jobs already running finish with a context that is cancelled too.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
	go func() {
		<-ctx.Done()
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()
	p.logger.Info().Int("concurrency", p.concurrency).Int("backlog", cap(p.backlog)).Msg("worker: started")
}

// Submit enqueues jobID without blocking.
func (p *Pool) Submit(jobID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.running {
		return ErrPoolClosed
	}
	select {
	case p.backlog <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Wait blocks until every worker has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info().Msg("worker: stopped")
}

func (p *Pool) loop(ctx context.Context, n int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-p.backlog:
			p.handleJob(ctx, n, id)
		}
	}
}

func (p *Pool) handleJob(ctx context.Context, n int, jobID string) {
	started := time.Now()
	p.logger.Info().Str("job_id", jobID).Int("worker", n).Msg("worker: picked job")
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().Interface("panic", r).Str("job_id", jobID).Msg("worker: job panicked")
		}
	}()
	if err := p.runner.Run(ctx, jobID); err != nil {
		p.logger.Error().Err(err).Str("job_id", jobID).Dur("elapsed", time.Since(started)).Msg("worker: job failed")
		return
	}
	p.logger.Info().Str("job_id", jobID).Dur("elapsed", time.Since(started)).Msg("worker: job done")
}
