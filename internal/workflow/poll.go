package workflow

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"

	"vidluxe/internal/domain"
	"vidluxe/internal/providers/generation"
)

// ErrPollTimeout is returned when a task stays unfinished past the attempt
// budget or the wall-clock deadline.
var ErrPollTimeout = errors.New("provider task did not finish in time")

// PollPolicy bounds the submit/poll exchange with a generation provider.
type PollPolicy struct {
	Interval       time.Duration
	MaxAttempts    int
	Deadline       time.Duration
	SubmitTimeout  time.Duration
	SubmitAttempts int
	RequestTimeout time.Duration
}

func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:       5 * time.Second,
		MaxAttempts:    120,
		Deadline:       10 * time.Minute,
		SubmitTimeout:  30 * time.Second,
		SubmitAttempts: 2,
		RequestTimeout: 20 * time.Second,
	}
}

func (p PollPolicy) withDefaults() PollPolicy {
	def := DefaultPollPolicy()
	if p.Interval <= 0 {
		p.Interval = def.Interval
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Deadline <= 0 {
		p.Deadline = def.Deadline
	}
	if p.SubmitTimeout <= 0 {
		p.SubmitTimeout = def.SubmitTimeout
	}
	if p.SubmitAttempts <= 0 {
		p.SubmitAttempts = 1
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = def.RequestTimeout
	}
	return p
}

// Submit sends req with the submit timeout. Only timeouts are retried since a
// rejected submission will not succeed on a second try.
func (p PollPolicy) Submit(ctx context.Context, provider generation.Provider, req generation.SubmitRequest) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= p.SubmitAttempts; attempt++ {
		submitCtx, cancel := context.WithTimeout(ctx, p.SubmitTimeout)
		taskID, err := provider.Submit(submitCtx, req)
		cancel()
		if err == nil {
			return taskID, nil
		}
		lastErr = err
		if ctx.Err() != nil || !isTimeout(err) {
			break
		}
	}
	return "", fmt.Errorf("submit: %w", lastErr)
}

// Await polls taskID until the provider reports a terminal state. Timeouts and
// transient provider errors count as "still processing". Any other poll error,
// or an explicit provider failure, stops at once.
func (p PollPolicy) Await(ctx context.Context, provider generation.Provider, taskID string, logger zerolog.Logger, onProgress func(int)) (generation.PollResult, error) {
	deadlineCtx, cancel := context.WithTimeout(ctx, p.Deadline)
	defer cancel()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return generation.PollResult{}, err
		}
		select {
		case <-deadlineCtx.Done():
			if err := ctx.Err(); err != nil {
				return generation.PollResult{}, err
			}
			return generation.PollResult{}, ErrPollTimeout
		case <-timer.C:
		}

		reqCtx, reqCancel := context.WithTimeout(deadlineCtx, p.RequestTimeout)
		res, err := provider.Poll(reqCtx, taskID)
		reqCancel()
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return generation.PollResult{}, cerr
			}
			if !isTimeout(err) && !generation.IsTransient(err) {
				return generation.PollResult{}, fmt.Errorf("poll: %w", err)
			}
			logger.Debug().Err(err).Str("task_id", taskID).Int("attempt", attempt).Msg("workflow: poll failed, retrying")
			timer.Reset(p.Interval)
			continue
		}

		switch res.Status {
		case generation.TaskCompleted:
			return res, nil
		case generation.TaskFailed:
			msg := res.Message
			if msg == "" {
				msg = "task failed"
			}
			return res, fmt.Errorf("%w: %s", domain.ErrProviderFailure, msg)
		}
		if onProgress != nil {
			onProgress(res.Progress)
		}
		timer.Reset(p.Interval)
	}
	return generation.PollResult{}, ErrPollTimeout
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
