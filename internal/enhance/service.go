// Package enhance is the request entry point: it charges credits, creates the
// job, hands it to the workers and refunds jobs that end in failure.
package enhance

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vidluxe/internal/credits"
	"vidluxe/internal/domain"
	"vidluxe/internal/events"
	"vidluxe/internal/workflow"
)

// Ledger is the part of the credit ledger the service uses.
type Ledger interface {
	GetAvailable(ctx context.Context, userID string) (credits.Available, error)
	Spend(ctx context.Context, userID string, amount int, description string) (credits.Result, error)
	Refund(ctx context.Context, userID string, amount int, reason, reference string) (credits.Result, error)
	Purchase(ctx context.Context, userID string, amount int, description, reference string) (credits.Result, error)
	GrantInviteReward(ctx context.Context, referrerID, inviteeID string) (credits.InviteResult, error)
	Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error)
}

// Queue is the part of the job queue the service uses.
type Queue interface {
	Create(ctx context.Context, input domain.JobInput) (domain.Job, error)
	Get(ctx context.Context, id string) (domain.Job, error)
	List(ctx context.Context, userID string) []domain.Job
	Fail(ctx context.Context, id, msg string) (domain.Job, error)
	Delete(ctx context.Context, id string) bool
	OnTerminal(fn func(domain.Job))
}

// Dispatcher schedules a job for asynchronous execution.
type Dispatcher interface {
	Submit(jobID string) error
}

// Pricing maps a content type to its credit cost.
type Pricing struct {
	ImageCost int
	VideoCost int
}

func DefaultPricing() Pricing {
	return Pricing{ImageCost: 1, VideoCost: 3}
}

func (p Pricing) Cost(ct domain.ContentType) (int, error) {
	switch ct {
	case domain.ContentTypeImage:
		return p.ImageCost, nil
	case domain.ContentTypeVideo:
		return p.VideoCost, nil
	default:
		return 0, fmt.Errorf("%w: unsupported content type %q", domain.ErrInvalidInput, ct)
	}
}

// Request is what a caller submits for enhancement.
type Request struct {
	ContentType domain.ContentType `json:"content_type"`
	ContentURL  string             `json:"content_url"`
	Style       string             `json:"style"`
	Effect      string             `json:"effect"`
	Locale      string             `json:"-"`
}

// Rejection is a user-facing refusal that is not an internal error.
type Rejection struct {
	Reason string
	Err    error
}

func (r *Rejection) Error() string { return r.Reason }
func (r *Rejection) Unwrap() error { return r.Err }

type Service struct {
	ledger     Ledger
	queue      Queue
	dispatcher Dispatcher
	publisher  events.Publisher
	pricing    Pricing
	logger     zerolog.Logger

	refundAttempts int
	refundBackoff  time.Duration
}

type Options struct {
	Ledger     Ledger
	Queue      Queue
	Dispatcher Dispatcher
	Publisher  events.Publisher
	Pricing    Pricing
	Logger     zerolog.Logger

	// RefundAttempts bounds how often a failed job's refund is tried before
	// it is logged as lost. Defaults to 3, with RefundBackoff (200ms) growing
	// linearly between attempts.
	RefundAttempts int
	RefundBackoff  time.Duration
}

// NewService wires the service and subscribes it to terminal job transitions.
func NewService(opts Options) *Service {
	pricing := opts.Pricing
	def := DefaultPricing()
	if pricing.ImageCost <= 0 {
		pricing.ImageCost = def.ImageCost
	}
	if pricing.VideoCost <= 0 {
		pricing.VideoCost = def.VideoCost
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if opts.RefundAttempts <= 0 {
		opts.RefundAttempts = 3
	}
	if opts.RefundBackoff <= 0 {
		opts.RefundBackoff = 200 * time.Millisecond
	}
	s := &Service{
		ledger:         opts.Ledger,
		queue:          opts.Queue,
		dispatcher:     opts.Dispatcher,
		publisher:      publisher,
		pricing:        pricing,
		logger:         opts.Logger,
		refundAttempts: opts.RefundAttempts,
		refundBackoff:  opts.RefundBackoff,
	}
	opts.Queue.OnTerminal(s.onTerminal)
	return s
}

// Enhance charges the user and schedules a job. Policy refusals come back as
// *Rejection.
func (s *Service) Enhance(ctx context.Context, userID string, req Request) (domain.Job, error) {
	if err := validate(req); err != nil {
		return domain.Job{}, err
	}
	cost, err := s.pricing.Cost(req.ContentType)
	if err != nil {
		return domain.Job{}, err
	}

	spent, err := s.ledger.Spend(ctx, userID, cost, fmt.Sprintf("%s enhancement", req.ContentType))
	if err != nil {
		return domain.Job{}, fmt.Errorf("enhance: spend: %w", err)
	}
	if !spent.Success {
		return domain.Job{}, &Rejection{Reason: spent.Error, Err: spent.Err()}
	}

	job, err := s.queue.Create(ctx, domain.JobInput{
		ContentType: req.ContentType,
		ContentURL:  strings.TrimSpace(req.ContentURL),
		Style:       req.Style,
		Effect:      req.Effect,
		Locale:      req.Locale,
		UserID:      userID,
		Cost:        cost,
	})
	if err != nil {
		if _, rerr := s.ledger.Refund(context.WithoutCancel(ctx), userID, cost, "refund for unscheduled job", spent.TransactionID); rerr != nil {
			s.logger.Error().Err(rerr).Str("user_id", userID).Msg("enhance: refund after create failure failed")
		}
		return domain.Job{}, fmt.Errorf("enhance: create job: %w", err)
	}

	if err := s.dispatcher.Submit(job.ID); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("enhance: dispatch failed")
		// Failing the job triggers the refund listener.
		failed, ferr := s.queue.Fail(context.WithoutCancel(ctx), job.ID, "dispatch: "+err.Error())
		if ferr != nil {
			s.logger.Error().Err(ferr).Str("job_id", job.ID).Msg("enhance: fail undispatched job")
			return job, fmt.Errorf("enhance: dispatch: %w", err)
		}
		return failed, fmt.Errorf("enhance: dispatch: %w", err)
	}
	s.logger.Info().Str("job_id", job.ID).Str("user_id", userID).Int("cost", cost).Msg("enhance: job scheduled")
	return job, nil
}

// Job returns a job owned by userID.
func (s *Service) Job(ctx context.Context, userID, jobID string) (domain.Job, error) {
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if job.Input.UserID != userID {
		return domain.Job{}, domain.ErrNotFound
	}
	return job, nil
}

func (s *Service) Jobs(ctx context.Context, userID string) []domain.Job {
	return s.queue.List(ctx, userID)
}

// DeleteJob removes a finished job owned by userID.
func (s *Service) DeleteJob(ctx context.Context, userID, jobID string) error {
	job, err := s.Job(ctx, userID, jobID)
	if err != nil {
		return err
	}
	if !job.Status.Terminal() {
		return fmt.Errorf("%w: job %s is still %s", domain.ErrInvalidTransition, jobID, job.Status)
	}
	if !s.queue.Delete(ctx, jobID) {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Service) Credits(ctx context.Context, userID string) (credits.Available, error) {
	return s.ledger.GetAvailable(ctx, userID)
}

func (s *Service) Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	return s.ledger.Transactions(ctx, userID, limit)
}

// RedeemInvite credits the referrer and the redeeming user.
func (s *Service) RedeemInvite(ctx context.Context, inviteeID, referrerID string) (credits.InviteResult, error) {
	referrerID = strings.TrimSpace(referrerID)
	if referrerID == "" {
		return credits.InviteResult{}, fmt.Errorf("%w: referrer is required", domain.ErrInvalidInput)
	}
	return s.ledger.GrantInviteReward(ctx, referrerID, inviteeID)
}

// ConfirmPayment is called by the payment provider once a purchase settles.
// Replays of the same payment reference do not grant twice.
func (s *Service) ConfirmPayment(ctx context.Context, userID string, amount int, paymentRef string) (credits.Result, error) {
	if strings.TrimSpace(userID) == "" {
		return credits.Result{}, fmt.Errorf("%w: user is required", domain.ErrInvalidInput)
	}
	ref := strings.TrimSpace(paymentRef)
	if ref == "" {
		return credits.Result{}, fmt.Errorf("%w: payment reference is required", domain.ErrInvalidInput)
	}
	res, err := s.ledger.Purchase(ctx, userID, amount, "credit purchase", ref)
	if err == nil && res.Success {
		s.logger.Info().Str("user_id", userID).Int("amount", amount).Str("payment_ref", ref).Msg("enhance: payment confirmed")
	}
	return res, err
}

// onTerminal refunds failed jobs and publishes the outcome. It runs on the
// goroutine that finalised the job.
func (s *Service) onTerminal(job domain.Job) {
	ctx := context.Background()
	if job.Status == domain.JobStatusFailed && job.Input.Cost > 0 && job.Input.UserID != "" {
		s.refund(ctx, job)
	}
	if err := s.publisher.PublishJob(ctx, events.NewJobEvent(job)); err != nil {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("enhance: publish job event failed")
	}
}

// refund retries store errors; the job ID is the refund reference, so a retry
// after a write that did land is a no-op. A rejection is not retried.
func (s *Service) refund(ctx context.Context, job domain.Job) {
	logger := s.logger.With().Str("job_id", job.ID).Str("user_id", job.Input.UserID).Int("amount", job.Input.Cost).Logger()
	for attempt := 1; attempt <= s.refundAttempts; attempt++ {
		res, err := s.ledger.Refund(ctx, job.Input.UserID, job.Input.Cost, "refund for failed job "+job.ID, job.ID)
		if err == nil {
			if !res.Success {
				logger.Error().Str("reason", res.Error).Msg("enhance: refund rejected")
			}
			return
		}
		if attempt == s.refundAttempts {
			logger.Error().Err(err).Int("attempts", attempt).Msg("enhance: refund lost, manual correction required")
			return
		}
		logger.Warn().Err(err).Int("attempt", attempt).Msg("enhance: refund failed, retrying")
		time.Sleep(time.Duration(attempt) * s.refundBackoff)
	}
}

func validate(req Request) error {
	switch req.ContentType {
	case domain.ContentTypeImage, domain.ContentTypeVideo:
	default:
		return fmt.Errorf("%w: content_type must be image or video", domain.ErrInvalidInput)
	}
	raw := strings.TrimSpace(req.ContentURL)
	if raw == "" {
		return fmt.Errorf("%w: content_url is required", domain.ErrInvalidInput)
	}
	if u, err := url.Parse(raw); err != nil || (u.Scheme != "" && u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: content_url must be an http(s) url or storage key", domain.ErrInvalidInput)
	}
	if _, _, err := workflow.ResolveStyle(req.Style, req.Effect); err != nil {
		return err
	}
	return nil
}
