package enhance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vidluxe/internal/adapter/memory"
	"vidluxe/internal/credits"
	"vidluxe/internal/domain"
	"vidluxe/internal/events"
	"vidluxe/internal/jobs"
)

type fakeDispatcher struct {
	mu        sync.Mutex
	submitted []string
	err       error
}

func (d *fakeDispatcher) Submit(jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.submitted = append(d.submitted, jobID)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.JobEvent
}

func (p *recordingPublisher) PublishJob(_ context.Context, evt events.JobEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type fixture struct {
	svc        *Service
	ledger     *credits.Ledger
	queue      *jobs.Queue
	dispatcher *fakeDispatcher
	publisher  *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := credits.NewLedger(memory.NewAccountStore(), nil, credits.DefaultConfig(), zerolog.Nop())
	queue, err := jobs.New(context.Background(), memory.NewJobStore(), jobs.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("jobs.New: %v", err)
	}
	f := &fixture{
		ledger:     ledger,
		queue:      queue,
		dispatcher: &fakeDispatcher{},
		publisher:  &recordingPublisher{},
	}
	f.svc = NewService(Options{
		Ledger:     ledger,
		Queue:      queue,
		Dispatcher: f.dispatcher,
		Publisher:  f.publisher,
		Logger:     zerolog.Nop(),
	})
	return f
}

func (f *fixture) total(t *testing.T, user string) int {
	t.Helper()
	avail, err := f.ledger.GetAvailable(context.Background(), user)
	if err != nil {
		t.Fatalf("GetAvailable: %v", err)
	}
	return avail.Total
}

func TestEnhanceChargesAndSchedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Enhance(ctx, "u1", Request{ContentType: domain.ContentTypeImage, ContentURL: "https://cdn.example.com/a.png", Style: "luxury"})
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if job.Status != domain.JobStatusPending || job.Input.Cost != 1 || job.Input.UserID != "u1" {
		t.Fatalf("unexpected job: %+v", job)
	}
	if len(f.dispatcher.submitted) != 1 || f.dispatcher.submitted[0] != job.ID {
		t.Fatalf("expected job to be dispatched, got %v", f.dispatcher.submitted)
	}
	if got := f.total(t, "u1"); got != 2 {
		t.Fatalf("expected one credit spent, total=%d", got)
	}
}

func TestEnhanceRejectsWhenCreditsShort(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Enhance(ctx, "u1", Request{ContentType: domain.ContentTypeVideo, ContentURL: "https://cdn.example.com/a.png"})
	if err != nil {
		t.Fatalf("first video should fit the free allotment: %v", err)
	}
	_, err = f.svc.Enhance(ctx, "u1", Request{ContentType: domain.ContentTypeVideo, ContentURL: "https://cdn.example.com/b.png"})
	var rej *Rejection
	if !errors.As(err, &rej) || !errors.Is(err, credits.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits rejection, got %v", err)
	}
	if got := len(f.svc.Jobs(ctx, "u1")); got != 1 {
		t.Fatalf("rejected request must not create a job, have %d", got)
	}
}

func TestEnhanceValidatesInput(t *testing.T) {
	f := newFixture(t)
	cases := []Request{
		{ContentType: "audio", ContentURL: "https://x/a"},
		{ContentType: domain.ContentTypeImage},
		{ContentType: domain.ContentTypeImage, ContentURL: "ftp://x/a.png"},
		{ContentType: domain.ContentTypeImage, ContentURL: "https://x/a.png", Style: "baroque"},
	}
	for _, req := range cases {
		if _, err := f.svc.Enhance(context.Background(), "u1", req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("Enhance(%+v): expected invalid input, got %v", req, err)
		}
	}
	if got := f.total(t, "u1"); got != 3 {
		t.Fatalf("invalid requests must not spend, total=%d", got)
	}
}

func TestEnhanceDispatchFailureRefunds(t *testing.T) {
	f := newFixture(t)
	f.dispatcher.err = errors.New("queue full")
	ctx := context.Background()

	job, err := f.svc.Enhance(ctx, "u1", Request{ContentType: domain.ContentTypeVideo, ContentURL: "https://cdn.example.com/a.png"})
	if err == nil {
		t.Fatalf("expected dispatch error")
	}
	if job.Status != domain.JobStatusFailed {
		t.Fatalf("expected undispatched job to be failed, got %s", job.Status)
	}
	if got := f.total(t, "u1"); got != 3 {
		t.Fatalf("expected full refund, total=%d", got)
	}
}

func TestFailedJobRefundedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, err := f.svc.Enhance(ctx, "u1", Request{ContentType: domain.ContentTypeVideo, ContentURL: "https://cdn.example.com/a.png"})
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if _, err := f.queue.Start(ctx, job.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.queue.Fail(ctx, job.ID, "generate: provider failure"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if _, err := f.queue.Fail(ctx, job.ID, "again"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected second fail to be rejected, got %v", err)
	}
	// A duplicate notification must not double the refund.
	f.svc.onTerminal(domain.Job{ID: job.ID, Status: domain.JobStatusFailed, Input: job.Input})

	txs, err := f.svc.Transactions(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	refunds := 0
	for _, tx := range txs {
		if tx.Kind == domain.TransactionRefund {
			refunds++
			if tx.Amount != 3 || tx.Reference != job.ID {
				t.Fatalf("unexpected refund: %+v", tx)
			}
		}
	}
	if refunds != 1 {
		t.Fatalf("expected exactly one refund, got %d", refunds)
	}
	if got := f.total(t, "u1"); got != 3 {
		t.Fatalf("expected balance restored to 3, got %d", got)
	}
	if len(f.publisher.events) == 0 || f.publisher.events[0].Type != events.TypeJobFailed {
		t.Fatalf("expected failure event, got %+v", f.publisher.events)
	}
}

// flakyAccounts fails the first n writes.
type flakyAccounts struct {
	*memory.AccountStore
	mu    sync.Mutex
	fails int
}

func (s *flakyAccounts) PutAccounts(ctx context.Context, accounts ...*domain.Account) error {
	s.mu.Lock()
	if s.fails > 0 {
		s.fails--
		s.mu.Unlock()
		return errors.New("store unavailable")
	}
	s.mu.Unlock()
	return s.AccountStore.PutAccounts(ctx, accounts...)
}

func TestRefundRetriesTransientStoreErrors(t *testing.T) {
	store := &flakyAccounts{AccountStore: memory.NewAccountStore()}
	ledger := credits.NewLedger(store, nil, credits.DefaultConfig(), zerolog.Nop())
	queue, err := jobs.New(context.Background(), memory.NewJobStore(), jobs.DefaultConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("jobs.New: %v", err)
	}
	svc := NewService(Options{
		Ledger:         ledger,
		Queue:          queue,
		Dispatcher:     &fakeDispatcher{},
		Logger:         zerolog.Nop(),
		RefundAttempts: 3,
		RefundBackoff:  time.Millisecond,
	})
	ctx := context.Background()

	job, err := svc.Enhance(ctx, "u1", Request{ContentType: domain.ContentTypeVideo, ContentURL: "https://cdn.example.com/a.png"})
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}
	if _, err := queue.Start(ctx, job.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	store.mu.Lock()
	store.fails = 2
	store.mu.Unlock()
	if _, err := queue.Fail(ctx, job.ID, "generate: provider failure"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	avail, err := ledger.GetAvailable(ctx, "u1")
	if err != nil {
		t.Fatalf("GetAvailable: %v", err)
	}
	if avail.Total != 3 {
		t.Fatalf("expected refund after retries, total=%d", avail.Total)
	}
	txs, _ := ledger.Transactions(ctx, "u1", 0)
	refunds := 0
	for _, tx := range txs {
		if tx.Kind == domain.TransactionRefund {
			refunds++
		}
	}
	if refunds != 1 {
		t.Fatalf("expected exactly one refund, got %d", refunds)
	}
}

func TestCompletedJobIsNotRefunded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	job, _ := f.svc.Enhance(ctx, "u1", Request{ContentType: domain.ContentTypeImage, ContentURL: "https://cdn.example.com/a.png"})
	if _, err := f.queue.Start(ctx, job.ID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := f.queue.Complete(ctx, job.ID, domain.JobResult{URL: "https://out/1.png"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := f.total(t, "u1"); got != 2 {
		t.Fatalf("completed job keeps its charge, total=%d", got)
	}
	if len(f.publisher.events) != 1 || f.publisher.events[0].ResultURL != "https://out/1.png" {
		t.Fatalf("expected completion event, got %+v", f.publisher.events)
	}
}

func TestJobOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, err := f.svc.Enhance(ctx, "owner", Request{ContentType: domain.ContentTypeImage, ContentURL: "uploads/a.png"})
	if err != nil {
		t.Fatalf("Enhance: %v", err)
	}

	if _, err := f.svc.Job(ctx, "owner", job.ID); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := f.svc.Job(ctx, "intruder", job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for other user, got %v", err)
	}
	if err := f.svc.DeleteJob(ctx, "intruder", job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found on foreign delete, got %v", err)
	}
}

func TestDeleteJobRequiresTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job, _ := f.svc.Enhance(ctx, "u1", Request{ContentType: domain.ContentTypeImage, ContentURL: "https://cdn.example.com/a.png"})

	if err := f.svc.DeleteJob(ctx, "u1", job.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
	if _, err := f.queue.Fail(ctx, job.ID, "cancelled"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if err := f.svc.DeleteJob(ctx, "u1", job.ID); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := f.svc.Job(ctx, "u1", job.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected deleted job to be gone, got %v", err)
	}
}

func TestConfirmPaymentGrantsOncePerReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.ConfirmPayment(ctx, "u1", 20, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected missing reference to be rejected, got %v", err)
	}
	for i := 0; i < 2; i++ {
		res, err := f.svc.ConfirmPayment(ctx, "u1", 20, "pay_42")
		if err != nil || !res.Success {
			t.Fatalf("ConfirmPayment: %+v %v", res, err)
		}
	}
	if got := f.total(t, "u1"); got != 23 {
		t.Fatalf("expected 20 paid + 3 free, got %d", got)
	}
}

func TestRedeemInvite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.RedeemInvite(ctx, "bob", " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	res, err := f.svc.RedeemInvite(ctx, "bob", "alice")
	if err != nil || !res.Success {
		t.Fatalf("RedeemInvite: %+v %v", res, err)
	}
	res, _ = f.svc.RedeemInvite(ctx, "bob", "alice")
	if !errors.Is(res.Err(), credits.ErrAlreadyInvited) {
		t.Fatalf("expected already invited, got %+v", res)
	}
	if got := f.total(t, "alice"); got != 8 {
		t.Fatalf("expected referrer bonus, total=%d", got)
	}
}
