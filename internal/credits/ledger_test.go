package credits

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"vidluxe/internal/adapter/memory"
	"vidluxe/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLedger(t *testing.T, cfg Config) (*Ledger, *memory.AccountStore, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, time.January, 15, 12, 0, 0, 0, time.UTC)}
	store := memory.NewAccountStore()
	return NewLedger(store, nil, cfg, zerolog.Nop(), WithClock(clock.Now)), store, clock
}

func mustAvailable(t *testing.T, l *Ledger, user string) Available {
	t.Helper()
	got, err := l.GetAvailable(context.Background(), user)
	if err != nil {
		t.Fatalf("GetAvailable(%s): %v", user, err)
	}
	return got
}

func TestNewUserGetsFreeAllotment(t *testing.T) {
	l, store, _ := newTestLedger(t, DefaultConfig())

	got := mustAvailable(t, l, "u1")
	want := Available{Total: 3, Paid: 0, Free: 3, FreeRemaining: 3}
	if got != want {
		t.Fatalf("unexpected available: got %+v want %+v", got, want)
	}
	if _, err := store.GetAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("expected lazily created account to be persisted: %v", err)
	}
}

func TestSpendInsufficientLeavesAccountUntouched(t *testing.T) {
	l, store, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	mustAvailable(t, l, "u1")
	before, _ := store.GetAccount(ctx, "u1")

	res, err := l.Spend(ctx, "u1", 5, "video")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if res.Success || res.Error != "insufficient credits" {
		t.Fatalf("expected insufficient credits, got %+v", res)
	}
	if !errors.Is(res.Err(), ErrInsufficientCredits) {
		t.Fatalf("expected sentinel, got %v", res.Err())
	}

	after, _ := store.GetAccount(ctx, "u1")
	if after.Balance != before.Balance || after.FreeTier.UsedThisMonth != before.FreeTier.UsedThisMonth || len(after.Transactions) != 0 {
		t.Fatalf("account mutated on failed spend: before %+v after %+v", before, after)
	}
	if got := mustAvailable(t, l, "u1"); got.Total != 3 {
		t.Fatalf("expected total 3, got %d", got.Total)
	}
}

func TestSpendDrawsPaidBeforeFree(t *testing.T) {
	l, store, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	if res, err := l.Purchase(ctx, "u1", 10, "pack", ""); err != nil || !res.Success {
		t.Fatalf("Purchase: %+v %v", res, err)
	}
	res, err := l.Spend(ctx, "u1", 3, "image")
	if err != nil || !res.Success {
		t.Fatalf("Spend: %+v %v", res, err)
	}
	if res.NewBalance != 10 {
		t.Fatalf("expected new balance 10, got %d", res.NewBalance)
	}
	got := mustAvailable(t, l, "u1")
	if got.Paid != 7 || got.FreeRemaining != 3 || got.Total != 10 {
		t.Fatalf("unexpected available after paid spend: %+v", got)
	}

	acct, _ := store.GetAccount(ctx, "u1")
	last := acct.Transactions[len(acct.Transactions)-1]
	if last.Kind != domain.TransactionSpend || last.Amount != -3 || last.ID != res.TransactionID {
		t.Fatalf("unexpected spend transaction: %+v", last)
	}
	if acct.TotalSpent != 3 {
		t.Fatalf("expected total spent 3, got %d", acct.TotalSpent)
	}
}

func TestSpendOverflowsIntoFreeTier(t *testing.T) {
	l, store, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	if _, err := l.Purchase(ctx, "u1", 2, "pack", ""); err != nil {
		t.Fatalf("Purchase: %v", err)
	}

	res, err := l.Spend(ctx, "u1", 3, "image")
	if err != nil || !res.Success {
		t.Fatalf("Spend: %+v %v", res, err)
	}
	acct, _ := store.GetAccount(ctx, "u1")
	if acct.Balance != 0 || acct.FreeTier.UsedThisMonth != 1 {
		t.Fatalf("expected paid drained and one free used, got balance=%d used=%d", acct.Balance, acct.FreeTier.UsedThisMonth)
	}
	if got := mustAvailable(t, l, "u1"); got.Total != 2 {
		t.Fatalf("expected total 2, got %d", got.Total)
	}
}

func TestSpendDecreasesTotalByExactAmount(t *testing.T) {
	l, _, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	if _, err := l.Purchase(ctx, "u1", 4, "pack", ""); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	for _, amount := range []int{1, 2, 3, 1} {
		before := mustAvailable(t, l, "u1").Total
		res, err := l.Spend(ctx, "u1", amount, "x")
		if err != nil || !res.Success {
			t.Fatalf("Spend(%d): %+v %v", amount, res, err)
		}
		if after := mustAvailable(t, l, "u1").Total; after != before-amount {
			t.Fatalf("Spend(%d): total %d -> %d", amount, before, after)
		}
	}
	res, _ := l.Spend(ctx, "u1", 1, "x")
	if res.Success {
		t.Fatalf("expected exhausted account to reject spend")
	}
}

func TestSpendRejectsNonPositiveAmount(t *testing.T) {
	l, _, _ := newTestLedger(t, DefaultConfig())
	res, err := l.Spend(context.Background(), "u1", 0, "x")
	if err != nil {
		t.Fatalf("Spend: %v", err)
	}
	if !errors.Is(res.Err(), ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %+v", res)
	}
}

func TestFreeTierResetsOnceAndLazily(t *testing.T) {
	l, store, clock := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	if res, _ := l.Spend(ctx, "u1", 2, "x"); !res.Success {
		t.Fatalf("initial spend failed: %+v", res)
	}
	acct, _ := store.GetAccount(ctx, "u1")
	if want := time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC); !acct.FreeTier.ResetAt.Equal(want) {
		t.Fatalf("expected resetAt %v, got %v", want, acct.FreeTier.ResetAt)
	}

	clock.t = time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC)
	if got := mustAvailable(t, l, "u1"); got.FreeRemaining != 3 {
		t.Fatalf("expected reset allotment, got %+v", got)
	}
	acct, _ = store.GetAccount(ctx, "u1")
	if want := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC); !acct.FreeTier.ResetAt.Equal(want) {
		t.Fatalf("expected resetAt advanced to %v, got %v", want, acct.FreeTier.ResetAt)
	}

	if res, _ := l.Spend(ctx, "u1", 1, "x"); !res.Success {
		t.Fatalf("spend after reset failed: %+v", res)
	}
	if got := mustAvailable(t, l, "u1"); got.FreeRemaining != 2 {
		t.Fatalf("second read must not reset again, got %+v", got)
	}
}

func TestRefundCreditsBalanceAndIsIdempotentByReference(t *testing.T) {
	l, store, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	if res, _ := l.Spend(ctx, "u1", 3, "video"); !res.Success {
		t.Fatalf("spend failed: %+v", res)
	}

	first, err := l.Refund(ctx, "u1", 3, "refund for failed job j1", "j1")
	if err != nil || !first.Success {
		t.Fatalf("Refund: %+v %v", first, err)
	}
	second, err := l.Refund(ctx, "u1", 3, "refund for failed job j1", "j1")
	if err != nil || !second.Success {
		t.Fatalf("Refund again: %+v %v", second, err)
	}
	if first.TransactionID != second.TransactionID {
		t.Fatalf("expected idempotent refund, got %s and %s", first.TransactionID, second.TransactionID)
	}

	acct, _ := store.GetAccount(ctx, "u1")
	if acct.Balance != 3 || acct.TotalEarned != 3 {
		t.Fatalf("expected refund into paid balance once, got balance=%d earned=%d", acct.Balance, acct.TotalEarned)
	}
	if acct.FreeTier.UsedThisMonth != 3 {
		t.Fatalf("refund must not restore the free tier, used=%d", acct.FreeTier.UsedThisMonth)
	}
}

func TestInviteRewardRoundTrip(t *testing.T) {
	l, _, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	res, err := l.GrantInviteReward(ctx, "alice", "bob")
	if err != nil || !res.Success {
		t.Fatalf("GrantInviteReward: %+v %v", res, err)
	}
	if got := mustAvailable(t, l, "alice"); got.Total != 8 || got.Paid != 5 {
		t.Fatalf("unexpected referrer available: %+v", got)
	}
	if got := mustAvailable(t, l, "bob"); got.Total != 6 || got.Paid != 3 {
		t.Fatalf("unexpected invitee available: %+v", got)
	}

	again, err := l.GrantInviteReward(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("GrantInviteReward again: %v", err)
	}
	if again.Success || again.Error != "already invited" {
		t.Fatalf("expected already invited, got %+v", again)
	}
}

func TestInviteGrantsExpire(t *testing.T) {
	l, store, clock := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	if res, _ := l.GrantInviteReward(ctx, "alice", "bob"); !res.Success {
		t.Fatalf("invite failed: %+v", res)
	}

	clock.Advance(30 * 24 * time.Hour)
	got := mustAvailable(t, l, "bob")
	if got.Paid != 0 {
		t.Fatalf("expected expired bonus to be excluded, got %+v", got)
	}
	acct, _ := store.GetAccount(ctx, "bob")
	if acct.Balance != 3 {
		t.Fatalf("balance itself is not compacted, got %d", acct.Balance)
	}
}

func TestSelfInviteAlwaysFails(t *testing.T) {
	l, _, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	if _, err := l.Purchase(ctx, "alice", 10, "pack", ""); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	res, err := l.GrantInviteReward(ctx, "alice", "alice")
	if err != nil {
		t.Fatalf("GrantInviteReward: %v", err)
	}
	if !errors.Is(res.Err(), ErrSelfInvite) {
		t.Fatalf("expected self invite failure, got %+v", res)
	}
}

func TestInviteMonthlyCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MonthlyInviteCap = 2
	l, _, clock := newTestLedger(t, cfg)
	ctx := context.Background()

	for _, invitee := range []string{"b", "c"} {
		if res, _ := l.GrantInviteReward(ctx, "a", invitee); !res.Success {
			t.Fatalf("invite %s failed: %+v", invitee, res)
		}
	}
	res, _ := l.GrantInviteReward(ctx, "a", "d")
	if !errors.Is(res.Err(), ErrInviteLimit) {
		t.Fatalf("expected monthly limit, got %+v", res)
	}

	clock.t = time.Date(2026, time.February, 2, 0, 0, 0, 0, time.UTC)
	if res, _ := l.GrantInviteReward(ctx, "a", "d"); !res.Success {
		t.Fatalf("expected cap to reset next month, got %+v", res)
	}
}

func TestTransactionsMostRecentFirst(t *testing.T) {
	l, _, clock := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	if _, err := l.Purchase(ctx, "u1", 5, "pack", ""); err != nil {
		t.Fatalf("Purchase: %v", err)
	}
	clock.Advance(time.Minute)
	if _, err := l.Spend(ctx, "u1", 1, "image"); err != nil {
		t.Fatalf("Spend: %v", err)
	}

	txs, err := l.Transactions(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	if len(txs) != 1 || txs[0].Kind != domain.TransactionSpend {
		t.Fatalf("expected latest spend first, got %+v", txs)
	}
}

type failingStore struct{ *memory.AccountStore }

func (failingStore) PutAccounts(context.Context, ...*domain.Account) error {
	return errors.New("disk full")
}

func TestSpendSurfacesStoreErrors(t *testing.T) {
	l := NewLedger(failingStore{memory.NewAccountStore()}, nil, DefaultConfig(), zerolog.Nop())
	if _, err := l.Spend(context.Background(), "u1", 1, "x"); err == nil {
		t.Fatalf("expected persistence error")
	}
}

func TestPurchaseIsIdempotentByPaymentReference(t *testing.T) {
	l, store, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()

	first, err := l.Purchase(ctx, "u1", 10, "credit purchase", "pay_123")
	if err != nil || !first.Success {
		t.Fatalf("Purchase: %+v %v", first, err)
	}
	second, err := l.Purchase(ctx, "u1", 10, "credit purchase", "pay_123")
	if err != nil || second.TransactionID != first.TransactionID {
		t.Fatalf("expected replayed confirmation to be a no-op: %+v %v", second, err)
	}
	acct, _ := store.GetAccount(ctx, "u1")
	if acct.Balance != 10 || len(acct.Grants) != 1 || acct.Grants[0].ExpiresAt != nil {
		t.Fatalf("unexpected account after purchase: %+v", acct)
	}
}

func TestConcurrentSpendNeverOverdraws(t *testing.T) {
	l, _, _ := newTestLedger(t, DefaultConfig())
	ctx := context.Background()
	if res, err := l.Purchase(ctx, "u1", 7, "pack", "pay-1"); err != nil || !res.Success {
		t.Fatalf("Purchase: %+v %v", res, err)
	}
	if got := mustAvailable(t, l, "u1").Total; got != 10 {
		t.Fatalf("expected 10 available, got %d", got)
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Spend(ctx, "u1", 1, "image")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failures = append(failures, err)
			case res.Success:
				successes++
			case !errors.Is(res.Err(), ErrInsufficientCredits):
				failures = append(failures, res.Err())
			}
		}()
	}
	wg.Wait()

	if len(failures) > 0 {
		t.Fatalf("unexpected spend errors: %v", failures)
	}
	if successes != 10 {
		t.Fatalf("expected exactly 10 successful spends, got %d", successes)
	}
	got := mustAvailable(t, l, "u1")
	if got.Total != 0 || got.Paid != 0 || got.Free != 0 {
		t.Fatalf("expected drained account, got %+v", got)
	}
	txs, err := l.Transactions(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("Transactions: %v", err)
	}
	spends := 0
	for _, tx := range txs {
		if tx.Kind == domain.TransactionSpend {
			spends++
		}
	}
	if spends != 10 {
		t.Fatalf("expected 10 spend transactions, got %d", spends)
	}
}
