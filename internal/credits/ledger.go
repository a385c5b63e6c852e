package credits

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidluxe/internal/domain"
	"vidluxe/internal/lock"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrSelfInvite          = errors.New("cannot invite self")
	ErrAlreadyInvited      = errors.New("already invited")
	ErrInviteLimit         = errors.New("monthly invite limit reached")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

var policyErrors = []error{ErrInsufficientCredits, ErrSelfInvite, ErrAlreadyInvited, ErrInviteLimit, ErrInvalidAmount}

// Config holds the ledger's tunables.
type Config struct {
	FreeMonthlyLimit    int
	InviteReferrerBonus int
	InviteInviteeBonus  int
	InviteExpiry        time.Duration
	MonthlyInviteCap    int
}

func DefaultConfig() Config {
	return Config{
		FreeMonthlyLimit:    3,
		InviteReferrerBonus: 5,
		InviteInviteeBonus:  3,
		InviteExpiry:        30 * 24 * time.Hour,
		MonthlyInviteCap:    10,
	}
}

// Available is the spendable view of an account.
type Available struct {
	Total         int `json:"total"`
	Paid          int `json:"paid"`
	Free          int `json:"free"`
	FreeRemaining int `json:"free_remaining"`
}

// Result reports the outcome of a balance-changing call. Policy violations
// come back with Success=false and a user-facing Error rather than as a Go error.
type Result struct {
	Success       bool   `json:"success"`
	NewBalance    int    `json:"new_balance"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Err maps a failed result back to its sentinel.
func (r Result) Err() error {
	return policyErr(r.Success, r.Error)
}

type InviteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (r InviteResult) Err() error {
	return policyErr(r.Success, r.Error)
}

func policyErr(success bool, msg string) error {
	if success {
		return nil
	}
	for _, e := range policyErrors {
		if e.Error() == msg {
			return e
		}
	}
	return errors.New(msg)
}

// Ledger owns every mutation of account records.
type Ledger struct {
	store  domain.AccountStore
	locker lock.Locker
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time
}

type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

func NewLedger(store domain.AccountStore, locker lock.Locker, cfg Config, logger zerolog.Logger, opts ...Option) *Ledger {
	if locker == nil {
		locker = lock.NewKeyedMutex()
	}
	def := DefaultConfig()
	if cfg.FreeMonthlyLimit < 0 {
		cfg.FreeMonthlyLimit = def.FreeMonthlyLimit
	}
	if cfg.InviteExpiry <= 0 {
		cfg.InviteExpiry = def.InviteExpiry
	}
	if cfg.MonthlyInviteCap <= 0 {
		cfg.MonthlyInviteCap = def.MonthlyInviteCap
	}
	l := &Ledger{
		store:  store,
		locker: locker,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) GetAvailable(ctx context.Context, userID string) (Available, error) {
	var out Available
	err := l.withAccount(ctx, userID, func(acct *domain.Account, now time.Time) (bool, error) {
		out = available(acct, now)
		return false, nil
	})
	return out, err
}

// Spend draws paid credit first, capped at the non-expired portion, then the
// free allotment. Nothing is written when the available total is short.
func (l *Ledger) Spend(ctx context.Context, userID string, amount int, description string) (Result, error) {
	if amount <= 0 {
		return Result{Error: ErrInvalidAmount.Error()}, nil
	}
	var res Result
	err := l.withAccount(ctx, userID, func(acct *domain.Account, now time.Time) (bool, error) {
		avail := available(acct, now)
		if avail.Total < amount {
			res = Result{NewBalance: avail.Total, Error: ErrInsufficientCredits.Error()}
			return false, nil
		}

		fromPaid := min(amount, avail.Paid)
		fromFree := amount - fromPaid
		acct.Balance -= fromPaid
		acct.FreeTier.UsedThisMonth += fromFree
		acct.TotalSpent += amount

		tx := domain.Transaction{
			ID:          uuid.NewString(),
			Amount:      -amount,
			Kind:        domain.TransactionSpend,
			Description: description,
			CreatedAt:   now,
		}
		acct.Transactions = append(acct.Transactions, tx)
		res = Result{Success: true, NewBalance: available(acct, now).Total, TransactionID: tx.ID}
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// Refund credits amount back into the paid balance. A non-empty reference
// makes the call idempotent: a second refund for the same reference returns
// the original transaction.
func (l *Ledger) Refund(ctx context.Context, userID string, amount int, reason, reference string) (Result, error) {
	if amount <= 0 {
		return Result{Error: ErrInvalidAmount.Error()}, nil
	}
	var res Result
	err := l.withAccount(ctx, userID, func(acct *domain.Account, now time.Time) (bool, error) {
		if tx, ok := findTransaction(acct, domain.TransactionRefund, reference); ok {
			res = Result{Success: true, NewBalance: available(acct, now).Total, TransactionID: tx.ID}
			return false, nil
		}

		acct.Balance += amount
		acct.TotalEarned += amount
		tx := domain.Transaction{
			ID:          uuid.NewString(),
			Amount:      amount,
			Kind:        domain.TransactionRefund,
			Description: reason,
			Reference:   reference,
			CreatedAt:   now,
		}
		acct.Transactions = append(acct.Transactions, tx)
		res = Result{Success: true, NewBalance: available(acct, now).Total, TransactionID: tx.ID}
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}
	l.logger.Info().Str("user_id", userID).Int("amount", amount).Str("reference", reference).Msg("credits: refund")
	return res, nil
}

// Purchase appends a non-expiring purchase grant. A non-empty reference
// (the payment id) makes repeated confirmations of one payment a no-op.
func (l *Ledger) Purchase(ctx context.Context, userID string, amount int, description, reference string) (Result, error) {
	if amount <= 0 {
		return Result{Error: ErrInvalidAmount.Error()}, nil
	}
	var res Result
	err := l.withAccount(ctx, userID, func(acct *domain.Account, now time.Time) (bool, error) {
		if tx, ok := findTransaction(acct, domain.TransactionPurchase, reference); ok {
			res = Result{Success: true, NewBalance: available(acct, now).Total, TransactionID: tx.ID}
			return false, nil
		}
		grant := domain.Grant{
			ID:        uuid.NewString(),
			Amount:    amount,
			Kind:      domain.GrantKindPurchase,
			CreatedAt: now,
		}
		acct.Grants = append(acct.Grants, grant)
		acct.Balance += amount
		acct.TotalEarned += amount
		tx := domain.Transaction{
			ID:          uuid.NewString(),
			Amount:      amount,
			Kind:        domain.TransactionPurchase,
			Description: description,
			Reference:   reference,
			CreatedAt:   now,
		}
		if tx.Reference == "" {
			tx.Reference = grant.ID
		}
		acct.Transactions = append(acct.Transactions, tx)
		res = Result{Success: true, NewBalance: available(acct, now).Total, TransactionID: tx.ID}
		return true, nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// GrantInviteReward credits both parties of an invite with grants sharing one
// expiry. Both accounts are locked in id order and written together.
func (l *Ledger) GrantInviteReward(ctx context.Context, referrerID, inviteeID string) (InviteResult, error) {
	if referrerID == inviteeID {
		return InviteResult{Error: ErrSelfInvite.Error()}, nil
	}

	keys := []string{referrerID, inviteeID}
	sort.Strings(keys)
	for _, key := range keys {
		unlock, err := l.locker.Lock(ctx, key)
		if err != nil {
			return InviteResult{}, fmt.Errorf("credits: lock %s: %w", key, err)
		}
		defer unlock()
	}

	now := l.now().UTC()
	referrer, _, err := l.load(ctx, referrerID, now)
	if err != nil {
		return InviteResult{}, err
	}
	invitee, _, err := l.load(ctx, inviteeID, now)
	if err != nil {
		return InviteResult{}, err
	}

	for _, g := range invitee.Grants {
		if g.Kind == domain.GrantKindInviteBonus && g.ReferrerID == referrerID {
			return InviteResult{Error: ErrAlreadyInvited.Error()}, nil
		}
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	earned := 0
	for _, g := range referrer.Grants {
		if g.Kind == domain.GrantKindInviteEarned && !g.CreatedAt.Before(monthStart) {
			earned++
		}
	}
	if earned >= l.cfg.MonthlyInviteCap {
		return InviteResult{Error: ErrInviteLimit.Error()}, nil
	}

	expires := now.Add(l.cfg.InviteExpiry)
	addGrant(referrer, domain.Grant{
		Amount:    l.cfg.InviteReferrerBonus,
		Kind:      domain.GrantKindInviteEarned,
		InviteeID: inviteeID,
	}, domain.TransactionInviteEarned, "invite reward for "+inviteeID, now, expires)
	addGrant(invitee, domain.Grant{
		Amount:     l.cfg.InviteInviteeBonus,
		Kind:       domain.GrantKindInviteBonus,
		ReferrerID: referrerID,
	}, domain.TransactionInviteBonus, "invite bonus from "+referrerID, now, expires)

	if err := l.store.PutAccounts(ctx, referrer, invitee); err != nil {
		return InviteResult{}, fmt.Errorf("credits: save invite reward: %w", err)
	}
	l.logger.Info().Str("referrer_id", referrerID).Str("invitee_id", inviteeID).Msg("credits: invite reward granted")
	return InviteResult{Success: true}, nil
}

// Account returns a copy of the account after any lazy reset.
func (l *Ledger) Account(ctx context.Context, userID string) (*domain.Account, error) {
	var out *domain.Account
	err := l.withAccount(ctx, userID, func(acct *domain.Account, _ time.Time) (bool, error) {
		out = acct.Clone()
		return false, nil
	})
	return out, err
}

// Transactions returns up to limit entries, most recent first. A limit of
// zero or less returns everything.
func (l *Ledger) Transactions(ctx context.Context, userID string, limit int) ([]domain.Transaction, error) {
	acct, err := l.Account(ctx, userID)
	if err != nil {
		return nil, err
	}
	n := len(acct.Transactions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.Transaction, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, acct.Transactions[i])
	}
	return out, nil
}

// withAccount runs fn under the user's lock. The record is written back when
// fn reports a change or when loading created or reset it.
func (l *Ledger) withAccount(ctx context.Context, userID string, fn func(*domain.Account, time.Time) (bool, error)) error {
	if userID == "" {
		return fmt.Errorf("credits: %w: empty user id", domain.ErrInvalidInput)
	}
	unlock, err := l.locker.Lock(ctx, userID)
	if err != nil {
		return fmt.Errorf("credits: lock %s: %w", userID, err)
	}
	defer unlock()

	now := l.now().UTC()
	acct, dirty, err := l.load(ctx, userID, now)
	if err != nil {
		return err
	}
	changed, err := fn(acct, now)
	if err != nil {
		return err
	}
	if !changed && !dirty {
		return nil
	}
	acct.UpdatedAt = now
	if err := l.store.PutAccounts(ctx, acct); err != nil {
		return fmt.Errorf("credits: save account %s: %w", userID, err)
	}
	return nil
}

// load fetches or creates the account and applies the lazy free-tier reset.
// The bool reports whether the record needs to be written back.
func (l *Ledger) load(ctx context.Context, userID string, now time.Time) (*domain.Account, bool, error) {
	acct, err := l.store.GetAccount(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return l.newAccount(userID, now), true, nil
	case err != nil:
		return nil, false, fmt.Errorf("credits: load account %s: %w", userID, err)
	}

	if now.Before(acct.FreeTier.ResetAt) {
		return acct, false, nil
	}
	acct.FreeTier.UsedThisMonth = 0
	for !now.Before(acct.FreeTier.ResetAt) {
		acct.FreeTier.ResetAt = acct.FreeTier.ResetAt.AddDate(0, 1, 0)
	}
	l.logger.Debug().Str("user_id", userID).Time("reset_at", acct.FreeTier.ResetAt).Msg("credits: free tier reset")
	return acct, true, nil
}

func (l *Ledger) newAccount(userID string, now time.Time) *domain.Account {
	return &domain.Account{
		ID:           userID,
		Grants:       []domain.Grant{},
		Transactions: []domain.Transaction{},
		FreeTier: domain.FreeTier{
			MonthlyLimit: l.cfg.FreeMonthlyLimit,
			ResetAt:      nextMonthStart(now),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func addGrant(acct *domain.Account, g domain.Grant, kind domain.TransactionKind, desc string, now, expires time.Time) {
	g.ID = uuid.NewString()
	g.CreatedAt = now
	g.ExpiresAt = &expires
	acct.Grants = append(acct.Grants, g)
	acct.Balance += g.Amount
	acct.TotalEarned += g.Amount

	txExpires := expires
	acct.Transactions = append(acct.Transactions, domain.Transaction{
		ID:          uuid.NewString(),
		Amount:      g.Amount,
		Kind:        kind,
		Description: desc,
		Reference:   g.ID,
		CreatedAt:   now,
		ExpiresAt:   &txExpires,
	})
}

func findTransaction(acct *domain.Account, kind domain.TransactionKind, reference string) (domain.Transaction, bool) {
	if reference == "" {
		return domain.Transaction{}, false
	}
	for _, tx := range acct.Transactions {
		if tx.Kind == kind && tx.Reference == reference {
			return tx, true
		}
	}
	return domain.Transaction{}, false
}

func available(acct *domain.Account, now time.Time) Available {
	paid := acct.Balance - acct.ExpiredGrantTotal(now)
	if paid < 0 {
		paid = 0
	}
	free := acct.FreeTier.Remaining()
	return Available{
		Total:         paid + free,
		Paid:          paid,
		Free:          acct.FreeTier.MonthlyLimit,
		FreeRemaining: free,
	}
}

func nextMonthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
}
