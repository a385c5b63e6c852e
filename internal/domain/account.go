package domain

import "time"

// GrantKind enumerates the sources of paid/bonus credit.
type GrantKind string

const (
	GrantKindPurchase     GrantKind = "purchase"
	GrantKindInviteEarned GrantKind = "invite-earned"
	GrantKindInviteBonus  GrantKind = "invite-bonus"
)

// TransactionKind enumerates balance-affecting events.
type TransactionKind string

const (
	TransactionPurchase     TransactionKind = "purchase"
	TransactionSpend        TransactionKind = "spend"
	TransactionRefund       TransactionKind = "refund"
	TransactionInviteEarned TransactionKind = "invite-earned"
	TransactionInviteBonus  TransactionKind = "invite-bonus"
)

// Grant is a credit-increasing event that may expire on its own schedule.
type Grant struct {
	ID         string     `json:"id"`
	Amount     int        `json:"amount"`
	Kind       GrantKind  `json:"kind"`
	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
	ReferrerID string     `json:"referrer_id,omitempty"`
	InviteeID  string     `json:"invitee_id,omitempty"`
}

// Expired reports whether the grant no longer counts towards the spendable balance.
func (g Grant) Expired(now time.Time) bool {
	return g.ExpiresAt != nil && !now.Before(*g.ExpiresAt)
}

// FreeTier is the monthly allotment that resets lazily on first access past ResetAt.
type FreeTier struct {
	MonthlyLimit  int       `json:"monthly_limit"`
	UsedThisMonth int       `json:"used_this_month"`
	ResetAt       time.Time `json:"reset_at"`
}

// Remaining returns the unused part of the allotment, never negative.
func (f FreeTier) Remaining() int {
	if left := f.MonthlyLimit - f.UsedThisMonth; left > 0 {
		return left
	}
	return 0
}

// Transaction is one entry of the append-only account log.
type Transaction struct {
	ID          string          `json:"id"`
	Amount      int             `json:"amount"`
	Kind        TransactionKind `json:"kind"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
}

// Account is the per-user credit record. It is created on first access and never deleted.
type Account struct {
	ID           string        `json:"id"`
	Balance      int           `json:"balance"`
	TotalEarned  int           `json:"total_earned"`
	TotalSpent   int           `json:"total_spent"`
	Grants       []Grant       `json:"grants"`
	FreeTier     FreeTier      `json:"free_tier"`
	Transactions []Transaction `json:"transactions"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so stores and callers never share slices.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Grants = make([]Grant, len(a.Grants))
	for i, g := range a.Grants {
		out.Grants[i] = g
		out.Grants[i].ExpiresAt = cloneTime(g.ExpiresAt)
	}
	out.Transactions = make([]Transaction, len(a.Transactions))
	for i, tx := range a.Transactions {
		out.Transactions[i] = tx
		out.Transactions[i].ExpiresAt = cloneTime(tx.ExpiresAt)
	}
	return &out
}

// ExpiredGrantTotal sums the amounts of grants whose expiry has passed.
func (a *Account) ExpiredGrantTotal(now time.Time) int {
	total := 0
	for _, g := range a.Grants {
		if g.Expired(now) {
			total += g.Amount
		}
	}
	return total
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
