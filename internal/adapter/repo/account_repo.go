package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"vidluxe/internal/domain"
	"vidluxe/internal/infra"
	"vidluxe/internal/sqlinline"
)

// AccountRepositoryPG implements domain.AccountStore. Grants and the
// transaction log live in jsonb columns next to the scalar balances.
type AccountRepositoryPG struct {
	db *infra.SQLRunner
}

func NewAccountRepository(db *infra.SQLRunner) *AccountRepositoryPG {
	return &AccountRepositoryPG{db: db}
}

func (r *AccountRepositoryPG) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	var (
		acct         domain.Account
		grants       []byte
		transactions []byte
	)
	err := r.db.QueryRow(ctx, sqlinline.QSelectAccount, id).Scan(
		&acct.ID,
		&acct.Balance,
		&acct.TotalEarned,
		&acct.TotalSpent,
		&acct.FreeTier.MonthlyLimit,
		&acct.FreeTier.UsedThisMonth,
		&acct.FreeTier.ResetAt,
		&grants,
		&transactions,
		&acct.CreatedAt,
		&acct.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("repo: select account %s: %w", id, err)
	}
	if err := unmarshalList(grants, &acct.Grants); err != nil {
		return nil, fmt.Errorf("repo: decode grants for %s: %w", id, err)
	}
	if err := unmarshalList(transactions, &acct.Transactions); err != nil {
		return nil, fmt.Errorf("repo: decode transactions for %s: %w", id, err)
	}
	return &acct, nil
}

// PutAccounts upserts every record in one transaction.
func (r *AccountRepositoryPG) PutAccounts(ctx context.Context, accounts ...*domain.Account) error {
	return r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		for _, acct := range accounts {
			grants, err := marshalList(acct.Grants)
			if err != nil {
				return fmt.Errorf("repo: encode grants for %s: %w", acct.ID, err)
			}
			transactions, err := marshalList(acct.Transactions)
			if err != nil {
				return fmt.Errorf("repo: encode transactions for %s: %w", acct.ID, err)
			}
			if _, err := tx.Exec(ctx, sqlinline.QUpsertAccount,
				acct.ID,
				acct.Balance,
				acct.TotalEarned,
				acct.TotalSpent,
				acct.FreeTier.MonthlyLimit,
				acct.FreeTier.UsedThisMonth,
				acct.FreeTier.ResetAt,
				grants,
				transactions,
				acct.CreatedAt,
				acct.UpdatedAt,
			); err != nil {
				return fmt.Errorf("repo: upsert account %s: %w", acct.ID, err)
			}
		}
		return nil
	})
}

func marshalList[T any](items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func unmarshalList[T any](raw []byte, dst *[]T) error {
	*dst = []T{}
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
