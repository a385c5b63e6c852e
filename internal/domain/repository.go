package domain

import "context"

// AccountStore persists one whole-record snapshot per user id.
type AccountStore interface {
	// GetAccount returns ErrNotFound when no record exists for id.
	GetAccount(ctx context.Context, id string) (*Account, error)
	// PutAccounts writes all given records together; backends that support
	// transactions apply them atomically.
	PutAccounts(ctx context.Context, accounts ...*Account) error
}

// JobStore persists the job table. LoadJobs/SaveJobs operate on the whole
// table, PutJob/DeleteJob on a single record.
type JobStore interface {
	LoadJobs(ctx context.Context) ([]Job, error)
	SaveJobs(ctx context.Context, jobs []Job) error
	PutJob(ctx context.Context, job Job) error
	DeleteJob(ctx context.Context, id string) error
}
