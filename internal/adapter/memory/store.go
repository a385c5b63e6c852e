// Package memory keeps accounts and jobs in process memory. It backs tests
// and single-process development runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"vidluxe/internal/domain"
)

type AccountStore struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account
}

func NewAccountStore() *AccountStore {
	return &AccountStore{accounts: make(map[string]*domain.Account)}
}

func (s *AccountStore) GetAccount(_ context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acct, ok := s.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return acct.Clone(), nil
}

func (s *AccountStore) PutAccounts(_ context.Context, accounts ...*domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range accounts {
		s.accounts[acct.ID] = acct.Clone()
	}
	return nil
}

type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

func NewJobStore(seed ...domain.Job) *JobStore {
	s := &JobStore{jobs: make(map[string]domain.Job, len(seed))}
	for _, job := range seed {
		s.jobs[job.ID] = job.Clone()
	}
	return s
}

func (s *JobStore) LoadJobs(_ context.Context) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *JobStore) SaveJobs(_ context.Context, jobs []domain.Job) error {
	table := make(map[string]domain.Job, len(jobs))
	for _, job := range jobs {
		table[job.ID] = job.Clone()
	}
	s.mu.Lock()
	s.jobs = table
	s.mu.Unlock()
	return nil
}

func (s *JobStore) PutJob(_ context.Context, job domain.Job) error {
	s.mu.Lock()
	s.jobs[job.ID] = job.Clone()
	s.mu.Unlock()
	return nil
}

func (s *JobStore) DeleteJob(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
	return nil
}
