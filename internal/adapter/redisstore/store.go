// Package redisstore keeps accounts and jobs in two redis hashes, one JSON
// document per field, so several API processes can share state.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"vidluxe/internal/domain"
)

const (
	DefaultAccountsKey = "vidluxe:accounts"
	DefaultJobsKey     = "vidluxe:jobs"
)

type AccountStore struct {
	client redis.UniversalClient
	key    string
}

func NewAccountStore(client redis.UniversalClient, key string) *AccountStore {
	if key == "" {
		key = DefaultAccountsKey
	}
	return &AccountStore{client: client, key: key}
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	raw, err := s.client.HGet(ctx, s.key, id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: get account %s: %w", id, err)
	}
	var acct domain.Account
	if err := json.Unmarshal(raw, &acct); err != nil {
		return nil, fmt.Errorf("redisstore: decode account %s: %w", id, err)
	}
	return &acct, nil
}

// PutAccounts writes all records in one MULTI/EXEC block.
func (s *AccountStore) PutAccounts(ctx context.Context, accounts ...*domain.Account) error {
	fields := make([]any, 0, len(accounts)*2)
	for _, acct := range accounts {
		raw, err := json.Marshal(acct)
		if err != nil {
			return fmt.Errorf("redisstore: encode account %s: %w", acct.ID, err)
		}
		fields = append(fields, acct.ID, raw)
	}
	if len(fields) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key, fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: put accounts: %w", err)
	}
	return nil
}

type JobStore struct {
	client redis.UniversalClient
	key    string
}

func NewJobStore(client redis.UniversalClient, key string) *JobStore {
	if key == "" {
		key = DefaultJobsKey
	}
	return &JobStore{client: client, key: key}
}

func (s *JobStore) LoadJobs(ctx context.Context) ([]domain.Job, error) {
	table, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: load jobs: %w", err)
	}
	out := make([]domain.Job, 0, len(table))
	for id, raw := range table {
		var job domain.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return nil, fmt.Errorf("redisstore: decode job %s: %w", id, err)
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SaveJobs replaces the hash atomically.
func (s *JobStore) SaveJobs(ctx context.Context, jobs []domain.Job) error {
	fields := make([]any, 0, len(jobs)*2)
	for _, job := range jobs {
		raw, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("redisstore: encode job %s: %w", job.ID, err)
		}
		fields = append(fields, job.ID, raw)
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key)
		if len(fields) > 0 {
			pipe.HSet(ctx, s.key, fields...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisstore: save jobs: %w", err)
	}
	return nil
}

func (s *JobStore) PutJob(ctx context.Context, job domain.Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("redisstore: encode job %s: %w", job.ID, err)
	}
	if err := s.client.HSet(ctx, s.key, job.ID, raw).Err(); err != nil {
		return fmt.Errorf("redisstore: put job %s: %w", job.ID, err)
	}
	return nil
}

func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	if err := s.client.HDel(ctx, s.key, id).Err(); err != nil {
		return fmt.Errorf("redisstore: delete job %s: %w", id, err)
	}
	return nil
}
