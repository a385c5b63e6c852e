// Package snapshot persists accounts and the job table as JSON files under a
// data directory. Every write goes to a temp file first and is renamed into
// place, so a crash never leaves a half-written record behind.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"vidluxe/internal/domain"
)

const (
	accountsDir = "accounts"
	jobsFile    = "jobs.json"
)

// AccountStore keeps one file per account: <dir>/accounts/<escaped id>.json.
type AccountStore struct {
	dir string
	mu  sync.Mutex
}

func NewAccountStore(dataDir string) (*AccountStore, error) {
	dir := filepath.Join(strings.TrimSpace(dataDir), accountsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: ensure accounts dir: %w", err)
	}
	return &AccountStore{dir: dir}, nil
}

func (s *AccountStore) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read account %s: %w", id, err)
	}
	var acct domain.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("snapshot: decode account %s: %w", id, err)
	}
	return &acct, nil
}

// PutAccounts writes each record in turn. Files are independent, so a failure
// part way leaves earlier records written.
func (s *AccountStore) PutAccounts(ctx context.Context, accounts ...*domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acct := range accounts {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(acct)
		if err != nil {
			return fmt.Errorf("snapshot: encode account %s: %w", acct.ID, err)
		}
		if err := writeAtomic(s.path(acct.ID), data); err != nil {
			return fmt.Errorf("snapshot: write account %s: %w", acct.ID, err)
		}
	}
	return nil
}

func (s *AccountStore) path(id string) string {
	return filepath.Join(s.dir, url.PathEscape(id)+".json")
}

// JobStore keeps the whole table in a single file. Single-record writes
// rewrite the table.
type JobStore struct {
	path string
	mu   sync.Mutex
}

func NewJobStore(dataDir string) (*JobStore, error) {
	dir := strings.TrimSpace(dataDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: ensure data dir: %w", err)
	}
	return &JobStore{path: filepath.Join(dir, jobsFile)}, nil
}

func (s *JobStore) LoadJobs(ctx context.Context) ([]domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.read()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Job, 0, len(table))
	for _, job := range table {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *JobStore) SaveJobs(ctx context.Context, jobs []domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	table := make(map[string]domain.Job, len(jobs))
	for _, job := range jobs {
		table[job.ID] = job
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(table)
}

func (s *JobStore) PutJob(ctx context.Context, job domain.Job) error {
	return s.update(ctx, func(table map[string]domain.Job) { table[job.ID] = job })
}

func (s *JobStore) DeleteJob(ctx context.Context, id string) error {
	return s.update(ctx, func(table map[string]domain.Job) { delete(table, id) })
}

func (s *JobStore) update(ctx context.Context, fn func(map[string]domain.Job)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	table, err := s.read()
	if err != nil {
		return err
	}
	fn(table)
	return s.write(table)
}

func (s *JobStore) read() (map[string]domain.Job, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]domain.Job{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: read jobs: %w", err)
	}
	table := map[string]domain.Job{}
	if len(data) == 0 {
		return table, nil
	}
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("snapshot: decode jobs: %w", err)
	}
	return table, nil
}

func (s *JobStore) write(table map[string]domain.Job) error {
	data, err := json.Marshal(table)
	if err != nil {
		return fmt.Errorf("snapshot: encode jobs: %w", err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return fmt.Errorf("snapshot: write jobs: %w", err)
	}
	return nil
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
