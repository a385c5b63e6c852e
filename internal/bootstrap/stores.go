// Package bootstrap opens the persistence backend selected by STORE_BACKEND.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vidluxe/internal/adapter/memory"
	"vidluxe/internal/adapter/redisstore"
	"vidluxe/internal/adapter/repo"
	"vidluxe/internal/adapter/snapshot"
	"vidluxe/internal/domain"
	"vidluxe/internal/infra"
	"vidluxe/internal/lock"
	"vidluxe/internal/migrate"
)

// Stores bundles the account and job stores with the lock guarding accounts.
type Stores struct {
	Accounts domain.AccountStore
	Jobs     domain.JobStore
	Locker   lock.Locker
	// Checks are dependency probes for the health endpoint, keyed by name.
	Checks map[string]func(ctx context.Context) error

	closers []func()
}

// Close releases connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func OpenStores(ctx context.Context, cfg *infra.Config, logger zerolog.Logger) (*Stores, error) {
	s := &Stores{Checks: map[string]func(context.Context) error{}}

	switch cfg.StoreBackend {
	case infra.BackendMemory:
		s.Accounts = memory.NewAccountStore()
		s.Jobs = memory.NewJobStore()
		s.Locker = lock.NewKeyedMutex()

	case infra.BackendFile:
		accounts, err := snapshot.NewAccountStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		jobs, err := snapshot.NewJobStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		s.Accounts, s.Jobs = accounts, jobs
		s.Locker = lock.NewKeyedMutex()

	case infra.BackendPostgres:
		if err := migrate.Up(ctx, cfg.DatabaseURL); err != nil {
			return nil, err
		}
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, pool.Close)
		runner := infra.NewSQLRunner(pool, logger)
		s.Accounts = repo.NewAccountRepository(runner)
		s.Jobs = repo.NewJobRepository(runner)
		s.Locker = lock.NewKeyedMutex()
		s.Checks["postgres"] = pool.Ping

	case infra.BackendRedis:
		client, err := infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = client.Close() })
		s.Accounts = redisstore.NewAccountStore(client, "")
		s.Jobs = redisstore.NewJobStore(client, "")
		s.Locker = lock.NewRedisLocker(client, lock.RedisOptions{})
		s.Checks["redis"] = func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}

	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}

	logger.Info().Str("backend", cfg.StoreBackend).Msg("bootstrap: stores ready")
	return s, nil
}
