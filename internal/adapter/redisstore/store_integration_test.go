package redisstore

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"vidluxe/internal/domain"
	"vidluxe/internal/lock"
)

// newClient skips unless REDIS_ADDR points at a disposable redis.
func newClient(t *testing.T) redis.UniversalClient {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisAccountStoreRoundTrip(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	key := "vidluxe:test:accounts:" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, key) })
	store := NewAccountStore(client, key)

	if _, err := store.GetAccount(ctx, "alice"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	a := &domain.Account{ID: "alice", Balance: 5}
	b := &domain.Account{ID: "bob", Balance: 3}
	if err := store.PutAccounts(ctx, a, b); err != nil {
		t.Fatalf("PutAccounts: %v", err)
	}
	got, err := store.GetAccount(ctx, "bob")
	if err != nil || got.Balance != 3 {
		t.Fatalf("GetAccount: %+v %v", got, err)
	}
}

func TestRedisJobStoreTable(t *testing.T) {
	client := newClient(t)
	ctx := context.Background()
	key := "vidluxe:test:jobs:" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, key) })
	store := NewJobStore(client, key)

	now := time.Now().UTC()
	if err := store.SaveJobs(ctx, []domain.Job{
		{ID: "b", Status: domain.JobStatusPending, CreatedAt: now.Add(time.Second)},
		{ID: "a", Status: domain.JobStatusProcessing, CreatedAt: now},
	}); err != nil {
		t.Fatalf("SaveJobs: %v", err)
	}
	if err := store.PutJob(ctx, domain.Job{ID: "c", Status: domain.JobStatusFailed, CreatedAt: now.Add(2 * time.Second)}); err != nil {
		t.Fatalf("PutJob: %v", err)
	}
	if err := store.DeleteJob(ctx, "b"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	jobs, err := store.LoadJobs(ctx)
	if err != nil {
		t.Fatalf("LoadJobs: %v", err)
	}
	if len(jobs) != 2 || jobs[0].ID != "a" || jobs[1].ID != "c" {
		t.Fatalf("unexpected table: %+v", jobs)
	}

	if err := store.SaveJobs(ctx, nil); err != nil {
		t.Fatalf("SaveJobs(empty): %v", err)
	}
	if jobs, _ := store.LoadJobs(ctx); len(jobs) != 0 {
		t.Fatalf("expected empty table, got %d", len(jobs))
	}
}

func TestRedisLockerSerialisesHolders(t *testing.T) {
	client := newClient(t)
	locker := lock.NewRedisLocker(client, lock.RedisOptions{Prefix: "vidluxe:test:lock:" + uuid.NewString() + ":"})
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(ctx, "alice")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()
	if maxSeen != 1 {
		t.Fatalf("expected exclusive holders, saw %d at once", maxSeen)
	}
}
