package lock

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var ErrLockFailed = errors.New("lock: could not acquire")

const unlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`

// RedisLocker is a Locker shared across processes. Acquisition uses
// SET NX with an expiry; release only deletes the key when the token still
// matches.
type RedisLocker struct {
	client        redis.Cmdable
	prefix        string
	expiration    time.Duration
	retryInterval time.Duration
	maxRetries    int
}

type RedisOptions struct {
	Prefix        string
	Expiration    time.Duration
	RetryInterval time.Duration
	MaxRetries    int
}

func NewRedisLocker(client redis.Cmdable, opts RedisOptions) *RedisLocker {
	if opts.Prefix == "" {
		opts.Prefix = "vidluxe:lock:"
	}
	if opts.Expiration <= 0 {
		opts.Expiration = 30 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 50 * time.Millisecond
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 100
	}
	return &RedisLocker{
		client:        client,
		prefix:        opts.Prefix,
		expiration:    opts.Expiration,
		retryInterval: opts.RetryInterval,
		maxRetries:    opts.MaxRetries,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for i := 0; i < l.maxRetries; i++ {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.expiration).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = l.client.Eval(ctx, unlockScript, []string{redisKey}, token).Err()
			}, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
	return nil, ErrLockFailed
}
