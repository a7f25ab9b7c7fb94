package lock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

const BackendRedis = "redis"

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const lockExtendScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`

const defaultRetryInterval = 50 * time.Millisecond

// Redis is a SETNX lock with token-checked release. While held, the TTL is
// extended every ttl/3, so it only bounds how long a crashed holder can block
// others.
type Redis struct {
	client        redis.UniversalClient
	script        *redis.Script
	extend        *redis.Script
	prefix        string
	retryInterval time.Duration
}

func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if client == nil {
		return nil
	}
	return &Redis{
		client:        client,
		script:        redis.NewScript(lockReleaseScript),
		extend:        redis.NewScript(lockExtendScript),
		prefix:        prefix,
		retryInterval: defaultRetryInterval,
	}
}

func (l *Redis) Backend() string { return BackendRedis }

func (l *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l == nil || l.client == nil {
		return "", false, ErrNotConnected
	}
	if strings.TrimSpace(key) == "" {
		return "", false, ErrEmptyKey
	}
	if ttl <= 0 {
		return "", false, ErrInvalidTTL
	}

	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.prefix+key, token, ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

// Acquire polls TryLock until it succeeds or ctx is done.
func (l *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	for {
		token, ok, err := l.TryLock(ctx, key, ttl)
		if err != nil {
			return nil, err
		}
		if ok {
			stop := keepAlive(renewInterval(ttl), func(ctx context.Context) (bool, error) {
				return l.refresh(ctx, key, token, ttl)
			})
			return func(ctx context.Context) error {
				stop()
				return l.release(ctx, key, token)
			}, nil
		}

		timer := time.NewTimer(l.retryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, &ContentionError{Key: key, Cause: ctx.Err()}
		case <-timer.C:
		}
	}
}

func (l *Redis) release(ctx context.Context, key, token string) error {
	if l == nil || l.client == nil {
		return nil
	}
	if key == "" || token == "" {
		return nil
	}
	return l.script.Run(ctx, l.client, []string{l.prefix + key}, token).Err()
}

// refresh extends the TTL while the token still owns the key.
func (l *Redis) refresh(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	n, err := l.extend.Run(ctx, l.client, []string{l.prefix + key}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func renewInterval(ttl time.Duration) time.Duration {
	interval := ttl / 3
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	return interval
}

// keepAlive calls extend every interval until stop is called or extend
// reports the lock is no longer owned. Transient errors are retried on the
// next tick.
func keepAlive(interval time.Duration, extend func(ctx context.Context) (bool, error)) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			owned, err := extend(ctx)
			if err == nil && !owned {
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}
