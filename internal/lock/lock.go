// Package lock provides keyed exclusive locks: an in-process implementation
// and a Redis-backed one for multi-process deployments.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrLocked       = errors.New("lock_unavailable")
	ErrEmptyKey     = errors.New("lock_key_empty")
	ErrInvalidTTL   = errors.New("lock_ttl_invalid")
	ErrNotConnected = errors.New("lock_client_not_configured")
)

// Release frees a held lock. It is safe to call once.
type Release func(ctx context.Context) error

// Locker acquires exclusive locks by key, waiting until ctx is done.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
	Backend() string
}

// ContentionError reports a lock that could not be obtained in time.
type ContentionError struct {
	Key   string
	Cause error
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock %q unavailable: %v", e.Key, e.Cause)
}

func (e *ContentionError) Unwrap() error { return e.Cause }

func (e *ContentionError) Is(target error) bool { return target == ErrLocked }

func (e *ContentionError) LockKey() string { return e.Key }

// AcquireAll takes every key in order and releases the ones already held if a
// later key fails.
func AcquireAll(ctx context.Context, l Locker, ttl time.Duration, keys ...string) (Release, error) {
	held := make([]Release, 0, len(keys))
	releaseAll := func(ctx context.Context) error {
		var errs []error
		for i := len(held) - 1; i >= 0; i-- {
			if err := held[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	for _, key := range keys {
		release, err := l.Acquire(ctx, key, ttl)
		if err != nil {
			_ = releaseAll(context.Background())
			return nil, err
		}
		held = append(held, release)
	}
	return releaseAll, nil
}
