package ratelimit

import (
	"context"
	"strings"
)

const defaultPrefix = "bazaar:ratelimit:"

// Limiter decides whether one more request may pass for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (*Result, error)
}

// BucketLimiter applies one rate and burst to every key.
type BucketLimiter struct {
	bucket *TokenBucket
	prefix string
	rate   float64
	burst  int
}

func NewBucketLimiter(bucket *TokenBucket, rate float64, burst int) *BucketLimiter {
	return &BucketLimiter{
		bucket: bucket,
		prefix: defaultPrefix,
		rate:   rate,
		burst:  burst,
	}
}

func (l *BucketLimiter) Allow(ctx context.Context, key string) (*Result, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrEmptyKey
	}
	return l.bucket.Allow(ctx, l.prefix+key, l.rate, l.burst)
}

// Unlimited lets every request through.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (*Result, error) {
	return &Result{Allowed: true}, nil
}
