package ratelimit

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const tokenBucketScript = `
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local nowData = redis.call("TIME")
local now = (nowData[1] * 1000) + math.floor(nowData[2] / 1000)

local data = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if tokens == nil then
  tokens = burst
  ts = now
else
  local delta = now - ts
  if delta < 0 then
    delta = 0
  end
  tokens = math.min(burst, tokens + (delta / 1000) * rate)
  ts = now
end

local allowed = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
end

redis.call("HMSET", KEYS[1], "tokens", tokens, "ts", ts)
redis.call("PEXPIRE", KEYS[1], ttl)

return {allowed, tostring(tokens), ts}
`

var (
	ErrNotConfigured = errors.New("rate_limiter_not_configured")
	ErrEmptyKey      = errors.New("rate_limiter_key_empty")
	ErrInvalidRate   = errors.New("rate_limiter_rate_invalid")
	ErrBadResponse   = errors.New("rate_limiter_bad_response")
)

// TokenBucket is a Redis-backed bucket shared by every replica.
type TokenBucket struct {
	client redis.UniversalClient
	script *redis.Script
}

type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client redis.UniversalClient) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{
		client: client,
		script: redis.NewScript(tokenBucketScript),
	}
}

func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*Result, error) {
	if t == nil || t.client == nil {
		return nil, ErrNotConfigured
	}
	if key == "" {
		return nil, ErrEmptyKey
	}
	if rate <= 0 || burst <= 0 {
		return nil, ErrInvalidRate
	}

	ttl := bucketTTL(rate, burst)
	res, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, ttl.Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	return parseResult(res, rate, burst)
}

func parseResult(res []any, rate float64, burst int) (*Result, error) {
	if len(res) < 3 {
		return nil, ErrBadResponse
	}
	allowed, ok := res[0].(int64)
	if !ok {
		return nil, ErrBadResponse
	}
	raw, ok := res[1].(string)
	if !ok {
		return nil, ErrBadResponse
	}
	tokens, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, ErrBadResponse
	}

	result := &Result{
		Allowed:   allowed == 1,
		Limit:     burst,
		Remaining: int(math.Floor(tokens)),
	}
	if !result.Allowed {
		result.RetryAfter = time.Duration((1 - tokens) / rate * float64(time.Second))
	}
	return result, nil
}

func bucketTTL(rate float64, burst int) time.Duration {
	seconds := math.Ceil((float64(burst) / rate) * 2)
	if seconds < 1 {
		seconds = 1
	}
	return time.Duration(seconds) * time.Second
}
