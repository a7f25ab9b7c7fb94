package ratelimit

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bazaar/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
)

func NewLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Limiter {
	log = log.Named("ratelimit")
	if !cfg.RateLimitEnabled {
		log.Info("rate limiting disabled")
		return Unlimited{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	log.Info("rate limiting enabled",
		zap.String("addr", cfg.RedisAddr),
		zap.Float64("rate", cfg.RateLimitRate),
		zap.Int("burst", cfg.RateLimitBurst),
	)
	return NewBucketLimiter(NewTokenBucket(client), cfg.RateLimitRate, cfg.RateLimitBurst)
}
