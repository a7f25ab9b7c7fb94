package lock

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bazaar/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(NewLocal),
	fx.Provide(NewLocker),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Local     *Local
}

// NewLocker selects the onboarding lock backend from config.
func NewLocker(p Params) Locker {
	log := p.Log.Named("lock")
	if !strings.EqualFold(p.Config.LockBackend, config.LockBackendRedis) {
		log.Info("using in-process lock backend")
		return p.Local
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Config.RedisAddr,
		Password: p.Config.RedisPassword,
		DB:       p.Config.RedisDB,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	log.Info("using redis lock backend", zap.String("addr", p.Config.RedisAddr))
	return NewRedis(client, "bazaar:lock:")
}
