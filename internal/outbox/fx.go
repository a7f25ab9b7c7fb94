package outbox

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/bazaar/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("outbox",
	fx.Provide(NewPublisher),
	fx.Provide(provideSink),
	fx.Provide(NewRelay),
	fx.Invoke(runRelay),
)

func provideSink(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Sink {
	if !strings.EqualFold(cfg.OutboxSink, config.OutboxSinkRedis) {
		return NewLogSink(log)
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
	return NewRedisStreamSink(client, cfg.OutboxStream)
}

func runRelay(lc fx.Lifecycle, cfg config.Config, relay *Relay) {
	if strings.EqualFold(cfg.OutboxSink, config.OutboxSinkNone) {
		relay.log.Info("outbox relay disabled")
		return
	}

	interval := time.Duration(cfg.OutboxPollSeconds) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					if _, err := relay.ProcessPending(ctx); err != nil && ctx.Err() == nil {
						relay.log.Error("outbox poll failed", zap.Error(err))
					}
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
					}
				}
			}()
			relay.log.Info("outbox relay started",
				zap.String("sink", relay.sink.Name()),
				zap.Duration("interval", interval),
			)
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}
