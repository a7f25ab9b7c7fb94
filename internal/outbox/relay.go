package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 5 * time.Second
	defaultStream       = "bazaar:outbox"
)

// Sink receives drained events. Delivery must be idempotent on Event.ID since
// an event is re-sent when marking it published fails.
type Sink interface {
	Deliver(ctx context.Context, event Event) error
	Name() string
}

// LogSink writes events to the service log. It is the default when no
// replication target is configured.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log.Named("outbox.sink")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Deliver(_ context.Context, event Event) error {
	s.log.Info("outbox event",
		zap.String("event_id", event.ID),
		zap.String("topic", event.Topic),
		zap.String("realm_id", event.RealmID),
		zap.ByteString("payload", event.Payload),
	)
	return nil
}

// RedisStreamSink appends events to a Redis stream for replicas to consume.
type RedisStreamSink struct {
	client redis.UniversalClient
	stream string
}

func NewRedisStreamSink(client redis.UniversalClient, stream string) *RedisStreamSink {
	if stream == "" {
		stream = defaultStream
	}
	return &RedisStreamSink{client: client, stream: stream}
}

func (s *RedisStreamSink) Name() string { return "redis" }

func (s *RedisStreamSink) Deliver(ctx context.Context, event Event) error {
	if s.client == nil {
		return errors.New("outbox_sink_not_configured")
	}
	return s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":         event.ID,
			"topic":      event.Topic,
			"realm_id":   event.RealmID,
			"payload":    string(event.Payload),
			"created_at": event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}).Err()
}

// Relay drains pending events to a sink in id order. A failed delivery stops
// the batch so later events never overtake it.
type Relay struct {
	events    Publisher
	sink      Sink
	log       *zap.Logger
	batchSize int
}

func NewRelay(events Publisher, sink Sink, log *zap.Logger) *Relay {
	return &Relay{
		events:    events,
		sink:      sink,
		log:       log.Named("outbox.relay"),
		batchSize: defaultBatchSize,
	}
}

// ProcessPending delivers one batch and reports how many events landed.
func (r *Relay) ProcessPending(ctx context.Context) (int, error) {
	events, err := r.events.Pending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	delivered := make([]string, 0, len(events))
	var deliverErr error
	for _, event := range events {
		if err := r.sink.Deliver(ctx, event); err != nil {
			r.log.Warn("outbox delivery failed",
				zap.String("event_id", event.ID),
				zap.String("topic", event.Topic),
				zap.String("sink", r.sink.Name()),
				zap.Error(err),
			)
			deliverErr = err
			break
		}
		delivered = append(delivered, event.ID)
	}

	if err := r.events.MarkPublished(ctx, delivered...); err != nil {
		return 0, err
	}
	return len(delivered), deliverErr
}
