package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	authzDecisions   metric.Int64Counter
	entityMutations  metric.Int64Counter
	realmsCreated    metric.Int64Counter
	outboxPublished  metric.Int64Counter
	lockWaitDuration metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "bazaar"
	}
	meter := provider.Meter(name)

	authzDecisions, err := meter.Int64Counter("bazaar_authorization_decisions_total")
	if err != nil {
		return nil, err
	}
	entityMutations, err := meter.Int64Counter("bazaar_entity_mutations_total")
	if err != nil {
		return nil, err
	}
	realmsCreated, err := meter.Int64Counter("bazaar_realms_created_total")
	if err != nil {
		return nil, err
	}
	outboxPublished, err := meter.Int64Counter("bazaar_outbox_events_total")
	if err != nil {
		return nil, err
	}
	lockWaitDuration, err := meter.Float64Histogram("bazaar_lock_wait_seconds", metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		authzDecisions:   authzDecisions,
		entityMutations:  entityMutations,
		realmsCreated:    realmsCreated,
		outboxPublished:  outboxPublished,
		lockWaitDuration: lockWaitDuration,
	}, nil
}

// RecordAuthorization counts one policy decision.
func (m *Metrics) RecordAuthorization(ctx context.Context, realmType, entityType, op string, allowed bool, reason string) {
	if m == nil {
		return
	}
	decision := "allow"
	if !allowed {
		decision = "deny"
	}
	attrs := FilterAttributes(
		attribute.String("realm_type", strings.TrimSpace(realmType)),
		attribute.String("entity_type", strings.TrimSpace(entityType)),
		attribute.String("operation", strings.TrimSpace(op)),
		attribute.String("decision", decision),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.authzDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordEntityMutation counts a committed entity write.
func (m *Metrics) RecordEntityMutation(ctx context.Context, entityType, op string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("entity_type", strings.TrimSpace(entityType)),
		attribute.String("operation", strings.TrimSpace(op)),
	)
	m.entityMutations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRealmCreated counts realm creations by type.
func (m *Metrics) RecordRealmCreated(ctx context.Context, realmType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("realm_type", strings.TrimSpace(realmType)))
	m.realmsCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordOutboxEvent counts events written to the outbox.
func (m *Metrics) RecordOutboxEvent(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event_type", strings.TrimSpace(eventType)))
	m.outboxPublished.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordLockWait observes how long a caller waited for a keyed lock.
func (m *Metrics) RecordLockWait(ctx context.Context, backend string, wait time.Duration) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("backend", strings.TrimSpace(backend)))
	m.lockWaitDuration.Record(ctx, wait.Seconds(), metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// Realm ids and user ids are deliberately absent.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"realm_type":  {},
	"entity_type": {},
	"operation":   {},
	"decision":    {},
	"reason":      {},
	"event_type":  {},
	"backend":     {},
	"status_code": {},
	"endpoint":    {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
