package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("realm_type", "shop"),
		attribute.String("realm_id", "shop/fashion-store"),
		attribute.String("entity_type", "product"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "realm_id" {
			t.Fatalf("expected realm_id to be dropped")
		}
	}
}

func TestRecordAuthorizationCountsDecisions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := New(Config{ServiceName: "bazaar-test"}, provider)
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordAuthorization(ctx, "shop", "product", "create", true, "")
	m.RecordAuthorization(ctx, "shop", "product", "create", false, "not_a_member")
	m.RecordLockWait(ctx, "local", 5*time.Millisecond)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, md := range scope.Metrics {
			if md.Name != "bazaar_authorization_decisions_total" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	assert.Equal(t, int64(2), total)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordAuthorization(context.Background(), "shop", "product", "read", true, "")
	m.RecordEntityMutation(context.Background(), "product", "create")
}
