package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setup(t *testing.T) (Publisher, *gorm.DB, *clock.FakeClock) {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&Event{}))
	clk := clock.NewFakeClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	return NewPublisher(Params{DB: conn, Clock: clk}), conn, clk
}

func TestPublishAndDrain(t *testing.T) {
	pub, _, clk := setup(t)
	ctx := context.Background()

	first, err := pub.Publish(ctx, TopicEntityCreated, "shop/a", map[string]string{"entity_type": "product"})
	require.NoError(t, err)
	clk.Advance(time.Second)
	second, err := pub.Publish(ctx, TopicEntityUpdated, "shop/a", map[string]string{"entity_type": "product"})
	require.NoError(t, err)
	assert.Len(t, first.ID, 26)

	pending, err := pub.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first.ID, pending[0].ID)
	assert.Equal(t, second.ID, pending[1].ID)

	var payload map[string]string
	require.NoError(t, json.Unmarshal(pending[0].Payload, &payload))
	assert.Equal(t, "product", payload["entity_type"])

	require.NoError(t, pub.MarkPublished(ctx, first.ID))
	pending, err = pub.Pending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)
}

func TestPublishRollsBackWithTransaction(t *testing.T) {
	pub, conn, _ := setup(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := pub.WithTx(tx).Publish(ctx, TopicEntityDeleted, "shop/a", nil); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	pending, err := pub.Pending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
