package logger

import (
	"context"
	"testing"

	"github.com/smallbiznis/bazaar/internal/observability/obscontext"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsCorrelationFields(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	ctx := obscontext.WithRequestID(context.Background(), "req-9")
	ctx = obscontext.WithRealmID(ctx, "user/7")
	ctx = obscontext.WithActor(ctx, "user", "7")

	WithContext(ctx, base).Info("hello")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "req-9", fields["request_id"])
		assert.Equal(t, "user/7", fields["realm_id"])
		assert.Equal(t, "user", fields["actor_type"])
		assert.Equal(t, "7", fields["actor_id"])
	}
}

func TestWithContextWithoutFieldsReturnsBase(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	base := zap.New(core)

	WithContext(context.Background(), base).Info("plain")

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Empty(t, entries[0].ContextMap())
	}
}

func TestOperationAndTableFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from realms where id = ?"))
	assert.Equal(t, "realms", tableFromSQL("select * from realms where id = ?"))
	assert.Equal(t, "members", tableFromSQL(`INSERT INTO "members" ("id") VALUES (?)`))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}
