package obscontext

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), " req-1 ")
	ctx = WithRealmID(ctx, "shop/fashion-store")
	ctx = WithActor(ctx, "user", "42")

	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected request id req-1, got %q", got)
	}
	if got := RealmIDFromContext(ctx); got != "shop/fashion-store" {
		t.Fatalf("expected realm id, got %q", got)
	}
	typ, id := ActorFromContext(ctx)
	if typ != "user" || id != "42" {
		t.Fatalf("expected user/42, got %s/%s", typ, id)
	}
}

func TestEmptyValuesAreIgnored(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	if typ, id := ActorFromContext(context.Background()); typ != "" || id != "" {
		t.Fatalf("expected no actor, got %s/%s", typ, id)
	}
}
