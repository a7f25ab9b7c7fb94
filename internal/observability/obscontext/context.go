// Package obscontext carries request-scoped identifiers used by logs and
// traces.
package obscontext

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type realmIDKey struct{}
type actorKey struct{}

type actor struct {
	typ string
	id  string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func WithRealmID(ctx context.Context, realmID string) context.Context {
	realmID = strings.TrimSpace(realmID)
	if realmID == "" {
		return ctx
	}
	return context.WithValue(ctx, realmIDKey{}, realmID)
}

func RealmIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(realmIDKey{}).(string)
	return value
}

func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{typ: strings.TrimSpace(actorType), id: strings.TrimSpace(actorID)})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.typ, value.id
}
