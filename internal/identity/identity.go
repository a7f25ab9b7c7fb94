// Package identity defines the caller context threaded through every
// authorization and CRUD call. Credentials are verified upstream.
package identity

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Principal is the authenticated caller as reported by the identity
// collaborator. A nil *Principal is an anonymous caller.
type Principal struct {
	UserID snowflake.ID `json:"id"`
	Email  string       `json:"email"`
	Name   string       `json:"name"`
	Role   string       `json:"role"`

	system bool
}

// System is the principal used by internal workflows after they have
// performed their own guard checks.
var System = &Principal{Name: "system", system: true}

func (p *Principal) IsSystem() bool {
	return p != nil && p.system
}

func (p *Principal) IsAnonymous() bool {
	return p == nil
}

// Subject renders the principal for logs and audit fields.
func (p *Principal) Subject() (string, string) {
	switch {
	case p == nil:
		return "anonymous", ""
	case p.system:
		return "system", ""
	default:
		return "user", p.UserID.String()
	}
}

// Provider resolves the current caller.
type Provider interface {
	CurrentUser(ctx context.Context) *Principal
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	if p == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// ContextProvider reads the principal placed on the context by the transport
// layer.
type ContextProvider struct{}

func NewContextProvider() Provider {
	return ContextProvider{}
}

func (ContextProvider) CurrentUser(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
