package entity

import (
	"context"

	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/identity"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	"gorm.io/gorm"
)

// Realms exposes realm rows to members.
type Realms struct {
	authz   authorization.Service
	realms  realmdomain.Service
	members memberdomain.Service
}

func newRealms(p Params) *Realms {
	return &Realms{authz: p.Authz, realms: p.Realms, members: p.Members}
}

func (r *Realms) WithTx(tx *gorm.DB) *Realms {
	return &Realms{
		authz:   r.authz.WithTx(tx),
		realms:  r.realms.WithTx(tx),
		members: r.members.WithTx(tx),
	}
}

func (r *Realms) Get(ctx context.Context, principal *identity.Principal, realmID string) (*realmdomain.Realm, error) {
	if err := r.authz.Require(ctx, authorization.Request{
		Principal:  principal,
		RealmID:    realmID,
		EntityType: authorization.EntityRealm,
		Operation:  authorization.Read,
	}); err != nil {
		return nil, err
	}
	return r.realms.Get(ctx, realmID)
}

// Mine lists the realms the principal belongs to, optionally filtered by
// role.
func (r *Realms) Mine(ctx context.Context, principal *identity.Principal, role memberdomain.Role) ([]realmdomain.Realm, error) {
	if principal == nil || principal.UserID == 0 {
		return nil, &authorization.PermissionDeniedError{
			Reason:     authorization.ReasonNotAMember,
			EntityType: authorization.EntityRealm,
			Operation:  authorization.Read,
			Anonymous:  principal == nil,
		}
	}
	return r.members.RealmsOf(ctx, principal.UserID, role)
}
