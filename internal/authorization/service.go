package authorization

import (
	"context"

	"github.com/smallbiznis/bazaar/internal/identity"
	"gorm.io/gorm"
)

// Request names who wants to do what, in which realm. TargetRealmID is the
// realm tag of the entity being touched; when set it must equal RealmID.
type Request struct {
	Principal     *identity.Principal
	RealmID       string
	EntityType    EntityType
	Operation     Operation
	TargetRealmID string
}

type Service interface {
	// WithTx returns a service that resolves realms and memberships through tx.
	WithTx(tx *gorm.DB) Service
	Authorize(ctx context.Context, req Request) (Decision, error)
	// Require is Authorize returning a *PermissionDeniedError on Deny.
	Require(ctx context.Context, req Request) error
	Capabilities(ctx context.Context, principal *identity.Principal, realmID string, entityType EntityType) (Capability, error)
}
