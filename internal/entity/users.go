package entity

import (
	"context"
	"strings"

	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/identity"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	"gorm.io/gorm"
)

// Users exposes user rows scoped to each user's private realm. Rows are
// created by registration.
type Users struct {
	col   *Collection[userdomain.User]
	clock clock.Clock
}

type UserPatch struct {
	Name *string
}

func newUsers(d deps, p Params) *Users {
	return &Users{
		col: newCollection(d, collectionConfig[userdomain.User]{
			entityType: authorization.EntityUser,
			validate:   validateUser,
		}),
		clock: p.Clock,
	}
}

func (u *Users) WithTx(tx *gorm.DB) *Users {
	clone := *u
	clone.col = u.col.WithTx(tx)
	return &clone
}

func (u *Users) Get(ctx context.Context, principal *identity.Principal, id int64) (*userdomain.User, error) {
	return u.col.Get(ctx, principal, id)
}

func (u *Users) Update(ctx context.Context, scope Scope, id int64, patch UserPatch) (*userdomain.User, error) {
	return u.col.Update(ctx, scope, id, func(user *userdomain.User) error {
		if patch.Name != nil {
			user.Name = strings.TrimSpace(*patch.Name)
		}
		user.UpdatedAt = u.clock.Now()
		return nil
	})
}

func validateUser(_ context.Context, _ *gorm.DB, _ authorization.Operation, user *userdomain.User) error {
	if user.Name == "" {
		return domain.Invalid("name", domain.CodeRequired)
	}
	return nil
}
