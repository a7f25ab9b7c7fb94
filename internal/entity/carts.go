package entity

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/identity"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	"github.com/smallbiznis/bazaar/pkg/db/option"
	"github.com/smallbiznis/bazaar/pkg/repository"
	"gorm.io/gorm"
)

type CartItems struct {
	col   *Collection[domain.CartItem]
	genID *snowflake.Node
	clock clock.Clock
}

type CartItemPatch struct {
	Quantity *int
	RealmID  *string
}

func newCartItems(d deps, p Params) *CartItems {
	return &CartItems{
		col: newCollection(d, collectionConfig[domain.CartItem]{
			entityType: authorization.EntityCartItem,
			validate:   validateCartItem,
			indexed:    []string{"user_id"},
		}),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (c *CartItems) WithTx(tx *gorm.DB) *CartItems {
	clone := *c
	clone.col = c.col.WithTx(tx)
	return &clone
}

// Add puts a product in the acting user's cart. The item lives in the
// user's private realm.
func (c *CartItems) Add(ctx context.Context, scope Scope, item domain.CartItem) (*domain.CartItem, error) {
	if item.ID == 0 {
		item.ID = c.genID.Generate()
	}
	if item.UserID == 0 && scope.Principal != nil && !scope.Principal.IsSystem() {
		item.UserID = scope.Principal.UserID
	}
	if strings.TrimSpace(item.RealmID) == "" && item.UserID != 0 {
		item.RealmID = realmdomain.UserRealmID(item.UserID)
	}
	now := c.clock.Now()
	item.CreatedAt = now
	item.UpdatedAt = now
	return c.col.Add(ctx, scope, &item)
}

func (c *CartItems) Get(ctx context.Context, principal *identity.Principal, id int64) (*domain.CartItem, error) {
	return c.col.Get(ctx, principal, id)
}

func (c *CartItems) Update(ctx context.Context, scope Scope, id int64, patch CartItemPatch) (*domain.CartItem, error) {
	return c.col.Update(ctx, scope, id, func(item *domain.CartItem) error {
		if patch.Quantity != nil {
			item.Quantity = *patch.Quantity
		}
		if patch.RealmID != nil {
			item.RealmID = strings.TrimSpace(*patch.RealmID)
		}
		item.UpdatedAt = c.clock.Now()
		return nil
	})
}

func (c *CartItems) Delete(ctx context.Context, scope Scope, id int64) error {
	return c.col.Delete(ctx, scope, id)
}

func (c *CartItems) Query(ctx context.Context, principal *identity.Principal, realmID string, opts ...option.QueryOption) ([]domain.CartItem, error) {
	return c.col.Query(ctx, principal, realmID, opts...)
}

func validateCartItem(ctx context.Context, tx *gorm.DB, _ authorization.Operation, item *domain.CartItem) error {
	if err := requireRealmType(item.RealmID, realmdomain.TypeUser); err != nil {
		return err
	}
	if item.UserID == 0 {
		return domain.Invalid("user_id", domain.CodeRequired)
	}
	if item.RealmID != realmdomain.UserRealmID(item.UserID) {
		return domain.Invalid("user_id", domain.CodeInvalid)
	}
	if item.Quantity < 1 {
		return domain.Invalid("quantity", domain.CodeTooSmall)
	}
	if item.ProductID == 0 {
		return domain.Invalid("product_id", domain.CodeRequired)
	}
	product, err := repository.ProvideStore[domain.Product](tx).FindByID(ctx, item.ProductID.Int64())
	if err != nil {
		return err
	}
	if product == nil {
		return domain.Invalid("product_id", domain.CodeNotFound)
	}
	return nil
}
