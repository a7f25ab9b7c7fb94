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
	"gorm.io/gorm"
)

type Orders struct {
	col   *Collection[domain.Order]
	genID *snowflake.Node
	clock clock.Clock
}

type OrderPatch struct {
	Status  *domain.OrderStatus
	Total   *int64
	RealmID *string
}

func newOrders(d deps, p Params) *Orders {
	return &Orders{
		col: newCollection(d, collectionConfig[domain.Order]{
			entityType: authorization.EntityOrder,
			validate:   validateOrder,
			indexed:    []string{"user_id"},
		}),
		genID: p.GenID,
		clock: p.Clock,
	}
}

func (o *Orders) WithTx(tx *gorm.DB) *Orders {
	clone := *o
	clone.col = o.col.WithTx(tx)
	return &clone
}

func (o *Orders) Add(ctx context.Context, scope Scope, order domain.Order) (*domain.Order, error) {
	if order.ID == 0 {
		order.ID = o.genID.Generate()
	}
	if order.UserID == 0 && scope.Principal != nil && !scope.Principal.IsSystem() {
		order.UserID = scope.Principal.UserID
	}
	if strings.TrimSpace(order.RealmID) == "" && order.UserID != 0 {
		order.RealmID = realmdomain.UserRealmID(order.UserID)
	}
	if order.Status == "" {
		order.Status = domain.OrderPending
	}
	now := o.clock.Now()
	order.CreatedAt = now
	order.UpdatedAt = now
	return o.col.Add(ctx, scope, &order)
}

func (o *Orders) Get(ctx context.Context, principal *identity.Principal, id int64) (*domain.Order, error) {
	return o.col.Get(ctx, principal, id)
}

func (o *Orders) Update(ctx context.Context, scope Scope, id int64, patch OrderPatch) (*domain.Order, error) {
	return o.col.Update(ctx, scope, id, func(order *domain.Order) error {
		if patch.Status != nil {
			order.Status = *patch.Status
		}
		if patch.Total != nil {
			order.Total = *patch.Total
		}
		if patch.RealmID != nil {
			order.RealmID = strings.TrimSpace(*patch.RealmID)
		}
		order.UpdatedAt = o.clock.Now()
		return nil
	})
}

func (o *Orders) Delete(ctx context.Context, scope Scope, id int64) error {
	return o.col.Delete(ctx, scope, id)
}

func (o *Orders) Query(ctx context.Context, principal *identity.Principal, realmID string, opts ...option.QueryOption) ([]domain.Order, error) {
	return o.col.Query(ctx, principal, realmID, opts...)
}

func validateOrder(_ context.Context, _ *gorm.DB, _ authorization.Operation, order *domain.Order) error {
	if err := requireRealmType(order.RealmID, realmdomain.TypeUser); err != nil {
		return err
	}
	if order.UserID == 0 {
		return domain.Invalid("user_id", domain.CodeRequired)
	}
	if order.RealmID != realmdomain.UserRealmID(order.UserID) {
		return domain.Invalid("user_id", domain.CodeInvalid)
	}
	if !order.Status.Valid() {
		return domain.Invalid("status", domain.CodeInvalid)
	}
	if order.Total < 0 {
		return domain.Invalid("total", domain.CodeNegative)
	}
	return nil
}
