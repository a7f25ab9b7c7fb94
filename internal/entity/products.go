package entity

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/identity"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	"github.com/smallbiznis/bazaar/pkg/db/option"
	"github.com/smallbiznis/bazaar/pkg/repository"
	"gorm.io/gorm"
)

type Products struct {
	col     *Collection[domain.Product]
	members memberdomain.Service
	genID   *snowflake.Node
	clock   clock.Clock
}

// ProductPatch holds the fields an update may set. Nil fields are left as is.
type ProductPatch struct {
	Name        *string
	Description *string
	Image       *string
	Price       *int64
	Stock       *int64
	Categories  *[]string
	RealmID     *string
}

func newProducts(d deps, p Params) *Products {
	products := &Products{members: p.Members, genID: p.GenID, clock: p.Clock}
	products.col = newCollection(d, collectionConfig[domain.Product]{
		entityType: authorization.EntityProduct,
		validate:   products.validate,
		indexed:    []string{"owner_user_id", "vendor_id", "category"},
		publicRead: true,
	})
	return products
}

func (p *Products) WithTx(tx *gorm.DB) *Products {
	clone := *p
	clone.col = p.col.WithTx(tx)
	return &clone
}

// Add creates a product. The owner defaults to the acting user.
func (p *Products) Add(ctx context.Context, scope Scope, product domain.Product) (*domain.Product, error) {
	if product.ID == 0 {
		product.ID = p.genID.Generate()
	}
	if product.OwnerUserID == 0 && scope.Principal != nil && !scope.Principal.IsSystem() {
		product.OwnerUserID = scope.Principal.UserID
	}
	product.Name = strings.TrimSpace(product.Name)
	product.Categories = domain.NormalizeCategories(product.Categories)
	now := p.clock.Now()
	product.CreatedAt = now
	product.UpdatedAt = now
	return p.col.Add(ctx, scope, &product)
}

func (p *Products) Get(ctx context.Context, principal *identity.Principal, id int64) (*domain.Product, error) {
	return p.col.Get(ctx, principal, id)
}

func (p *Products) Update(ctx context.Context, scope Scope, id int64, patch ProductPatch) (*domain.Product, error) {
	return p.col.Update(ctx, scope, id, func(product *domain.Product) error {
		if patch.Name != nil {
			product.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			product.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Image != nil {
			product.Image = strings.TrimSpace(*patch.Image)
		}
		if patch.Price != nil {
			product.Price = *patch.Price
		}
		if patch.Stock != nil {
			product.Stock = *patch.Stock
		}
		if patch.Categories != nil {
			product.Categories = domain.NormalizeCategories(*patch.Categories)
		}
		if patch.RealmID != nil {
			product.RealmID = strings.TrimSpace(*patch.RealmID)
		}
		product.UpdatedAt = p.clock.Now()
		return nil
	})
}

func (p *Products) Delete(ctx context.Context, scope Scope, id int64) error {
	return p.col.Delete(ctx, scope, id)
}

// Query lists products of a realm, or of every shop when realmID is empty.
func (p *Products) Query(ctx context.Context, principal *identity.Principal, realmID string, opts ...option.QueryOption) ([]domain.Product, error) {
	return p.col.Query(ctx, principal, realmID, opts...)
}

func (p *Products) validate(ctx context.Context, tx *gorm.DB, _ authorization.Operation, product *domain.Product) error {
	if product.Name == "" {
		return domain.Invalid("name", domain.CodeRequired)
	}
	if product.Price < 0 {
		return domain.Invalid("price", domain.CodeNegative)
	}
	if product.Stock < 0 {
		return domain.Invalid("stock", domain.CodeNegative)
	}
	if err := requireRealmType(product.RealmID, realmdomain.TypeShop); err != nil {
		return err
	}
	if product.OwnerUserID == 0 {
		return domain.Invalid("owner_user_id", domain.CodeRequired)
	}

	roles, err := p.members.WithTx(tx).RolesOf(ctx, product.OwnerUserID, product.RealmID)
	if err != nil {
		return err
	}
	if !roles.Has(memberdomain.RoleVendor) {
		return domain.Invalid("owner_user_id", domain.CodeNotVendor)
	}

	if product.VendorID == 0 {
		return domain.Invalid("vendor_id", domain.CodeRequired)
	}
	store, err := repository.ProvideStore[domain.Store](tx).FindByID(ctx, product.VendorID.Int64())
	if err != nil {
		return err
	}
	if store == nil || store.RealmID != product.RealmID {
		return domain.Invalid("vendor_id", domain.CodeNotFound)
	}
	return nil
}
