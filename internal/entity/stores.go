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
	"github.com/smallbiznis/bazaar/pkg/db"
	"github.com/smallbiznis/bazaar/pkg/db/option"
	"gorm.io/gorm"
)

type Stores struct {
	col   *Collection[domain.Store]
	genID *snowflake.Node
	clock clock.Clock
}

type StorePatch struct {
	Name        *string
	Description *string
	Image       *string
	RealmID     *string
}

func newStores(d deps, p Params) *Stores {
	stores := &Stores{genID: p.GenID, clock: p.Clock}
	stores.col = newCollection(d, collectionConfig[domain.Store]{
		entityType: authorization.EntityStore,
		validate:   validateStore,
		indexed:    []string{"owner_user_id"},
		publicRead: true,
	})
	return stores
}

func (s *Stores) WithTx(tx *gorm.DB) *Stores {
	clone := *s
	clone.col = s.col.WithTx(tx)
	return &clone
}

// Add creates the store of a shop realm. A realm holds at most one store.
func (s *Stores) Add(ctx context.Context, scope Scope, store domain.Store) (*domain.Store, error) {
	if store.ID == 0 {
		store.ID = s.genID.Generate()
	}
	if store.OwnerUserID == 0 && scope.Principal != nil && !scope.Principal.IsSystem() {
		store.OwnerUserID = scope.Principal.UserID
	}
	store.Name = strings.TrimSpace(store.Name)
	store.Description = strings.TrimSpace(store.Description)
	store.Image = strings.TrimSpace(store.Image)
	now := s.clock.Now()
	store.CreatedAt = now
	store.UpdatedAt = now

	created, err := s.col.Add(ctx, scope, &store)
	if err != nil && db.IsDuplicateKeyErr(err) {
		return nil, domain.ErrDuplicateStore
	}
	return created, err
}

func (s *Stores) Get(ctx context.Context, principal *identity.Principal, id int64) (*domain.Store, error) {
	return s.col.Get(ctx, principal, id)
}

// ByRealm returns the store of a shop realm.
func (s *Stores) ByRealm(ctx context.Context, principal *identity.Principal, realmID string) (*domain.Store, error) {
	rows, err := s.col.Query(ctx, principal, realmID, option.WithLimit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func (s *Stores) Update(ctx context.Context, scope Scope, id int64, patch StorePatch) (*domain.Store, error) {
	return s.col.Update(ctx, scope, id, func(store *domain.Store) error {
		if patch.Name != nil {
			store.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Description != nil {
			store.Description = strings.TrimSpace(*patch.Description)
		}
		if patch.Image != nil {
			store.Image = strings.TrimSpace(*patch.Image)
		}
		if patch.RealmID != nil {
			store.RealmID = strings.TrimSpace(*patch.RealmID)
		}
		store.UpdatedAt = s.clock.Now()
		return nil
	})
}

func (s *Stores) Delete(ctx context.Context, scope Scope, id int64) error {
	return s.col.Delete(ctx, scope, id)
}

func (s *Stores) Query(ctx context.Context, principal *identity.Principal, realmID string, opts ...option.QueryOption) ([]domain.Store, error) {
	return s.col.Query(ctx, principal, realmID, opts...)
}

func validateStore(ctx context.Context, tx *gorm.DB, op authorization.Operation, store *domain.Store) error {
	if store.Name == "" {
		return domain.Invalid("name", domain.CodeRequired)
	}
	if err := requireRealmType(store.RealmID, realmdomain.TypeShop); err != nil {
		return err
	}
	if store.OwnerUserID == 0 {
		return domain.Invalid("owner_user_id", domain.CodeRequired)
	}
	if op != authorization.Create {
		return nil
	}
	var existing int64
	if err := tx.WithContext(ctx).Model(&domain.Store{}).Where("realm_id = ?", store.RealmID).Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return domain.ErrDuplicateStore
	}
	return nil
}
