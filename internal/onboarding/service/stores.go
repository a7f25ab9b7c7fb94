package service

import (
	"context"

	"github.com/smallbiznis/bazaar/internal/entity"
	entitydomain "github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/identity"
	"gorm.io/gorm"
)

// StoreWriter creates and removes the store row of a shop realm inside the
// onboarding transaction.
type StoreWriter interface {
	CreateStore(ctx context.Context, tx *gorm.DB, store entitydomain.Store) (*entitydomain.Store, error)
	RemoveStore(ctx context.Context, tx *gorm.DB, id int64) error
}

type entityStores struct {
	stores *entity.Stores
}

// NewStoreWriter writes stores through the entity store as the system
// principal. The workflow has already checked the caller.
func NewStoreWriter(store *entity.Store) StoreWriter {
	return entityStores{stores: store.Stores}
}

func (w entityStores) CreateStore(ctx context.Context, tx *gorm.DB, store entitydomain.Store) (*entitydomain.Store, error) {
	return w.stores.WithTx(tx).Add(ctx, entity.Scope{Principal: identity.System}, store)
}

func (w entityStores) RemoveStore(ctx context.Context, tx *gorm.DB, id int64) error {
	return w.stores.WithTx(tx).Delete(ctx, entity.Scope{Principal: identity.System}, id)
}
