package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, realm Realm) error
	FindByID(ctx context.Context, realmID string) (*Realm, error)
	FindByIDs(ctx context.Context, realmIDs []string) ([]Realm, error)
	ListByOwner(ctx context.Context, ownerUserID snowflake.ID) ([]Realm, error)
	Delete(ctx context.Context, realmID string) (bool, error)
}
