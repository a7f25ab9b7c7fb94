package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	// InsertIgnore inserts m unless a row for (realm_id, user_id) exists.
	InsertIgnore(ctx context.Context, m *Member) error
	Find(ctx context.Context, realmID string, userID snowflake.ID) (*Member, error)
	// FindForUpdate is Find holding a row lock until the transaction ends.
	FindForUpdate(ctx context.Context, realmID string, userID snowflake.ID) (*Member, error)
	FindByID(ctx context.Context, id snowflake.ID) (*Member, error)
	ListByUser(ctx context.Context, userID snowflake.ID) ([]Member, error)
	ListByRealm(ctx context.Context, realmID string) ([]Member, error)
	Update(ctx context.Context, m *Member) error
	Delete(ctx context.Context, id snowflake.ID) error
}
