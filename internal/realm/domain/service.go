package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// WithTx returns a service bound to tx. Bound services bypass the cache.
	WithTx(tx *gorm.DB) Service
	Create(ctx context.Context, req CreateRequest) (*Realm, error)
	Get(ctx context.Context, realmID string) (*Realm, error)
	ListByOwner(ctx context.Context, ownerUserID snowflake.ID) ([]Realm, error)
	ListByIDs(ctx context.Context, realmIDs []string) ([]Realm, error)
	// Delete removes a realm. It exists for workflow compensation only.
	Delete(ctx context.Context, realmID string) error
}

type CreateRequest struct {
	Type        Type
	Name        string
	OwnerUserID snowflake.ID
}

var (
	ErrNotFound       = errors.New("realm_not_found")
	ErrDuplicateRealm = errors.New("duplicate_realm")
	ErrInvalidType    = errors.New("invalid_realm_type")
	ErrInvalidName    = errors.New("invalid_realm_name")
	ErrInvalidOwner   = errors.New("invalid_realm_owner")
)
