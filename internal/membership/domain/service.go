package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	"gorm.io/gorm"
)

type Service interface {
	WithTx(tx *gorm.DB) Service
	// Grant is idempotent per (realm, user): the role is added to the
	// existing row's set.
	Grant(ctx context.Context, req GrantRequest) (*Member, error)
	RolesOf(ctx context.Context, userID snowflake.ID, realmID string) (RoleSet, error)
	RealmsOf(ctx context.Context, userID snowflake.ID, roleFilter Role) ([]realmdomain.Realm, error)
	Get(ctx context.Context, realmID string, userID snowflake.ID) (*Member, error)
	ListByRealm(ctx context.Context, realmID string) ([]Member, error)
	// Revoke removes a role and deletes the row once no role remains.
	Revoke(ctx context.Context, realmID string, userID snowflake.ID, role Role) error
}

type Profile struct {
	Email string
	Name  string
}

type GrantRequest struct {
	RealmID string
	UserID  snowflake.ID
	Role    Role
	Profile Profile
}

var (
	ErrNotFound     = errors.New("member_not_found")
	ErrInvalidRole  = errors.New("invalid_role")
	ErrInvalidUser  = errors.New("invalid_user")
	ErrInvalidRealm = errors.New("invalid_realm")
)
