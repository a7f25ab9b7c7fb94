package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/identity"
	"gorm.io/gorm"
)

type Service interface {
	WithTx(tx *gorm.DB) Service
	// Register creates the user, its private realm and the buyer membership
	// in one transaction.
	Register(ctx context.Context, req RegisterRequest) (*User, error)
	Get(ctx context.Context, id snowflake.ID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	SetRole(ctx context.Context, id snowflake.ID, role Role) error
	// SyncRole recomputes the cached role from memberships.
	SyncRole(ctx context.Context, id snowflake.ID) (Role, error)
	Principal(ctx context.Context, id snowflake.ID) (*identity.Principal, error)
}

type RegisterRequest struct {
	Email string
	Name  string
}

var (
	ErrNotFound     = errors.New("user_not_found")
	ErrEmailTaken   = errors.New("email_taken")
	ErrInvalidEmail = errors.New("invalid_email")
	ErrInvalidName  = errors.New("invalid_name")
	ErrInvalidRole  = errors.New("invalid_role")
)
