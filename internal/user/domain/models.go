// Package domain contains the user directory model and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
)

type Role string

const (
	RoleBuyer        Role = "buyer"
	RoleVendor       Role = "vendor"
	RoleUnregistered Role = "unregistered"
)

func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleVendor || r == RoleUnregistered
}

// User carries a cached role projection. Member rows stay authoritative.
type User struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Email     string       `gorm:"type:text;not null;uniqueIndex:ux_users_email" json:"email"`
	Name      string       `gorm:"type:text;not null" json:"name"`
	Role      Role         `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (User) TableName() string { return "users" }

func (User) EntityType() string { return "user" }

// RealmKey is the user's private realm; the row is scoped to it.
func (u User) RealmKey() string { return realmdomain.UserRealmID(u.ID) }

func (u User) Key() int64 { return u.ID.Int64() }
