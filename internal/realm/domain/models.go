// Package domain contains persistence models and contracts for realms.
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
)

type Type string

const (
	TypeUser Type = "user"
	TypeShop Type = "shop"
)

func (t Type) Valid() bool {
	return t == TypeUser || t == TypeShop
}

// Realm is a named partition of the shared tables.
type Realm struct {
	RealmID     string       `gorm:"column:realm_id;primaryKey;type:text" json:"realm_id"`
	Type        Type         `gorm:"type:text;not null;index" json:"type"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	OwnerUserID snowflake.ID `gorm:"column:owner_user_id;not null;index" json:"owner_user_id"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (Realm) TableName() string { return "realms" }

// ShopRealmID derives the deterministic shop realm id for a store name.
// It returns "" when the name has no sluggable characters.
func ShopRealmID(name string) string {
	s := slug.Make(strings.TrimSpace(name))
	if s == "" {
		return ""
	}
	return string(TypeShop) + "/" + s
}

// UserRealmID returns the private realm id of a user.
func UserRealmID(userID snowflake.ID) string {
	return fmt.Sprintf("%s/%s", TypeUser, userID.String())
}

// TypeOf extracts the realm type encoded in a realm id.
func TypeOf(realmID string) (Type, bool) {
	prefix, _, ok := strings.Cut(realmID, "/")
	if !ok {
		return "", false
	}
	t := Type(prefix)
	return t, t.Valid()
}

// WithSuffix returns the n-th disambiguated candidate of a realm id.
func WithSuffix(realmID string, n int) string {
	if n <= 1 {
		return realmID
	}
	return fmt.Sprintf("%s-%d", realmID, n)
}
