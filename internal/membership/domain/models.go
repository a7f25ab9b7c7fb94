// Package domain contains persistence models and contracts for realm
// memberships.
package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
)

func (r Role) Valid() bool {
	return r == RoleBuyer || r == RoleVendor
}

// Member is the single row binding a user to a realm. Roles accumulate in
// that row.
type Member struct {
	ID         snowflake.ID                `gorm:"primaryKey" json:"id"`
	RealmID    string                      `gorm:"column:realm_id;type:text;not null;uniqueIndex:ux_members_realm_user,priority:1" json:"realm_id"`
	UserID     snowflake.ID                `gorm:"column:user_id;not null;index;uniqueIndex:ux_members_realm_user,priority:2" json:"user_id"`
	Roles      datatypes.JSONSlice[string] `gorm:"not null" json:"roles"`
	Email      string                      `gorm:"type:text" json:"email"`
	Name       string                      `gorm:"type:text" json:"name"`
	AcceptedAt time.Time                   `gorm:"column:accepted_at;not null" json:"accepted_at"`
	CreatedAt  time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Member) TableName() string { return "members" }

func (Member) EntityType() string { return "member" }

func (m Member) RealmKey() string { return m.RealmID }

func (m Member) Key() int64 { return m.ID.Int64() }

func (m Member) HasRole(role Role) bool {
	return slices.Contains(m.Roles, string(role))
}

// AddRole inserts role keeping the set sorted. It reports whether the set
// changed.
func (m *Member) AddRole(role Role) bool {
	if m.HasRole(role) {
		return false
	}
	roles := append(slices.Clone([]string(m.Roles)), string(role))
	slices.Sort(roles)
	m.Roles = roles
	return true
}

func (m *Member) RemoveRole(role Role) bool {
	idx := slices.Index(m.Roles, string(role))
	if idx < 0 {
		return false
	}
	m.Roles = slices.Delete(slices.Clone([]string(m.Roles)), idx, idx+1)
	return true
}

// RoleSet is an immutable set of role names.
type RoleSet []Role

func (s RoleSet) Has(role Role) bool {
	return slices.Contains(s, role)
}

func (s RoleSet) Strings() []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

func (s RoleSet) String() string {
	return strings.Join(s.Strings(), ",")
}

func RoleSetOf(m *Member) RoleSet {
	if m == nil {
		return RoleSet{}
	}
	out := make(RoleSet, 0, len(m.Roles))
	for _, r := range m.Roles {
		out = append(out, Role(r))
	}
	return out
}
