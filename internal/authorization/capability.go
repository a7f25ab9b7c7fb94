package authorization

import (
	"fmt"
	"strings"

	membershipdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
)

// Capability is a bitset over the four entity operations.
type Capability uint8

const (
	Create Capability = 1 << iota
	Read
	Update
	Delete

	None Capability = 0
	CRUD            = Create | Read | Update | Delete
)

// Operation is a single-bit Capability.
type Operation = Capability

var operations = []Operation{Create, Read, Update, Delete}

// IsOperation reports whether c is exactly one operation bit.
func (c Capability) IsOperation() bool {
	for _, op := range operations {
		if c == op {
			return true
		}
	}
	return false
}

func (c Capability) Has(op Operation) bool {
	return op != None && c&op == op
}

// Letters renders the set as a fixed-width "CRUD" string with '-' for gaps.
func (c Capability) Letters() string {
	letters := []byte("CRUD")
	for i, op := range operations {
		if !c.Has(op) {
			letters[i] = '-'
		}
	}
	return string(letters)
}

func (c Capability) String() string {
	switch c {
	case Create:
		return "create"
	case Read:
		return "read"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return c.Letters()
	}
}

// ParseOperation accepts create, read, update or delete.
func ParseOperation(raw string) (Operation, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "create":
		return Create, nil
	case "read":
		return Read, nil
	case "update":
		return Update, nil
	case "delete":
		return Delete, nil
	default:
		return None, fmt.Errorf("%w: %q", ErrInvalidOperation, raw)
	}
}

type EntityType string

const (
	EntityProduct  EntityType = "product"
	EntityStore    EntityType = "store"
	EntityMember   EntityType = "member"
	EntityRealm    EntityType = "realm"
	EntityUser     EntityType = "user"
	EntityCartItem EntityType = "cart_item"
	EntityOrder    EntityType = "order"
)

var EntityTypes = []EntityType{
	EntityProduct,
	EntityStore,
	EntityMember,
	EntityRealm,
	EntityUser,
	EntityCartItem,
	EntityOrder,
}

func ParseEntityType(raw string) (EntityType, error) {
	t := EntityType(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range EntityTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidObject, raw)
}

// Grants maps entity types to the capabilities a subject holds on them.
type Grants map[EntityType]Capability

// Table is the static capability table: role grants per realm type and the
// public (membership-free) grants per realm type.
type Table struct {
	Roles  map[realmdomain.Type]map[membershipdomain.Role]Grants
	Public map[realmdomain.Type]Grants
}

// DefaultTable is the marketplace capability table.
var DefaultTable = Table{
	Roles: map[realmdomain.Type]map[membershipdomain.Role]Grants{
		realmdomain.TypeShop: {
			membershipdomain.RoleVendor: {
				EntityProduct: CRUD,
				EntityStore:   CRUD,
				EntityOrder:   Read,
				EntityMember:  Read,
				EntityRealm:   Read,
			},
		},
		realmdomain.TypeUser: {
			membershipdomain.RoleBuyer: {
				EntityCartItem: CRUD,
				EntityOrder:    CRUD,
				EntityProduct:  Read,
				EntityStore:    Read,
				EntityUser:     Read | Update,
				EntityMember:   Read,
				EntityRealm:    Read,
			},
		},
	},
	Public: map[realmdomain.Type]Grants{
		realmdomain.TypeShop: {
			EntityProduct: Read,
			EntityStore:   Read,
		},
	},
}

// Validate rejects any public grant other than Read.
func (t Table) Validate() error {
	for realmType, grants := range t.Public {
		for entity, caps := range grants {
			if caps&^Read != None {
				return fmt.Errorf("%w: %s/%s grants %s", ErrPublicWrite, realmType, entity, caps.Letters())
			}
		}
	}
	for realmType, roles := range t.Roles {
		if !realmType.Valid() {
			return fmt.Errorf("%w: realm type %q", ErrInvalidTable, realmType)
		}
		for role := range roles {
			if !role.Valid() {
				return fmt.Errorf("%w: role %q", ErrInvalidTable, role)
			}
		}
	}
	return nil
}

const publicSubject = "public"

func roleSubject(role membershipdomain.Role) string {
	return "role:" + string(role)
}

func realmDomain(t realmdomain.Type) string {
	return "realm:" + string(t)
}

// Policies flattens the table into casbin rows (sub, dom, obj, act).
func (t Table) Policies() [][]string {
	var rows [][]string
	add := func(sub string, realmType realmdomain.Type, grants Grants) {
		for _, entity := range EntityTypes {
			caps := grants[entity]
			for _, op := range operations {
				if caps.Has(op) {
					rows = append(rows, []string{sub, realmDomain(realmType), string(entity), op.String()})
				}
			}
		}
	}
	for _, realmType := range []realmdomain.Type{realmdomain.TypeShop, realmdomain.TypeUser} {
		for _, role := range []membershipdomain.Role{membershipdomain.RoleVendor, membershipdomain.RoleBuyer} {
			if grants, ok := t.Roles[realmType][role]; ok {
				add(roleSubject(role), realmType, grants)
			}
		}
		if grants, ok := t.Public[realmType]; ok {
			add(publicSubject, realmType, grants)
		}
	}
	return rows
}
