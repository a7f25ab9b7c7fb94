// Package option holds composable gorm query options restricted to indexed
// columns.
package option

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type QueryOptionFunc func(db *gorm.DB) *gorm.DB

func (f QueryOptionFunc) Apply(db *gorm.DB) *gorm.DB { return f(db) }

// Column returns the indexed column the option filters on, if any.
type Column interface {
	Column() string
}

type columnOption struct {
	column string
	value  any
}

func (o columnOption) Apply(db *gorm.DB) *gorm.DB {
	return db.Where(fmt.Sprintf("%s = ?", o.column), o.value)
}

func (o columnOption) Column() string { return o.column }

func WithRealmID(realmID string) QueryOption {
	return columnOption{column: "realm_id", value: strings.TrimSpace(realmID)}
}

func WithOwnerUserID(userID int64) QueryOption {
	return columnOption{column: "owner_user_id", value: userID}
}

func WithVendorID(storeID int64) QueryOption {
	return columnOption{column: "vendor_id", value: storeID}
}

func WithUserID(userID int64) QueryOption {
	return columnOption{column: "user_id", value: userID}
}

// WithCategory filters products through the product_categories index table.
func WithCategory(category string) QueryOption {
	return categoryOption{category: strings.ToLower(strings.TrimSpace(category))}
}

type categoryOption struct {
	category string
}

func (o categoryOption) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("id IN (?)", db.Session(&gorm.Session{NewDB: true}).
		Table("product_categories").
		Select("product_id").
		Where("category = ?", o.category))
}

func (o categoryOption) Column() string { return "category" }

// WithAfterID applies keyset pagination over time-ordered ids.
func WithAfterID(id int64) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if id <= 0 {
			return db
		}
		return db.Where("id > ?", id)
	})
}

func WithLimit(limit int) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithSortBy(column string, desc bool) QueryOption {
	return QueryOptionFunc(func(db *gorm.DB) *gorm.DB {
		column = strings.TrimSpace(column)
		if column == "" {
			column = "id"
		}
		direction := "ASC"
		if desc {
			direction = "DESC"
		}
		return db.Order(fmt.Sprintf("%s %s", column, direction))
	})
}
