// Package domain contains the realm-tagged marketplace entities.
package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Entity is implemented by every row the store manages.
type Entity interface {
	EntityType() string
	RealmKey() string
	Key() int64
}

type Store struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	Name        string       `gorm:"type:text;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	Image       string       `gorm:"type:text" json:"image"`
	RealmID     string       `gorm:"column:realm_id;type:text;not null;uniqueIndex:ux_stores_realm" json:"realm_id"`
	OwnerUserID snowflake.ID `gorm:"column:owner_user_id;not null;index" json:"owner_user_id"`
	CreatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Store) TableName() string { return "stores" }

func (Store) EntityType() string { return "store" }

func (s Store) RealmKey() string { return s.RealmID }

func (s Store) Key() int64 { return s.ID.Int64() }

// Product prices are minor currency units.
type Product struct {
	ID          snowflake.ID                `gorm:"primaryKey" json:"id"`
	Name        string                      `gorm:"type:text;not null" json:"name"`
	Description string                      `gorm:"type:text" json:"description"`
	Price       int64                       `gorm:"not null" json:"price"`
	Stock       int64                       `gorm:"not null" json:"stock"`
	Image       string                      `gorm:"type:text" json:"image"`
	Categories  datatypes.JSONSlice[string] `json:"categories"`
	RealmID     string                      `gorm:"column:realm_id;type:text;not null;index" json:"realm_id"`
	VendorID    snowflake.ID                `gorm:"column:vendor_id;not null;index" json:"vendor_id"`
	OwnerUserID snowflake.ID                `gorm:"column:owner_user_id;not null;index" json:"owner_user_id"`
	CreatedAt   time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

func (Product) EntityType() string { return "product" }

func (p Product) RealmKey() string { return p.RealmID }

func (p Product) Key() int64 { return p.ID.Int64() }

// ProductCategory indexes products by category.
type ProductCategory struct {
	ProductID snowflake.ID `gorm:"column:product_id;primaryKey" json:"product_id"`
	Category  string       `gorm:"type:text;primaryKey;index" json:"category"`
}

func (ProductCategory) TableName() string { return "product_categories" }

// AfterSave rewrites the category index rows of the product.
func (p *Product) AfterSave(tx *gorm.DB) error {
	if err := tx.Where("product_id = ?", p.ID).Delete(&ProductCategory{}).Error; err != nil {
		return err
	}
	if len(p.Categories) == 0 {
		return nil
	}
	rows := make([]ProductCategory, 0, len(p.Categories))
	for _, c := range p.Categories {
		rows = append(rows, ProductCategory{ProductID: p.ID, Category: c})
	}
	return tx.Create(&rows).Error
}

func (p *Product) AfterDelete(tx *gorm.DB) error {
	return tx.Where("product_id = ?", p.ID).Delete(&ProductCategory{}).Error
}

// NormalizeCategories lowercases, trims and de-duplicates category names.
func NormalizeCategories(in []string) []string {
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || slices.Contains(out, c) {
			continue
		}
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

type CartItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	RealmID   string       `gorm:"column:realm_id;type:text;not null;index:ix_cart_items_realm_user,priority:1" json:"realm_id"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;index:ix_cart_items_realm_user,priority:2" json:"user_id"`
	ProductID snowflake.ID `gorm:"column:product_id;not null" json:"product_id"`
	Quantity  int          `gorm:"not null" json:"quantity"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (CartItem) TableName() string { return "cart_items" }

func (CartItem) EntityType() string { return "cart_item" }

func (c CartItem) RealmKey() string { return c.RealmID }

func (c CartItem) Key() int64 { return c.ID.Int64() }

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPlaced    OrderStatus = "placed"
	OrderCancelled OrderStatus = "cancelled"
)

func (s OrderStatus) Valid() bool {
	return s == OrderPending || s == OrderPlaced || s == OrderCancelled
}

type Order struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	RealmID   string       `gorm:"column:realm_id;type:text;not null;index:ix_orders_realm_user,priority:1" json:"realm_id"`
	UserID    snowflake.ID `gorm:"column:user_id;not null;index:ix_orders_realm_user,priority:2" json:"user_id"`
	Status    OrderStatus  `gorm:"type:text;not null" json:"status"`
	Total     int64        `gorm:"not null" json:"total"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

func (Order) EntityType() string { return "order" }

func (o Order) RealmKey() string { return o.RealmID }

func (o Order) Key() int64 { return o.ID.Int64() }
