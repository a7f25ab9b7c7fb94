package entity

import (
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/lock"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	"github.com/smallbiznis/bazaar/internal/observability/metrics"
	"github.com/smallbiznis/bazaar/internal/outbox"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Authz   authorization.Service
	Realms  realmdomain.Service
	Members memberdomain.Service
	Users   userdomain.Service
	Outbox  outbox.Publisher
	Locks   *lock.Local
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

// Store groups the typed collections over the shared tables.
type Store struct {
	Products  *Products
	Stores    *Stores
	CartItems *CartItems
	Orders    *Orders
	Members   *Members
	Users     *Users
	Realms    *Realms
}

func NewStore(p Params) *Store {
	d := deps{
		db:      p.DB,
		log:     p.Log.Named("entity"),
		authz:   p.Authz,
		locks:   p.Locks,
		outbox:  p.Outbox,
		metrics: p.Metrics,
	}
	return &Store{
		Products:  newProducts(d, p),
		Stores:    newStores(d, p),
		CartItems: newCartItems(d, p),
		Orders:    newOrders(d, p),
		Members:   newMembers(d, p),
		Users:     newUsers(d, p),
		Realms:    newRealms(p),
	}
}

// WithTx binds every collection to tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{
		Products:  s.Products.WithTx(tx),
		Stores:    s.Stores.WithTx(tx),
		CartItems: s.CartItems.WithTx(tx),
		Orders:    s.Orders.WithTx(tx),
		Members:   s.Members.WithTx(tx),
		Users:     s.Users.WithTx(tx),
		Realms:    s.Realms.WithTx(tx),
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// requireRealmType checks the realm id prefix of an entity's realm tag.
func requireRealmType(realmID string, want realmdomain.Type) error {
	typ, ok := realmdomain.TypeOf(realmID)
	if !ok || typ != want {
		return domain.Invalid("realm_id", domain.CodeRealmType)
	}
	return nil
}
