package entity

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/config"
	"github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/identity"
	"github.com/smallbiznis/bazaar/internal/lock"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	memberrepo "github.com/smallbiznis/bazaar/internal/membership/repository"
	memberservice "github.com/smallbiznis/bazaar/internal/membership/service"
	"github.com/smallbiznis/bazaar/internal/outbox"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	realmrepo "github.com/smallbiznis/bazaar/internal/realm/repository"
	realmservice "github.com/smallbiznis/bazaar/internal/realm/service"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	userrepo "github.com/smallbiznis/bazaar/internal/user/repository"
	userservice "github.com/smallbiznis/bazaar/internal/user/service"
	"github.com/smallbiznis/bazaar/pkg/db"
	"github.com/smallbiznis/bazaar/pkg/db/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	realms  realmdomain.Service
	members memberdomain.Service
	users   userdomain.Service
	store   *Store
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&userdomain.User{},
		&realmdomain.Realm{},
		&memberdomain.Member{},
		&outbox.Event{},
		&domain.Store{},
		&domain.Product{},
		&domain.ProductCategory{},
		&domain.CartItem{},
		&domain.Order{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	locks := lock.NewLocal()
	publisher := outbox.NewPublisher(outbox.Params{DB: conn, Clock: clk})

	realms := realmservice.NewService(realmservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Repo:   realmrepo.NewRepository(conn),
		Clock:  clk,
		Config: config.NewStaticRealmConfig(config.DefaultRealmConfig()),
	})
	members := memberservice.NewService(memberservice.Params{
		DB:     conn,
		Log:    zap.NewNop(),
		Repo:   memberrepo.NewRepository(conn),
		Realms: realms,
		GenID:  node,
		Clock:  clk,
		Locks:  locks,
	})
	users := userservice.NewService(userservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    userrepo.NewRepository(conn),
		Realms:  realms,
		Members: members,
		Outbox:  publisher,
		GenID:   node,
		Clock:   clk,
	})
	enforcer, err := authorization.NewEnforcer(conn)
	require.NoError(t, err)
	authz := authorization.NewService(authorization.Params{
		Log:      zap.NewNop(),
		Enforcer: enforcer,
		Realms:   realms,
		Members:  members,
	})

	store := NewStore(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Authz:   authz,
		Realms:  realms,
		Members: members,
		Users:   users,
		Outbox:  publisher,
		Locks:   locks,
		GenID:   node,
		Clock:   clk,
	})
	return fixture{db: conn, realms: realms, members: members, users: users, store: store}
}

func (f fixture) register(t *testing.T, email string) *identity.Principal {
	t.Helper()
	ctx := context.Background()
	user, err := f.users.Register(ctx, userdomain.RegisterRequest{Email: email, Name: email})
	require.NoError(t, err)
	principal, err := f.users.Principal(ctx, user.ID)
	require.NoError(t, err)
	return principal
}

type shop struct {
	realmID string
	store   *domain.Store
}

// openShop creates a shop realm, its store and the vendor grant for owner.
func (f fixture) openShop(t *testing.T, name string, owner *identity.Principal) shop {
	t.Helper()
	ctx := context.Background()
	realm, err := f.realms.Create(ctx, realmdomain.CreateRequest{Type: realmdomain.TypeShop, Name: name, OwnerUserID: owner.UserID})
	require.NoError(t, err)
	_, err = f.members.Grant(ctx, memberdomain.GrantRequest{RealmID: realm.RealmID, UserID: owner.UserID, Role: memberdomain.RoleVendor})
	require.NoError(t, err)
	store, err := f.store.Stores.Add(ctx, Scope{Principal: identity.System}, domain.Store{
		Name:        name,
		RealmID:     realm.RealmID,
		OwnerUserID: owner.UserID,
	})
	require.NoError(t, err)
	return shop{realmID: realm.RealmID, store: store}
}

func (f fixture) addProduct(t *testing.T, s shop, vendor *identity.Principal, name string, categories ...string) *domain.Product {
	t.Helper()
	product, err := f.store.Products.Add(context.Background(), Scope{Principal: vendor, RealmID: s.realmID}, domain.Product{
		Name:       name,
		Price:      1500,
		Stock:      3,
		Categories: categories,
		RealmID:    s.realmID,
		VendorID:   s.store.ID,
	})
	require.NoError(t, err)
	return product
}

func (f fixture) events(t *testing.T, topic string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(&outbox.Event{}).Where("topic = ?", topic).Count(&n).Error)
	return n
}

func requireDenied(t *testing.T, err error, reason authorization.Reason) {
	t.Helper()
	require.ErrorIs(t, err, authorization.ErrForbidden)
	got, ok := authorization.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, reason, got)
}

func ptr[T any](v T) *T { return &v }

func TestVendorAddsProductAndAnonymousReadsIt(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	s := f.openShop(t, "Fashion Store", vendor)

	product := f.addProduct(t, s, vendor, "Linen Shirt", "Shirts", " tops ", "shirts")
	assert.Equal(t, vendor.UserID, product.OwnerUserID)
	assert.Equal(t, []string{"shirts", "tops"}, []string(product.Categories))
	assert.EqualValues(t, 2, f.events(t, outbox.TopicEntityCreated))

	got, err := f.store.Products.Get(ctx, nil, product.Key())
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", got.Name)

	byCategory, err := f.store.Products.Query(ctx, nil, "", option.WithCategory("Tops"))
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.Equal(t, product.ID, byCategory[0].ID)
}

func TestAnonymousCannotUpdateProduct(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	s := f.openShop(t, "Fashion Store", vendor)
	product := f.addProduct(t, s, vendor, "Linen Shirt")
	before := f.events(t, outbox.TopicEntityUpdated)

	_, err := f.store.Products.Update(ctx, Scope{}, product.Key(), ProductPatch{Price: ptr(int64(1))})
	requireDenied(t, err, authorization.ReasonNotAMember)
	var denied *authorization.PermissionDeniedError
	require.ErrorAs(t, err, &denied)
	assert.True(t, denied.Anonymous)

	got, err := f.store.Products.Get(ctx, nil, product.Key())
	require.NoError(t, err)
	assert.EqualValues(t, 1500, got.Price)
	assert.Equal(t, before, f.events(t, outbox.TopicEntityUpdated))
}

func TestBuyerAddsCartItemInOwnRealm(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	buyer := f.register(t, "buyer@example.com")
	s := f.openShop(t, "Fashion Store", vendor)
	product := f.addProduct(t, s, vendor, "Linen Shirt")

	item, err := f.store.CartItems.Add(ctx, Scope{Principal: buyer}, domain.CartItem{ProductID: product.ID, Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, realmdomain.UserRealmID(buyer.UserID), item.RealmID)

	items, err := f.store.CartItems.Query(ctx, buyer, item.RealmID, option.WithUserID(buyer.UserID.Int64()))
	require.NoError(t, err)
	assert.Len(t, items, 1)

	_, err = f.store.CartItems.Query(ctx, vendor, item.RealmID)
	requireDenied(t, err, authorization.ReasonNotAMember)

	_, err = f.store.CartItems.Update(ctx, Scope{Principal: buyer}, item.Key(), CartItemPatch{Quantity: ptr(0)})
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, f.store.CartItems.Delete(ctx, Scope{Principal: buyer}, item.Key()))
	_, err = f.store.CartItems.Get(ctx, buyer, item.Key())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestBuyerCannotCreateProductInShop(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	buyer := f.register(t, "buyer@example.com")
	s := f.openShop(t, "Fashion Store", vendor)

	product := domain.Product{Name: "Fake", Price: 1, RealmID: s.realmID, VendorID: s.store.ID, OwnerUserID: vendor.UserID}

	_, err := f.store.Products.Add(ctx, Scope{Principal: buyer}, product)
	requireDenied(t, err, authorization.ReasonNotAMember)

	_, err = f.store.Products.Add(ctx, Scope{Principal: buyer, RealmID: realmdomain.UserRealmID(buyer.UserID)}, product)
	requireDenied(t, err, authorization.ReasonRealmMismatch)

	_, err = f.members.Grant(ctx, memberdomain.GrantRequest{RealmID: s.realmID, UserID: buyer.UserID, Role: memberdomain.RoleBuyer})
	require.NoError(t, err)
	_, err = f.store.Products.Add(ctx, Scope{Principal: buyer}, product)
	requireDenied(t, err, authorization.ReasonInsufficientRole)

	var count int64
	require.NoError(t, f.db.Model(&domain.Product{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestVendorScopedToOtherShopGetsRealmMismatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	alice := f.register(t, "alice@example.com")
	bob := f.register(t, "bob@example.com")
	aliceShop := f.openShop(t, "Alice Goods", alice)
	bobShop := f.openShop(t, "Bob Goods", bob)
	bobsProduct := f.addProduct(t, bobShop, bob, "Mug")

	_, err := f.store.Products.Update(ctx, Scope{Principal: alice, RealmID: aliceShop.realmID}, bobsProduct.Key(), ProductPatch{Price: ptr(int64(1))})
	requireDenied(t, err, authorization.ReasonRealmMismatch)

	err = f.store.Products.Delete(ctx, Scope{Principal: alice}, bobsProduct.Key())
	requireDenied(t, err, authorization.ReasonNotAMember)

	got, err := f.store.Products.Get(ctx, alice, bobsProduct.Key())
	require.NoError(t, err)
	assert.EqualValues(t, 1500, got.Price)
}

func TestProductValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	other := f.register(t, "other@example.com")
	s := f.openShop(t, "Fashion Store", vendor)
	otherShop := f.openShop(t, "Other Store", other)
	scope := Scope{Principal: vendor}

	cases := []struct {
		name    string
		product domain.Product
		field   string
		code    string
	}{
		{"negative price", domain.Product{Name: "x", Price: -1, RealmID: s.realmID, VendorID: s.store.ID}, "price", domain.CodeNegative},
		{"negative stock", domain.Product{Name: "x", Stock: -1, RealmID: s.realmID, VendorID: s.store.ID}, "stock", domain.CodeNegative},
		{"missing name", domain.Product{RealmID: s.realmID, VendorID: s.store.ID}, "name", domain.CodeRequired},
		{"foreign store", domain.Product{Name: "x", RealmID: s.realmID, VendorID: otherShop.store.ID}, "vendor_id", domain.CodeNotFound},
		{"owner not vendor", domain.Product{Name: "x", RealmID: s.realmID, VendorID: s.store.ID, OwnerUserID: other.UserID}, "owner_user_id", domain.CodeNotVendor},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.store.Products.Add(ctx, scope, tc.product)
			var verr *domain.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, tc.code, verr.Code)
		})
	}
}

func TestRealmTagIsImmutable(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	s := f.openShop(t, "Fashion Store", vendor)
	second, err := f.realms.Create(ctx, realmdomain.CreateRequest{Type: realmdomain.TypeShop, Name: "Second", OwnerUserID: vendor.UserID})
	require.NoError(t, err)
	product := f.addProduct(t, s, vendor, "Linen Shirt")

	_, err = f.store.Products.Update(ctx, Scope{Principal: vendor}, product.Key(), ProductPatch{RealmID: ptr(second.RealmID)})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "realm_id", verr.Field)
	assert.Equal(t, domain.CodeImmutable, verr.Code)
}

func TestOneStorePerShopRealm(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	s := f.openShop(t, "Fashion Store", vendor)

	_, err := f.store.Stores.Add(ctx, Scope{Principal: vendor}, domain.Store{Name: "Again", RealmID: s.realmID})
	assert.ErrorIs(t, err, domain.ErrDuplicateStore)

	_, err = f.store.Stores.Add(ctx, Scope{Principal: identity.System}, domain.Store{Name: "Home", RealmID: realmdomain.UserRealmID(vendor.UserID), OwnerUserID: vendor.UserID})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, domain.CodeRealmType, verr.Code)

	got, err := f.store.Stores.ByRealm(ctx, nil, s.realmID)
	require.NoError(t, err)
	assert.Equal(t, s.store.ID, got.ID)
}

func TestQueryRejectsUnindexedFilters(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	buyer := f.register(t, "buyer@example.com")
	realmID := realmdomain.UserRealmID(buyer.UserID)

	_, err := f.store.CartItems.Query(ctx, buyer, realmID, option.WithOwnerUserID(buyer.UserID.Int64()))
	assert.ErrorIs(t, err, domain.ErrQueryNotIndexed)

	_, err = f.store.CartItems.Query(ctx, buyer, "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteProductDropsCategoryIndex(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	s := f.openShop(t, "Fashion Store", vendor)
	product := f.addProduct(t, s, vendor, "Linen Shirt", "shirts")

	_, err := f.store.Products.Update(ctx, Scope{Principal: vendor}, product.Key(), ProductPatch{Categories: ptr([]string{"linen", "summer"})})
	require.NoError(t, err)
	var cats []domain.ProductCategory
	require.NoError(t, f.db.Where("product_id = ?", product.ID).Order("category").Find(&cats).Error)
	require.Len(t, cats, 2)
	assert.Equal(t, "linen", cats[0].Category)

	require.NoError(t, f.store.Products.Delete(ctx, Scope{Principal: vendor}, product.Key()))
	var left int64
	require.NoError(t, f.db.Model(&domain.ProductCategory{}).Count(&left).Error)
	assert.Zero(t, left)
	assert.EqualValues(t, 1, f.events(t, outbox.TopicEntityDeleted))
}

func TestUsersReadAndRenameThemselvesOnly(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	ana := f.register(t, "ana@example.com")
	bo := f.register(t, "bo@example.com")

	updated, err := f.store.Users.Update(ctx, Scope{Principal: ana}, ana.UserID.Int64(), UserPatch{Name: ptr("Ana Maria")})
	require.NoError(t, err)
	assert.Equal(t, "Ana Maria", updated.Name)
	assert.Equal(t, userdomain.RoleBuyer, updated.Role)

	_, err = f.store.Users.Get(ctx, bo, ana.UserID.Int64())
	requireDenied(t, err, authorization.ReasonNotAMember)
}

func TestOrdersLifecycle(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	buyer := f.register(t, "buyer@example.com")

	order, err := f.store.Orders.Add(ctx, Scope{Principal: buyer}, domain.Order{Total: 4200})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPending, order.Status)

	placed := domain.OrderPlaced
	order, err = f.store.Orders.Update(ctx, Scope{Principal: buyer}, order.Key(), OrderPatch{Status: &placed})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderPlaced, order.Status)

	bogus := domain.OrderStatus("shipped")
	_, err = f.store.Orders.Update(ctx, Scope{Principal: buyer}, order.Key(), OrderPatch{Status: &bogus})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRealmsMineAndMembers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	vendor := f.register(t, "vendor@example.com")
	s := f.openShop(t, "Fashion Store", vendor)

	shops, err := f.store.Realms.Mine(ctx, vendor, memberdomain.RoleVendor)
	require.NoError(t, err)
	require.Len(t, shops, 1)
	assert.Equal(t, s.realmID, shops[0].RealmID)

	_, err = f.store.Realms.Mine(ctx, nil, "")
	requireDenied(t, err, authorization.ReasonNotAMember)

	realm, err := f.store.Realms.Get(ctx, vendor, s.realmID)
	require.NoError(t, err)
	assert.Equal(t, realmdomain.TypeShop, realm.Type)

	members, err := f.store.Members.Query(ctx, vendor, s.realmID)
	require.NoError(t, err)
	require.Len(t, members, 1)

	buyer := f.register(t, "buyer@example.com")
	_, err = f.store.Members.Grant(ctx, Scope{Principal: vendor}, memberdomain.GrantRequest{RealmID: s.realmID, UserID: buyer.UserID, Role: memberdomain.RoleVendor})
	requireDenied(t, err, authorization.ReasonInsufficientRole)

	_, err = f.store.Members.Grant(ctx, Scope{Principal: identity.System}, memberdomain.GrantRequest{RealmID: s.realmID, UserID: buyer.UserID, Role: memberdomain.RoleVendor})
	require.NoError(t, err)
	require.NoError(t, f.store.Members.Revoke(ctx, Scope{Principal: identity.System}, s.realmID, buyer.UserID, memberdomain.RoleVendor))
}
