package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/config"
	"github.com/smallbiznis/bazaar/internal/lock"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	memberrepo "github.com/smallbiznis/bazaar/internal/membership/repository"
	memberservice "github.com/smallbiznis/bazaar/internal/membership/service"
	"github.com/smallbiznis/bazaar/internal/outbox"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	realmrepo "github.com/smallbiznis/bazaar/internal/realm/repository"
	realmservice "github.com/smallbiznis/bazaar/internal/realm/service"
	"github.com/smallbiznis/bazaar/internal/user/domain"
	"github.com/smallbiznis/bazaar/internal/user/repository"
	"github.com/smallbiznis/bazaar/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db      *gorm.DB
	realms  realmdomain.Service
	members memberdomain.Service
	users   domain.Service
}

func setup(t *testing.T) fixture {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.User{}, &realmdomain.Realm{}, &memberdomain.Member{}, &outbox.Event{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

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
		Locks:  lock.NewLocal(),
	})
	users := NewService(Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Repo:    repository.NewRepository(conn),
		Realms:  realms,
		Members: members,
		Outbox:  outbox.NewPublisher(outbox.Params{DB: conn, Clock: clk}),
		GenID:   node,
		Clock:   clk,
	})
	return fixture{db: conn, realms: realms, members: members, users: users}
}

func TestRegisterCreatesPrivateRealmAndBuyerMembership(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, domain.RegisterRequest{Email: " Ana@Example.com ", Name: "Ana"})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, domain.RoleBuyer, user.Role)

	realm, err := f.realms.Get(ctx, user.RealmKey())
	require.NoError(t, err)
	assert.Equal(t, realmdomain.TypeUser, realm.Type)
	assert.Equal(t, user.ID, realm.OwnerUserID)

	roles, err := f.members.RolesOf(ctx, user.ID, user.RealmKey())
	require.NoError(t, err)
	assert.True(t, roles.Has(memberdomain.RoleBuyer))

	var events []outbox.Event
	require.NoError(t, f.db.Where("topic = ?", outbox.TopicUserRegistered).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, user.RealmKey(), events[0].RealmID)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.users.Register(ctx, domain.RegisterRequest{Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)

	_, err = f.users.Register(ctx, domain.RegisterRequest{Email: "ANA@example.com", Name: "Other"})
	assert.ErrorIs(t, err, domain.ErrEmailTaken)

	var realms int64
	require.NoError(t, f.db.Model(&realmdomain.Realm{}).Count(&realms).Error)
	assert.EqualValues(t, 1, realms)
}

func TestRegisterValidatesInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.users.Register(ctx, domain.RegisterRequest{Email: "nope", Name: "Ana"})
	assert.ErrorIs(t, err, domain.ErrInvalidEmail)

	_, err = f.users.Register(ctx, domain.RegisterRequest{Email: "ana@example.com", Name: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestGetUnknownUser(t *testing.T) {
	f := setup(t)
	_, err := f.users.Get(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.users.GetByEmail(context.Background(), "ghost@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSyncRoleFollowsVendorMemberships(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	user, err := f.users.Register(ctx, domain.RegisterRequest{Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)

	role, err := f.users.SyncRole(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBuyer, role)

	shop, err := f.realms.Create(ctx, realmdomain.CreateRequest{Type: realmdomain.TypeShop, Name: "Fashion Store", OwnerUserID: user.ID})
	require.NoError(t, err)
	_, err = f.members.Grant(ctx, memberdomain.GrantRequest{RealmID: shop.RealmID, UserID: user.ID, Role: memberdomain.RoleVendor})
	require.NoError(t, err)

	role, err = f.users.SyncRole(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleVendor, role)

	principal, err := f.users.Principal(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "vendor", principal.Role)
	assert.False(t, principal.IsSystem())
}

func TestSetRoleRejectsUnknownRole(t *testing.T) {
	f := setup(t)
	assert.ErrorIs(t, f.users.SetRole(context.Background(), 1, domain.Role("admin")), domain.ErrInvalidRole)
	assert.ErrorIs(t, f.users.SetRole(context.Background(), 1, domain.RoleVendor), domain.ErrNotFound)
}

func TestWithTxRollsBackRegistration(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	err := f.db.Transaction(func(tx *gorm.DB) error {
		if _, err := f.users.WithTx(tx).Register(ctx, domain.RegisterRequest{Email: "ana@example.com", Name: "Ana"}); err != nil {
			return err
		}
		return gorm.ErrInvalidTransaction
	})
	require.ErrorIs(t, err, gorm.ErrInvalidTransaction)

	_, err = f.users.GetByEmail(ctx, "ana@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
