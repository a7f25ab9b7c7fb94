package entity

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/identity"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	"github.com/smallbiznis/bazaar/internal/outbox"
	"github.com/smallbiznis/bazaar/pkg/db/option"
	"gorm.io/gorm"
)

// Members exposes membership rows. Grants and revocations go through the
// membership index so the one-row-per-(realm, user) rule holds.
type Members struct {
	col     *Collection[memberdomain.Member]
	members memberdomain.Service
}

func newMembers(d deps, p Params) *Members {
	return &Members{
		col: newCollection(d, collectionConfig[memberdomain.Member]{
			entityType: authorization.EntityMember,
			indexed:    []string{"user_id"},
		}),
		members: p.Members,
	}
}

func (m *Members) WithTx(tx *gorm.DB) *Members {
	clone := *m
	clone.col = m.col.WithTx(tx)
	clone.members = m.members.WithTx(tx)
	return &clone
}

func (m *Members) Get(ctx context.Context, principal *identity.Principal, id int64) (*memberdomain.Member, error) {
	return m.col.Get(ctx, principal, id)
}

func (m *Members) Query(ctx context.Context, principal *identity.Principal, realmID string, opts ...option.QueryOption) ([]memberdomain.Member, error) {
	return m.col.Query(ctx, principal, realmID, opts...)
}

func (m *Members) Grant(ctx context.Context, scope Scope, req memberdomain.GrantRequest) (*memberdomain.Member, error) {
	c := m.col
	ctx, span := c.start(ctx, "Grant", req.RealmID)
	defer span.End()

	var member *memberdomain.Member
	defer c.lock(req.RealmID)()
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.authorize(ctx, tx, scope, authorization.Create, req.RealmID); err != nil {
			return err
		}
		granted, err := m.members.WithTx(tx).Grant(ctx, req)
		if err != nil {
			return err
		}
		member = granted
		return c.publish(ctx, tx, outbox.TopicEntityUpdated, granted)
	})
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.mutated(ctx, authorization.Create, member)
	return member, nil
}

func (m *Members) Revoke(ctx context.Context, scope Scope, realmID string, userID snowflake.ID, role memberdomain.Role) error {
	c := m.col
	ctx, span := c.start(ctx, "Revoke", realmID)
	defer span.End()

	stub := &memberdomain.Member{RealmID: realmID, UserID: userID}
	defer c.lock(realmID)()
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.authorize(ctx, tx, scope, authorization.Delete, realmID); err != nil {
			return err
		}
		if err := m.members.WithTx(tx).Revoke(ctx, realmID, userID, role); err != nil {
			return err
		}
		return c.publish(ctx, tx, outbox.TopicEntityDeleted, stub)
	})
	if err != nil {
		return c.fail(span, err)
	}
	c.mutated(ctx, authorization.Delete, stub)
	return nil
}
