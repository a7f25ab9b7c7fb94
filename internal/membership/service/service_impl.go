package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/lock"
	"github.com/smallbiznis/bazaar/internal/membership/domain"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Repo   domain.Repository
	Realms realmdomain.Service
	GenID  *snowflake.Node
	Clock  clock.Clock
	Locks  *lock.Local
}

type service struct {
	db     *gorm.DB
	log    *zap.Logger
	repo   domain.Repository
	realms realmdomain.Service
	genID  *snowflake.Node
	clock  clock.Clock
	locks  *lock.Local
	bound  bool
}

func NewService(p Params) domain.Service {
	return &service{
		db:     p.DB,
		log:    p.Log.Named("membership.service"),
		repo:   p.Repo,
		realms: p.Realms,
		genID:  p.GenID,
		clock:  p.Clock,
		locks:  p.Locks,
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	clone.repo = s.repo.WithTx(tx)
	clone.realms = s.realms.WithTx(tx)
	clone.bound = true
	return &clone
}

func memberLockKey(realmID string, userID snowflake.ID) string {
	return fmt.Sprintf("member:%s:%s", realmID, userID.String())
}

// Grant adds role to the (realm, user) row. The row is read under a row lock
// inside a transaction so grants arriving through different callers never
// overwrite each other's roles.
func (s *service) Grant(ctx context.Context, req domain.GrantRequest) (*domain.Member, error) {
	realmID := strings.TrimSpace(req.RealmID)
	if realmID == "" {
		return nil, domain.ErrInvalidRealm
	}
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if !req.Role.Valid() {
		return nil, domain.ErrInvalidRole
	}
	req.RealmID = realmID

	if s.bound {
		return s.grant(ctx, req)
	}

	unlock := s.locks.Lock(memberLockKey(realmID, req.UserID))
	defer unlock()

	var member *domain.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		granted, err := s.WithTx(tx).(*service).grant(ctx, req)
		if err != nil {
			return err
		}
		member = granted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

func (s *service) grant(ctx context.Context, req domain.GrantRequest) (*domain.Member, error) {
	if _, err := s.realms.Get(ctx, req.RealmID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	candidate := &domain.Member{
		ID:         s.genID.Generate(),
		RealmID:    req.RealmID,
		UserID:     req.UserID,
		Roles:      []string{string(req.Role)},
		Email:      strings.TrimSpace(req.Profile.Email),
		Name:       strings.TrimSpace(req.Profile.Name),
		AcceptedAt: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.InsertIgnore(ctx, candidate); err != nil {
		return nil, err
	}

	member, err := s.repo.FindForUpdate(ctx, req.RealmID, req.UserID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrNotFound
	}

	changed := member.AddRole(req.Role)
	if member.Email == "" && candidate.Email != "" {
		member.Email = candidate.Email
		changed = true
	}
	if member.Name == "" && candidate.Name != "" {
		member.Name = candidate.Name
		changed = true
	}
	if changed {
		member.UpdatedAt = now
		if err := s.repo.Update(ctx, member); err != nil {
			return nil, err
		}
	}

	s.log.Debug("role granted",
		zap.String("realm_id", req.RealmID),
		zap.String("user_id", req.UserID.String()),
		zap.String("role", string(req.Role)),
		zap.Strings("roles", member.Roles),
	)
	return member, nil
}

func (s *service) RolesOf(ctx context.Context, userID snowflake.ID, realmID string) (domain.RoleSet, error) {
	if userID == 0 || strings.TrimSpace(realmID) == "" {
		return domain.RoleSet{}, nil
	}
	member, err := s.repo.Find(ctx, realmID, userID)
	if err != nil {
		return nil, err
	}
	return domain.RoleSetOf(member), nil
}

func (s *service) RealmsOf(ctx context.Context, userID snowflake.ID, roleFilter domain.Role) ([]realmdomain.Realm, error) {
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	if roleFilter != "" && !roleFilter.Valid() {
		return nil, domain.ErrInvalidRole
	}

	members, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if roleFilter != "" && !m.HasRole(roleFilter) {
			continue
		}
		ids = append(ids, m.RealmID)
	}
	return s.realms.ListByIDs(ctx, ids)
}

func (s *service) Get(ctx context.Context, realmID string, userID snowflake.ID) (*domain.Member, error) {
	member, err := s.repo.Find(ctx, realmID, userID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, domain.ErrNotFound
	}
	return member, nil
}

func (s *service) ListByRealm(ctx context.Context, realmID string) ([]domain.Member, error) {
	return s.repo.ListByRealm(ctx, realmID)
}

func (s *service) Revoke(ctx context.Context, realmID string, userID snowflake.ID, role domain.Role) error {
	if s.bound {
		return s.revoke(ctx, realmID, userID, role)
	}

	unlock := s.locks.Lock(memberLockKey(realmID, userID))
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.WithTx(tx).(*service).revoke(ctx, realmID, userID, role)
	})
}

func (s *service) revoke(ctx context.Context, realmID string, userID snowflake.ID, role domain.Role) error {
	member, err := s.repo.FindForUpdate(ctx, realmID, userID)
	if err != nil {
		return err
	}
	if member == nil || !member.RemoveRole(role) {
		return domain.ErrNotFound
	}

	if len(member.Roles) == 0 {
		return s.repo.Delete(ctx, member.ID)
	}
	member.UpdatedAt = s.clock.Now()
	return s.repo.Update(ctx, member)
}
