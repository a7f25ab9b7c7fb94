package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/identity"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	"github.com/smallbiznis/bazaar/internal/outbox"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	"github.com/smallbiznis/bazaar/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Realms  realmdomain.Service
	Members memberdomain.Service
	Outbox  outbox.Publisher
	GenID   *snowflake.Node
	Clock   clock.Clock
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	realms  realmdomain.Service
	members memberdomain.Service
	outbox  outbox.Publisher
	genID   *snowflake.Node
	clock   clock.Clock
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("user.service"),
		repo:    p.Repo,
		realms:  p.Realms,
		members: p.Members,
		outbox:  p.Outbox,
		genID:   p.GenID,
		clock:   p.Clock,
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	clone.repo = s.repo.WithTx(tx)
	clone.realms = s.realms.WithTx(tx)
	clone.members = s.members.WithTx(tx)
	clone.outbox = s.outbox.WithTx(tx)
	return &clone
}

type registeredPayload struct {
	UserID  string `json:"user_id"`
	Email   string `json:"email"`
	RealmID string `json:"realm_id"`
}

func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidEmail
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	now := s.clock.Now()
	user := &domain.User{
		ID:        s.genID.Generate(),
		Email:     email,
		Name:      name,
		Role:      domain.RoleBuyer,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByEmail(ctx, email)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrEmailTaken
		}
		if err := repo.Insert(ctx, user); err != nil {
			return err
		}

		realm, err := s.realms.WithTx(tx).Create(ctx, realmdomain.CreateRequest{
			Type:        realmdomain.TypeUser,
			Name:        name,
			OwnerUserID: user.ID,
		})
		if err != nil {
			return err
		}

		if _, err := s.members.WithTx(tx).Grant(ctx, memberdomain.GrantRequest{
			RealmID: realm.RealmID,
			UserID:  user.ID,
			Role:    memberdomain.RoleBuyer,
			Profile: memberdomain.Profile{Email: email, Name: name},
		}); err != nil {
			return err
		}

		_, err = s.outbox.WithTx(tx).Publish(ctx, outbox.TopicUserRegistered, realm.RealmID, registeredPayload{
			UserID:  user.ID.String(),
			Email:   email,
			RealmID: realm.RealmID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("user registered",
		zap.String("user_id", user.ID.String()),
		zap.String("realm_id", user.RealmKey()),
	)
	return user, nil
}

func (s *service) Get(ctx context.Context, id snowflake.ID) (*domain.User, error) {
	if id == 0 {
		return nil, domain.ErrNotFound
	}
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *service) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domain.ErrNotFound
	}
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *service) SetRole(ctx context.Context, id snowflake.ID, role domain.Role) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}
	return s.repo.UpdateRole(ctx, id, role)
}

func (s *service) SyncRole(ctx context.Context, id snowflake.ID) (domain.Role, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return "", err
	}
	shops, err := s.members.RealmsOf(ctx, id, memberdomain.RoleVendor)
	if err != nil {
		return "", err
	}
	role := domain.RoleBuyer
	if len(shops) > 0 {
		role = domain.RoleVendor
	}
	if err := s.repo.UpdateRole(ctx, id, role); err != nil {
		return "", err
	}
	return role, nil
}

func (s *service) Principal(ctx context.Context, id snowflake.ID) (*identity.Principal, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &identity.Principal{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Role:   string(user.Role),
	}, nil
}
