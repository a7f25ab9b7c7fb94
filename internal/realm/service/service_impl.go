package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/cache"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/config"
	"github.com/smallbiznis/bazaar/internal/observability/metrics"
	"github.com/smallbiznis/bazaar/internal/realm/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const realmCacheTTL = 5 * time.Minute

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Repo    domain.Repository
	Clock   clock.Clock
	Config  *config.RealmConfigHolder
	Metrics *metrics.Metrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	repo    domain.Repository
	clock   clock.Clock
	cfg     *config.RealmConfigHolder
	metrics *metrics.Metrics
	cache   *cache.Loader[domain.Realm]
	bound   bool
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("realm.service"),
		repo:    p.Repo,
		clock:   p.Clock,
		cfg:     p.Config,
		metrics: p.Metrics,
		cache:   cache.NewLoader[domain.Realm](realmCacheTTL),
	}
}

func (s *service) WithTx(tx *gorm.DB) domain.Service {
	clone := *s
	clone.db = tx
	clone.repo = s.repo.WithTx(tx)
	clone.bound = true
	return &clone
}

func (s *service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Realm, error) {
	if !req.Type.Valid() {
		return nil, domain.ErrInvalidType
	}
	if req.OwnerUserID == 0 {
		return nil, domain.ErrInvalidOwner
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	var baseID string
	switch req.Type {
	case domain.TypeShop:
		baseID = domain.ShopRealmID(name)
		if baseID == "" {
			return nil, domain.ErrInvalidName
		}
	case domain.TypeUser:
		baseID = domain.UserRealmID(req.OwnerUserID)
	}

	realm := domain.Realm{
		Type:        req.Type,
		Name:        name,
		OwnerUserID: req.OwnerUserID,
		CreatedAt:   s.clock.Now(),
	}

	cfg := s.cfg.Get()
	if req.Type == domain.TypeUser || cfg.SlugPolicy != config.SlugPolicySuffix {
		realm.RealmID = baseID
		if err := s.repo.Insert(ctx, realm); err != nil {
			return nil, err
		}
		s.created(ctx, realm)
		return &realm, nil
	}

	for n := 1; n <= cfg.MaxSlugSuffix; n++ {
		candidate := domain.WithSuffix(baseID, n)
		existing, err := s.repo.FindByID(ctx, candidate)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			continue
		}
		realm.RealmID = candidate
		if err := s.repo.Insert(ctx, realm); err != nil {
			return nil, err
		}
		s.created(ctx, realm)
		return &realm, nil
	}

	return nil, fmt.Errorf("%w: no free id after %d candidates for %s", domain.ErrDuplicateRealm, cfg.MaxSlugSuffix, baseID)
}

func (s *service) created(ctx context.Context, realm domain.Realm) {
	s.metrics.RecordRealmCreated(ctx, string(realm.Type))
	s.log.Info("realm created",
		zap.String("realm_id", realm.RealmID),
		zap.String("type", string(realm.Type)),
		zap.String("owner_user_id", realm.OwnerUserID.String()),
	)
}

func (s *service) Get(ctx context.Context, realmID string) (*domain.Realm, error) {
	realmID = strings.TrimSpace(realmID)
	if realmID == "" {
		return nil, domain.ErrNotFound
	}

	if s.bound {
		realm, err := s.repo.FindByID(ctx, realmID)
		if err != nil {
			return nil, err
		}
		if realm == nil {
			return nil, domain.ErrNotFound
		}
		return realm, nil
	}

	realm, found, err := s.cache.Get(ctx, realmID, func(ctx context.Context) (domain.Realm, bool, error) {
		row, err := s.repo.FindByID(ctx, realmID)
		if err != nil || row == nil {
			return domain.Realm{}, false, err
		}
		return *row, true, nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, domain.ErrNotFound
	}
	return &realm, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerUserID snowflake.ID) ([]domain.Realm, error) {
	if ownerUserID == 0 {
		return nil, domain.ErrInvalidOwner
	}
	return s.repo.ListByOwner(ctx, ownerUserID)
}

func (s *service) ListByIDs(ctx context.Context, realmIDs []string) ([]domain.Realm, error) {
	return s.repo.FindByIDs(ctx, realmIDs)
}

func (s *service) Delete(ctx context.Context, realmID string) error {
	deleted, err := s.repo.Delete(ctx, realmID)
	s.cache.Invalidate(realmID)
	if err != nil {
		return err
	}
	if !deleted {
		return domain.ErrNotFound
	}
	s.log.Warn("realm deleted", zap.String("realm_id", realmID))
	return nil
}
