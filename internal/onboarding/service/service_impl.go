package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bazaar/internal/clock"
	"github.com/smallbiznis/bazaar/internal/config"
	entitydomain "github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/lock"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	"github.com/smallbiznis/bazaar/internal/observability/metrics"
	"github.com/smallbiznis/bazaar/internal/onboarding/domain"
	"github.com/smallbiznis/bazaar/internal/outbox"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Users   userdomain.Service
	Realms  realmdomain.Service
	Members memberdomain.Service
	Stores  StoreWriter
	Outbox  outbox.Publisher
	Locker  lock.Locker
	Config  *config.RealmConfigHolder
	Clock   clock.Clock
	Metrics *metrics.OnboardingMetrics `optional:"true"`
}

type service struct {
	db      *gorm.DB
	log     *zap.Logger
	users   userdomain.Service
	realms  realmdomain.Service
	members memberdomain.Service
	stores  StoreWriter
	outbox  outbox.Publisher
	locker  lock.Locker
	cfg     *config.RealmConfigHolder
	clock   clock.Clock
	metrics *metrics.OnboardingMetrics
	tracer  trace.Tracer

	inflight sync.Map
}

func NewService(p Params) domain.Service {
	return &service{
		db:      p.DB,
		log:     p.Log.Named("onboarding.service"),
		users:   p.Users,
		realms:  p.Realms,
		members: p.Members,
		stores:  p.Stores,
		outbox:  p.Outbox,
		locker:  p.Locker,
		cfg:     p.Config,
		clock:   p.Clock,
		metrics: p.Metrics,
		tracer:  otel.Tracer("bazaar/onboarding"),
	}
}

func userLockKey(userID snowflake.ID) string {
	return "onboarding:user:" + userID.String()
}

func realmLockKey(realmID string) string {
	return "onboarding:realm:" + realmID
}

type onboardedPayload struct {
	UserID  string `json:"user_id"`
	RealmID string `json:"realm_id"`
	StoreID string `json:"store_id"`
}

func (s *service) BecomeVendor(ctx context.Context, req domain.Request) (*domain.Vendor, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "onboarding.BecomeVendor", trace.WithAttributes(
		attribute.String("user.id", req.UserID.String()),
	))
	defer span.End()

	vendor, err := s.becomeVendor(ctx, req)
	s.metrics.ObserveRun(outcomeOf(err), time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.log.Warn("vendor onboarding failed",
			zap.String("user_id", req.UserID.String()),
			zap.String("store_name", req.StoreName),
			zap.Error(err),
		)
		return nil, err
	}
	span.SetAttributes(attribute.String("realm.id", vendor.RealmID))
	s.log.Info("vendor onboarded",
		zap.String("user_id", req.UserID.String()),
		zap.String("realm_id", vendor.RealmID),
		zap.String("store_id", vendor.StoreID.String()),
	)
	return vendor, nil
}

func (s *service) becomeVendor(ctx context.Context, req domain.Request) (*domain.Vendor, error) {
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	storeName := strings.TrimSpace(req.StoreName)
	if storeName == "" {
		return nil, domain.Fail(domain.StepDeriveRealmID, domain.ErrInvalidStoreName)
	}
	user, err := s.users.Get(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	baseRealmID := realmdomain.ShopRealmID(storeName)
	if baseRealmID == "" {
		return nil, domain.Fail(domain.StepDeriveRealmID, domain.ErrInvalidStoreName)
	}

	cfg := s.cfg.Get()
	waitCtx := ctx
	if cfg.LockWait > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, cfg.LockWait)
		defer cancel()
	}
	release, err := lock.AcquireAll(waitCtx, s.locker, cfg.LockTTL, userLockKey(user.ID), realmLockKey(baseRealmID))
	if err != nil {
		return nil, domain.Fail(domain.StepAcquireLock, err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release onboarding lock", zap.Error(err))
		}
	}()

	s.inflight.Store(user.ID, struct{}{})
	defer s.inflight.Delete(user.ID)

	shops, err := s.members.RealmsOf(ctx, user.ID, memberdomain.RoleVendor)
	if err != nil {
		return nil, err
	}
	if len(shops) > 0 {
		return nil, domain.ErrAlreadyVendor
	}

	var vendor domain.Vendor
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sg := newSaga(tx, s.metrics)

		var realm *realmdomain.Realm
		if err := sg.run(ctx, domain.StepCreateRealm,
			func(ctx context.Context, tx *gorm.DB) error {
				created, err := s.realms.WithTx(tx).Create(ctx, realmdomain.CreateRequest{
					Type:        realmdomain.TypeShop,
					Name:        storeName,
					OwnerUserID: user.ID,
				})
				realm = created
				return err
			},
			func(ctx context.Context, tx *gorm.DB) error {
				return s.realms.WithTx(tx).Delete(ctx, realm.RealmID)
			},
		); err != nil {
			return err
		}

		var store *entitydomain.Store
		if err := sg.run(ctx, domain.StepCreateStore,
			func(ctx context.Context, tx *gorm.DB) error {
				created, err := s.stores.CreateStore(ctx, tx, entitydomain.Store{
					Name:        storeName,
					Description: req.StoreDescription,
					Image:       req.StoreImage,
					RealmID:     realm.RealmID,
					OwnerUserID: user.ID,
				})
				store = created
				return err
			},
			func(ctx context.Context, tx *gorm.DB) error {
				return s.stores.RemoveStore(ctx, tx, store.Key())
			},
		); err != nil {
			return err
		}

		if err := sg.run(ctx, domain.StepGrantVendor,
			func(ctx context.Context, tx *gorm.DB) error {
				_, err := s.members.WithTx(tx).Grant(ctx, memberdomain.GrantRequest{
					RealmID: realm.RealmID,
					UserID:  user.ID,
					Role:    memberdomain.RoleVendor,
					Profile: memberdomain.Profile{Email: user.Email, Name: user.Name},
				})
				return err
			},
			func(ctx context.Context, tx *gorm.DB) error {
				return s.members.WithTx(tx).Revoke(ctx, realm.RealmID, user.ID, memberdomain.RoleVendor)
			},
		); err != nil {
			return err
		}

		if err := sg.run(ctx, domain.StepSetRole,
			func(ctx context.Context, tx *gorm.DB) error {
				return s.users.WithTx(tx).SetRole(ctx, user.ID, userdomain.RoleVendor)
			},
			func(ctx context.Context, tx *gorm.DB) error {
				return s.users.WithTx(tx).SetRole(ctx, user.ID, user.Role)
			},
		); err != nil {
			return err
		}

		if err := sg.run(ctx, domain.StepEmitEvent,
			func(ctx context.Context, tx *gorm.DB) error {
				_, err := s.outbox.WithTx(tx).Publish(ctx, outbox.TopicVendorOnboarded, realm.RealmID, onboardedPayload{
					UserID:  user.ID.String(),
					RealmID: realm.RealmID,
					StoreID: store.ID.String(),
				})
				return err
			},
			nil,
		); err != nil {
			return err
		}

		vendor = domain.Vendor{RealmID: realm.RealmID, StoreID: store.ID}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (s *service) State(ctx context.Context, userID snowflake.ID) (domain.State, error) {
	if _, err := s.users.Get(ctx, userID); err != nil {
		return "", err
	}
	if _, busy := s.inflight.Load(userID); busy {
		return domain.StateOnboarding, nil
	}
	shops, err := s.members.RealmsOf(ctx, userID, memberdomain.RoleVendor)
	if err != nil {
		return "", err
	}
	if len(shops) > 0 {
		return domain.StateVendor, nil
	}
	return domain.StateBuyer, nil
}

func outcomeOf(err error) string {
	var failure *domain.OnboardingFailure
	switch {
	case err == nil:
		return metrics.OnboardingOutcomeSucceeded
	case errors.Is(err, domain.ErrAlreadyVendor):
		return metrics.OnboardingOutcomeAlreadyVendor
	case errors.As(err, &failure) && failure.Step == domain.StepRollbackFailed:
		return metrics.OnboardingOutcomeRollbackError
	default:
		return metrics.OnboardingOutcomeFailed
	}
}
