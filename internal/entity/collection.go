// Package entity is the realm-tagged CRUD layer. Every read and mutation is
// authorized against the realm the entity lives in.
package entity

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/smallbiznis/bazaar/internal/authorization"
	"github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/identity"
	"github.com/smallbiznis/bazaar/internal/lock"
	"github.com/smallbiznis/bazaar/internal/observability/metrics"
	"github.com/smallbiznis/bazaar/internal/outbox"
	"github.com/smallbiznis/bazaar/pkg/db/option"
	"github.com/smallbiznis/bazaar/pkg/repository"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Scope is who is acting and in which realm. An empty RealmID means the
// realm of the entity being touched.
type Scope struct {
	Principal *identity.Principal
	RealmID   string
}

// Validator checks an entity inside the write transaction.
type Validator[T any] func(ctx context.Context, tx *gorm.DB, op authorization.Operation, entity *T) error

type deps struct {
	db      *gorm.DB
	log     *zap.Logger
	authz   authorization.Service
	locks   *lock.Local
	outbox  outbox.Publisher
	metrics *metrics.Metrics
}

// Collection is the generic table behind each typed facade.
type Collection[T domain.Entity] struct {
	entityType authorization.EntityType
	repo       repository.Repository[T]
	validate   Validator[T]
	indexed    []string
	publicRead bool

	db      *gorm.DB
	log     *zap.Logger
	authz   authorization.Service
	locks   *lock.Local
	outbox  outbox.Publisher
	metrics *metrics.Metrics
	tracer  trace.Tracer
	bound   bool
}

type collectionConfig[T domain.Entity] struct {
	entityType authorization.EntityType
	validate   Validator[T]
	indexed    []string
	// publicRead allows Query without a realm for publicly readable types.
	publicRead bool
}

func newCollection[T domain.Entity](d deps, cfg collectionConfig[T]) *Collection[T] {
	return &Collection[T]{
		entityType: cfg.entityType,
		repo:       repository.ProvideStore[T](d.db),
		validate:   cfg.validate,
		indexed:    cfg.indexed,
		publicRead: cfg.publicRead,
		db:         d.db,
		log:        d.log.Named(string(cfg.entityType) + ".collection"),
		authz:      d.authz,
		locks:      d.locks,
		outbox:     d.outbox,
		metrics:    d.metrics,
		tracer:     otel.Tracer("bazaar/entity"),
	}
}

// WithTx binds the collection to tx. A bound collection does not take the
// per-realm lock: the caller's transaction already holds the connection.
func (c *Collection[T]) WithTx(tx *gorm.DB) *Collection[T] {
	clone := *c
	clone.db = tx
	clone.repo = c.repo.WithTrx(tx)
	clone.authz = c.authz.WithTx(tx)
	clone.outbox = c.outbox.WithTx(tx)
	clone.bound = true
	return &clone
}

func (c *Collection[T]) Add(ctx context.Context, scope Scope, entity *T) (*T, error) {
	realmID := (*entity).RealmKey()
	ctx, span := c.start(ctx, "Add", realmID)
	defer span.End()

	if (*entity).Key() == 0 {
		return nil, c.fail(span, domain.Invalid("id", domain.CodeRequired))
	}
	if strings.TrimSpace(realmID) == "" {
		return nil, c.fail(span, domain.Invalid("realm_id", domain.CodeRequired))
	}

	defer c.lock(realmID)()
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.authorize(ctx, tx, scope, authorization.Create, realmID); err != nil {
			return err
		}
		if err := c.check(ctx, tx, authorization.Create, entity); err != nil {
			return err
		}
		if err := c.repo.WithTrx(tx).Create(ctx, entity); err != nil {
			return err
		}
		return c.publish(ctx, tx, outbox.TopicEntityCreated, entity)
	})
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.mutated(ctx, authorization.Create, entity)
	return entity, nil
}

func (c *Collection[T]) Get(ctx context.Context, principal *identity.Principal, id int64) (*T, error) {
	ctx, span := c.start(ctx, "Get", "")
	defer span.End()

	row, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, c.fail(span, err)
	}
	if row == nil {
		return nil, c.fail(span, domain.ErrNotFound)
	}
	realmID := (*row).RealmKey()
	span.SetAttributes(attribute.String("realm.id", realmID))
	if err := c.authz.Require(ctx, authorization.Request{
		Principal:  principal,
		RealmID:    realmID,
		EntityType: c.entityType,
		Operation:  authorization.Read,
	}); err != nil {
		return nil, c.fail(span, err)
	}
	return row, nil
}

// Update loads the entity, applies patch and writes it back. The realm tag
// of an entity cannot change.
func (c *Collection[T]) Update(ctx context.Context, scope Scope, id int64, patch func(*T) error) (*T, error) {
	ctx, span := c.start(ctx, "Update", "")
	defer span.End()

	current, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return nil, c.fail(span, err)
	}
	if current == nil {
		return nil, c.fail(span, domain.ErrNotFound)
	}
	realmID := (*current).RealmKey()
	span.SetAttributes(attribute.String("realm.id", realmID))

	var updated *T
	defer c.lock(realmID)()
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.authorize(ctx, tx, scope, authorization.Update, realmID); err != nil {
			return err
		}
		row, err := c.repo.WithTrx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return domain.ErrNotFound
		}
		if err := patch(row); err != nil {
			return err
		}
		if (*row).RealmKey() != realmID || (*row).Key() != id {
			return domain.Invalid("realm_id", domain.CodeImmutable)
		}
		if err := c.check(ctx, tx, authorization.Update, row); err != nil {
			return err
		}
		if err := c.repo.WithTrx(tx).Save(ctx, row); err != nil {
			return err
		}
		updated = row
		return c.publish(ctx, tx, outbox.TopicEntityUpdated, row)
	})
	if err != nil {
		return nil, c.fail(span, err)
	}
	c.mutated(ctx, authorization.Update, updated)
	return updated, nil
}

func (c *Collection[T]) Delete(ctx context.Context, scope Scope, id int64) error {
	ctx, span := c.start(ctx, "Delete", "")
	defer span.End()

	current, err := c.repo.FindByID(ctx, id)
	if err != nil {
		return c.fail(span, err)
	}
	if current == nil {
		return c.fail(span, domain.ErrNotFound)
	}
	realmID := (*current).RealmKey()
	span.SetAttributes(attribute.String("realm.id", realmID))

	defer c.lock(realmID)()
	err = c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := c.authorize(ctx, tx, scope, authorization.Delete, realmID); err != nil {
			return err
		}
		row, err := c.repo.WithTrx(tx).FindByID(ctx, id)
		if err != nil {
			return err
		}
		if row == nil {
			return domain.ErrNotFound
		}
		if err := c.repo.WithTrx(tx).Delete(ctx, row); err != nil {
			return err
		}
		return c.publish(ctx, tx, outbox.TopicEntityDeleted, row)
	})
	if err != nil {
		return c.fail(span, err)
	}
	c.mutated(ctx, authorization.Delete, current)
	return nil
}

// Query scans an indexed column set. Without a realm only publicly readable
// types may be listed.
func (c *Collection[T]) Query(ctx context.Context, principal *identity.Principal, realmID string, opts ...option.QueryOption) ([]T, error) {
	realmID = strings.TrimSpace(realmID)
	ctx, span := c.start(ctx, "Query", realmID)
	defer span.End()

	for _, opt := range opts {
		col, ok := opt.(option.Column)
		if !ok {
			continue
		}
		if col.Column() == "realm_id" || !slices.Contains(c.indexed, col.Column()) {
			return nil, c.fail(span, domain.ErrQueryNotIndexed)
		}
	}

	if realmID == "" {
		if !c.publicRead {
			return nil, c.fail(span, domain.Invalid("realm_id", domain.CodeRequired))
		}
	} else {
		if err := c.authz.Require(ctx, authorization.Request{
			Principal:  principal,
			RealmID:    realmID,
			EntityType: c.entityType,
			Operation:  authorization.Read,
		}); err != nil {
			return nil, c.fail(span, err)
		}
		opts = append([]option.QueryOption{option.WithRealmID(realmID)}, opts...)
	}

	rows, err := c.repo.Find(ctx, opts...)
	if err != nil {
		return nil, c.fail(span, err)
	}
	return rows, nil
}

func (c *Collection[T]) authorize(ctx context.Context, tx *gorm.DB, scope Scope, op authorization.Operation, target string) error {
	realmID := strings.TrimSpace(scope.RealmID)
	if realmID == "" {
		realmID = target
	}
	return c.authz.WithTx(tx).Require(ctx, authorization.Request{
		Principal:     scope.Principal,
		RealmID:       realmID,
		EntityType:    c.entityType,
		Operation:     op,
		TargetRealmID: target,
	})
}

func (c *Collection[T]) check(ctx context.Context, tx *gorm.DB, op authorization.Operation, entity *T) error {
	if c.validate == nil {
		return nil
	}
	return c.validate(ctx, tx, op, entity)
}

type changePayload struct {
	EntityType string `json:"entity_type"`
	ID         string `json:"id"`
	Data       any    `json:"data"`
}

func (c *Collection[T]) publish(ctx context.Context, tx *gorm.DB, topic string, entity *T) error {
	_, err := c.outbox.WithTx(tx).Publish(ctx, topic, (*entity).RealmKey(), changePayload{
		EntityType: string(c.entityType),
		ID:         formatID((*entity).Key()),
		Data:       entity,
	})
	return err
}

func (c *Collection[T]) lock(realmID string) func() {
	if c.bound || c.locks == nil {
		return func() {}
	}
	start := time.Now()
	unlock := c.locks.Lock(realmID + ":" + string(c.entityType))
	c.metrics.RecordLockWait(context.Background(), lock.BackendLocal, time.Since(start))
	return unlock
}

func (c *Collection[T]) mutated(ctx context.Context, op authorization.Operation, entity *T) {
	c.metrics.RecordEntityMutation(ctx, string(c.entityType), op.String())
	c.log.Debug("entity mutated",
		zap.String("operation", op.String()),
		zap.String("realm_id", (*entity).RealmKey()),
		zap.Int64("id", (*entity).Key()),
	)
}

func (c *Collection[T]) start(ctx context.Context, name, realmID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("entity.type", string(c.entityType))}
	if realmID != "" {
		attrs = append(attrs, attribute.String("realm.id", realmID))
	}
	return c.tracer.Start(ctx, "entity."+name, trace.WithAttributes(attrs...))
}

func (c *Collection[T]) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
