package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	"github.com/smallbiznis/bazaar/internal/identity"
	membershipdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	"github.com/smallbiznis/bazaar/internal/observability/metrics"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	Realms   realmdomain.Service
	Members  membershipdomain.Service
	Metrics  *metrics.Metrics `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	realms   realmdomain.Service
	members  membershipdomain.Service
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

// NewEnforcer loads the capability table into a casbin enforcer persisted in
// casbin_rule.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	return NewEnforcerWithTable(db, DefaultTable)
}

func NewEnforcerWithTable(db *gorm.DB, table Table) (*casbin.SyncedEnforcer, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := syncPolicies(enforcer, table); err != nil {
		return nil, err
	}
	if err := rejectPublicWrites(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		realms:   p.Realms,
		members:  p.Members,
		metrics:  p.Metrics,
		tracer:   otel.Tracer("bazaar/authorization"),
	}
}

func (s *ServiceImpl) WithTx(tx *gorm.DB) Service {
	clone := *s
	clone.realms = s.realms.WithTx(tx)
	clone.members = s.members.WithTx(tx)
	return &clone
}

func (s *ServiceImpl) Authorize(ctx context.Context, req Request) (Decision, error) {
	ctx, span := s.tracer.Start(ctx, "authorization.Authorize", trace.WithAttributes(
		attribute.String("realm.id", req.RealmID),
		attribute.String("entity.type", string(req.EntityType)),
		attribute.String("operation", req.Operation.String()),
	))
	defer span.End()

	decision, realmType, err := s.decide(ctx, req)
	if err != nil {
		span.RecordError(err)
		return Decision{}, err
	}

	s.metrics.RecordAuthorization(ctx, string(realmType), string(req.EntityType), req.Operation.String(), decision.Allowed, string(decision.Reason))
	span.SetAttributes(attribute.Bool("allowed", decision.Allowed))
	if !decision.Allowed {
		actorType, actorID := req.Principal.Subject()
		s.log.Debug("authorization denied",
			zap.String("actor_type", actorType),
			zap.String("actor_id", actorID),
			zap.String("realm_id", req.RealmID),
			zap.String("entity_type", string(req.EntityType)),
			zap.String("operation", req.Operation.String()),
			zap.String("reason", string(decision.Reason)),
		)
	}
	return decision, nil
}

func (s *ServiceImpl) decide(ctx context.Context, req Request) (Decision, realmdomain.Type, error) {
	realmID := strings.TrimSpace(req.RealmID)
	if realmID == "" {
		return Decision{}, "", ErrInvalidRealm
	}
	if req.EntityType == "" {
		return Decision{}, "", ErrInvalidObject
	}
	if !req.Operation.IsOperation() {
		return Decision{}, "", ErrInvalidOperation
	}

	target := strings.TrimSpace(req.TargetRealmID)
	if target != "" && target != realmID {
		return Deny(ReasonRealmMismatch), "", nil
	}

	realm, err := s.realms.Get(ctx, realmID)
	if err != nil {
		return Decision{}, "", err
	}
	dom := realmDomain(realm.Type)

	// Public grants are only ever consulted for reads.
	if req.Operation == Read {
		allowed, err := s.enforce(publicSubject, dom, req.EntityType, Read)
		if err != nil {
			return Decision{}, realm.Type, err
		}
		if allowed {
			return Allow(), realm.Type, nil
		}
	}

	if req.Principal.IsSystem() {
		return Allow(), realm.Type, nil
	}
	if req.Principal == nil || req.Principal.UserID == 0 {
		return Deny(ReasonNotAMember), realm.Type, nil
	}

	roles, err := s.members.RolesOf(ctx, req.Principal.UserID, realmID)
	if err != nil {
		return Decision{}, realm.Type, err
	}
	if len(roles) == 0 {
		return Deny(ReasonNotAMember), realm.Type, nil
	}

	for _, role := range roles {
		allowed, err := s.enforce(roleSubject(role), dom, req.EntityType, req.Operation)
		if err != nil {
			return Decision{}, realm.Type, err
		}
		if allowed {
			return Allow(), realm.Type, nil
		}
	}
	return Deny(ReasonInsufficientRole), realm.Type, nil
}

func (s *ServiceImpl) enforce(subject, dom string, entity EntityType, op Operation) (bool, error) {
	return s.enforcer.Enforce(subject, dom, string(entity), op.String())
}

func (s *ServiceImpl) Require(ctx context.Context, req Request) error {
	decision, err := s.Authorize(ctx, req)
	if err != nil {
		return err
	}
	if decision.Allowed {
		return nil
	}
	return &PermissionDeniedError{
		Reason:     decision.Reason,
		RealmID:    req.RealmID,
		EntityType: req.EntityType,
		Operation:  req.Operation,
		Anonymous:  req.Principal == nil,
	}
}

func (s *ServiceImpl) Capabilities(ctx context.Context, principal *identity.Principal, realmID string, entityType EntityType) (Capability, error) {
	realm, err := s.realms.Get(ctx, realmID)
	if err != nil {
		return None, err
	}
	if principal.IsSystem() {
		return CRUD, nil
	}

	subjects := []string{publicSubject}
	if principal != nil && principal.UserID != 0 {
		roles, err := s.members.RolesOf(ctx, principal.UserID, realmID)
		if err != nil {
			return None, err
		}
		for _, role := range roles {
			subjects = append(subjects, roleSubject(role))
		}
	}

	dom := realmDomain(realm.Type)
	caps := None
	for _, subject := range subjects {
		for _, op := range operations {
			if subject == publicSubject && op != Read {
				continue
			}
			allowed, err := s.enforce(subject, dom, entityType, op)
			if err != nil {
				return None, err
			}
			if allowed {
				caps |= op
			}
		}
	}
	return caps, nil
}

// syncPolicies makes the persisted rules equal to the table: rows the table
// does not grant are removed and missing grants are added.
func syncPolicies(enforcer *casbin.SyncedEnforcer, table Table) error {
	want := make(map[string][]string)
	for _, policy := range table.Policies() {
		if len(policy) < 4 {
			continue
		}
		want[policyKey(policy)] = policy
	}

	current, err := enforcer.GetPolicy()
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(current))
	var stale [][]string
	for _, row := range current {
		key := policyKey(row)
		if _, ok := want[key]; !ok {
			stale = append(stale, row)
			continue
		}
		have[key] = struct{}{}
	}
	if len(stale) > 0 {
		if _, err := enforcer.RemovePolicies(stale); err != nil {
			return fmt.Errorf("remove stale policies: %w", err)
		}
	}

	var missing [][]string
	for key, policy := range want {
		if _, ok := have[key]; !ok {
			missing = append(missing, policy)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return policyKey(missing[i]) < policyKey(missing[j]) })
	if len(missing) > 0 {
		if _, err := enforcer.AddPolicies(missing); err != nil {
			return fmt.Errorf("seed policies: %w", err)
		}
	}
	return nil
}

func policyKey(row []string) string {
	return strings.Join(row, "|")
}

// rejectPublicWrites fails when persisted rules grant anything but read to
// the public subject.
func rejectPublicWrites(enforcer *casbin.SyncedEnforcer) error {
	rows, err := enforcer.GetFilteredPolicy(0, publicSubject)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if len(row) >= 4 && row[3] != Read.String() {
			return fmt.Errorf("%w: %v", ErrPublicWrite, row)
		}
	}
	return nil
}
