package service

import (
	"context"
	"errors"

	"github.com/smallbiznis/bazaar/internal/observability/metrics"
	"github.com/smallbiznis/bazaar/internal/onboarding/domain"
	"gorm.io/gorm"
)

type compensation struct {
	step string
	undo func(ctx context.Context, tx *gorm.DB) error
}

// saga runs steps inside one transaction. Each step executes in its own
// savepoint so the transaction stays usable for compensations after a step
// fails.
type saga struct {
	tx      *gorm.DB
	metrics *metrics.OnboardingMetrics
	undo    []compensation
}

func newSaga(tx *gorm.DB, m *metrics.OnboardingMetrics) *saga {
	return &saga{tx: tx, metrics: m}
}

// run executes do and registers undo for it. On failure the already
// registered compensations run in reverse.
func (s *saga) run(ctx context.Context, step string, do func(ctx context.Context, tx *gorm.DB) error, undo func(ctx context.Context, tx *gorm.DB) error) error {
	err := s.tx.Transaction(func(stx *gorm.DB) error {
		return do(ctx, stx)
	})
	if err != nil {
		s.metrics.IncStepError(step, err)
		return s.abort(ctx, step, err)
	}
	if undo != nil {
		s.undo = append(s.undo, compensation{step: step, undo: undo})
	}
	return nil
}

func (s *saga) abort(ctx context.Context, step string, cause error) error {
	for i := len(s.undo) - 1; i >= 0; i-- {
		c := s.undo[i]
		s.metrics.IncCompensation(c.step)
		err := s.tx.Transaction(func(stx *gorm.DB) error {
			return c.undo(ctx, stx)
		})
		if err != nil {
			return domain.Fail(domain.StepRollbackFailed, errors.Join(domain.Fail(step, cause), err))
		}
	}
	s.undo = nil
	return domain.Fail(step, cause)
}
