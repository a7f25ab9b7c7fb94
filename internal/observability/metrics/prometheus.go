package metrics

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	OnboardingOutcomeSucceeded     = "succeeded"
	OnboardingOutcomeFailed        = "failed"
	OnboardingOutcomeRollbackError = "rollback_failed"
	OnboardingOutcomeAlreadyVendor = "already_vendor"
)

const (
	FailureReasonDeadlineExceeded     = "deadline_exceeded"
	FailureReasonForbidden            = "forbidden"
	FailureReasonUniqueViolation      = "unique_violation"
	FailureReasonDBLockTimeout        = "db_lock_timeout"
	FailureReasonSerializationFailure = "serialization_failure"
	FailureReasonLockContention       = "lock_contention"
	FailureReasonUnknown              = "unknown"
)

// deniedError is satisfied by authorization denials without importing the
// authorization package.
type deniedError interface {
	DenyReason() string
}

// lockError is satisfied by lock acquisition failures.
type lockError interface {
	LockKey() string
}

// OnboardingMetrics tracks vendor onboarding workflow health.
type OnboardingMetrics struct {
	runs        *prometheus.CounterVec
	duration    prometheus.Observer
	stepErrors  *prometheus.CounterVec
	compensated *prometheus.CounterVec
}

// NewOnboardingMetrics registers onboarding collectors on the registerer.
func NewOnboardingMetrics(registerer prometheus.Registerer, cfg Config) *OnboardingMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "bazaar_onboarding_runs_total",
		Help:        "Vendor onboarding runs by outcome.",
		ConstLabels: constLabels,
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "bazaar_onboarding_duration_seconds",
		Help:        "Vendor onboarding latency including lock wait.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	})
	stepErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "bazaar_onboarding_step_errors_total",
		Help:        "Vendor onboarding step failures by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"step", "reason"})
	compensated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "bazaar_onboarding_compensations_total",
		Help:        "Compensating actions executed after a failed onboarding step.",
		ConstLabels: constLabels,
	}, []string{"step"})

	registerer.MustRegister(runs, duration, stepErrors, compensated)

	return &OnboardingMetrics{
		runs:        runs,
		duration:    duration,
		stepErrors:  stepErrors,
		compensated: compensated,
	}
}

// ObserveRun records the outcome and latency of one onboarding call.
func (m *OnboardingMetrics) ObserveRun(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
	if elapsed < 0 {
		elapsed = 0
	}
	m.duration.Observe(elapsed.Seconds())
}

// IncStepError classifies and counts a failed step.
func (m *OnboardingMetrics) IncStepError(step string, err error) {
	if m == nil || err == nil {
		return
	}
	m.stepErrors.WithLabelValues(step, ClassifyFailureReason(err)).Inc()
}

// IncCompensation counts one executed compensation.
func (m *OnboardingMetrics) IncCompensation(step string) {
	if m == nil {
		return
	}
	m.compensated.WithLabelValues(step).Inc()
}

// ClassifyFailureReason maps an error onto a bounded reason label.
func ClassifyFailureReason(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureReasonDeadlineExceeded
	}
	var denied deniedError
	if errors.As(err, &denied) {
		return FailureReasonForbidden
	}
	var locked lockError
	if errors.As(err, &locked) {
		return FailureReasonLockContention
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return FailureReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifySQLState(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifySQLState(string(pqErr.Code))
	}
	return FailureReasonUnknown
}

func classifySQLState(code string) string {
	switch code {
	case "23505":
		return FailureReasonUniqueViolation
	case "55P03":
		return FailureReasonDBLockTimeout
	case "40001":
		return FailureReasonSerializationFailure
	default:
		return FailureReasonUnknown
	}
}

// HTTPMetrics captures request counts and latency per route.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewHTTPMetrics registers HTTP collectors on the registerer.
func NewHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := constLabelsFor(cfg)

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "bazaar_http_requests_total",
		Help:        "HTTP requests by method, route and status.",
		ConstLabels: constLabels,
	}, []string{"method", "route", "status_code"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "bazaar_http_request_duration_seconds",
		Help:        "HTTP request latency by route.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"method", "route"})

	registerer.MustRegister(requests, latency)

	return &HTTPMetrics{requests: requests, latency: latency}
}

// GinMiddleware records every request against its route template.
func (m *HTTPMetrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func constLabelsFor(cfg Config) prometheus.Labels {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "bazaar"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	return prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}
}
