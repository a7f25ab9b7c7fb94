package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/bazaar/internal/authorization"
	entitydomain "github.com/smallbiznis/bazaar/internal/entity/domain"
	"github.com/smallbiznis/bazaar/internal/lock"
	memberdomain "github.com/smallbiznis/bazaar/internal/membership/domain"
	onboardingdomain "github.com/smallbiznis/bazaar/internal/onboarding/domain"
	realmdomain "github.com/smallbiznis/bazaar/internal/realm/domain"
	userdomain "github.com/smallbiznis/bazaar/internal/user/domain"
	"github.com/smallbiznis/bazaar/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Reason  string            `json:"reason,omitempty"`
	Step    string            `json:"step,omitempty"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var failure *onboardingdomain.OnboardingFailure
	if errors.As(err, &failure) {
		status, payload := mapError(failure.Cause)
		if failure.Step == onboardingdomain.StepRollbackFailed {
			status = http.StatusInternalServerError
			payload.Type = "internal_error"
			payload.Message = "internal server error"
		}
		payload.Step = failure.Step
		return status, payload
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var fieldErr *entitydomain.ValidationError
	if errors.As(err, &fieldErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: fieldErr.Field, Code: fieldErr.Code, Message: fieldErr.Error()},
			},
		}
	}

	if code, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{Field: validationField(code), Code: code, Message: "invalid value"},
			},
		}
	}

	var denied *authorization.PermissionDeniedError
	if errors.As(err, &denied) {
		if denied.Anonymous && denied.Reason == authorization.ReasonNotAMember {
			return http.StatusUnauthorized, errorPayload{
				Type:    "unauthorized",
				Message: "unauthorized",
				Reason:  string(denied.Reason),
			}
		}
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
			Reason:  string(denied.Reason),
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden), errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, lock.ErrLocked):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "operation already in progress",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger the same type the client sees.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Reason
	if code == "" && len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	if code == "" {
		code = payload.Type
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

// validationCode maps domain input sentinels to their wire code.
func validationCode(err error) (string, bool) {
	for _, candidate := range []error{
		ErrInvalidRequest,
		pagination.ErrInvalidPageToken,
		entitydomain.ErrQueryNotIndexed,
		realmdomain.ErrInvalidType,
		realmdomain.ErrInvalidName,
		realmdomain.ErrInvalidOwner,
		memberdomain.ErrInvalidRole,
		memberdomain.ErrInvalidUser,
		memberdomain.ErrInvalidRealm,
		userdomain.ErrInvalidEmail,
		userdomain.ErrInvalidName,
		userdomain.ErrInvalidRole,
		onboardingdomain.ErrInvalidUser,
		onboardingdomain.ErrInvalidStoreName,
		authorization.ErrInvalidActor,
		authorization.ErrInvalidObject,
		authorization.ErrInvalidOperation,
		authorization.ErrInvalidRealm,
	} {
		if errors.Is(err, candidate) {
			return candidate.Error(), true
		}
	}
	return "", false
}

func validationField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "invalid_page_token":
		return "page_token"
	case "query_not_indexed":
		return "query"
	case "invalid_store_name":
		return "store_name"
	case "invalid_object":
		return "entity_type"
	case "invalid_actor", "invalid_user":
		return "user_id"
	case "invalid_realm_type", "invalid_realm_name", "invalid_realm_owner":
		return "realm"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, realmdomain.ErrDuplicateRealm),
		errors.Is(err, entitydomain.ErrDuplicateStore),
		errors.Is(err, userdomain.ErrEmailTaken),
		errors.Is(err, onboardingdomain.ErrAlreadyVendor):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, realmdomain.ErrDuplicateRealm):
		return "realm already exists"
	case errors.Is(err, entitydomain.ErrDuplicateStore):
		return "realm already has a store"
	case errors.Is(err, userdomain.ErrEmailTaken):
		return "email already registered"
	case errors.Is(err, onboardingdomain.ErrAlreadyVendor):
		return "user already owns a shop"
	default:
		return "conflict"
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, realmdomain.ErrNotFound),
		errors.Is(err, memberdomain.ErrNotFound),
		errors.Is(err, userdomain.ErrNotFound),
		errors.Is(err, entitydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}
