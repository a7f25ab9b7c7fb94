// Package domain holds the vendor onboarding contracts.
package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
)

type State string

const (
	StateBuyer      State = "buyer"
	StateOnboarding State = "onboarding"
	StateVendor     State = "vendor"
)

// Step names reported in OnboardingFailure.
const (
	StepAcquireLock    = "acquire_lock"
	StepDeriveRealmID  = "derive_realm_id"
	StepCreateRealm    = "create_realm"
	StepCreateStore    = "create_store"
	StepGrantVendor    = "grant_vendor"
	StepSetRole        = "set_role"
	StepEmitEvent      = "emit_event"
	StepRollbackFailed = "rollback_failed"
)

type Service interface {
	// BecomeVendor promotes a buyer into the owner of a new shop realm and
	// its store. Either every step lands or none does.
	BecomeVendor(ctx context.Context, req Request) (*Vendor, error)
	State(ctx context.Context, userID snowflake.ID) (State, error)
}

type Request struct {
	UserID           snowflake.ID `json:"user_id"`
	StoreName        string       `json:"store_name"`
	StoreDescription string       `json:"store_description"`
	StoreImage       string       `json:"store_image"`
}

type Vendor struct {
	RealmID string       `json:"realm_id"`
	StoreID snowflake.ID `json:"store_id"`
}

var (
	ErrAlreadyVendor    = errors.New("already_vendor")
	ErrInvalidUser      = errors.New("invalid_user")
	ErrInvalidStoreName = errors.New("invalid_store_name")
)

// OnboardingFailure names the step that failed. Step is rollback_failed when
// a compensation could not be applied.
type OnboardingFailure struct {
	Step  string
	Cause error
}

func (e *OnboardingFailure) Error() string {
	return fmt.Sprintf("onboarding failed at %s: %v", e.Step, e.Cause)
}

func (e *OnboardingFailure) Unwrap() error { return e.Cause }

func Fail(step string, cause error) error {
	return &OnboardingFailure{Step: step, Cause: cause}
}
