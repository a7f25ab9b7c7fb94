package authorization

import (
	"errors"
	"fmt"
)

var (
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidActor     = errors.New("invalid_actor")
	ErrInvalidObject    = errors.New("invalid_object")
	ErrInvalidOperation = errors.New("invalid_operation")
	ErrInvalidRealm     = errors.New("invalid_realm")
	ErrPublicWrite      = errors.New("public_write_grant")
	ErrInvalidTable     = errors.New("invalid_capability_table")
)

type Reason string

const (
	ReasonNotAMember       Reason = "not_a_member"
	ReasonInsufficientRole Reason = "insufficient_role"
	ReasonRealmMismatch    Reason = "realm_mismatch"
)

// Decision is the outcome of one authorization request.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func Allow() Decision { return Decision{Allowed: true} }

func Deny(reason Reason) Decision { return Decision{Reason: reason} }

// PermissionDeniedError carries the deny reason to callers. It matches
// ErrForbidden with errors.Is.
type PermissionDeniedError struct {
	Reason     Reason
	RealmID    string
	EntityType EntityType
	Operation  Operation
	Anonymous  bool
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s (%s %s in %s)", e.Reason, e.Operation, e.EntityType, e.RealmID)
}

func (e *PermissionDeniedError) Is(target error) bool {
	return target == ErrForbidden
}

func (e *PermissionDeniedError) DenyReason() string {
	return string(e.Reason)
}

// ReasonOf extracts the deny reason from err, if any.
func ReasonOf(err error) (Reason, bool) {
	var denied *PermissionDeniedError
	if errors.As(err, &denied) {
		return denied.Reason, true
	}
	return "", false
}
