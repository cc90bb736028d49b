// Package errs contains sentinel errors used across layers for stable error mapping.
//
// Services return these (usually wrapped with %w and context); the API layer
// maps them to HTTP statuses. Access-denied kinds stay distinguishable
// internally but all collapse to a generic forbidden response externally.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the requested entity is absent or soft-deleted.
	ErrNotFound = errors.New("not found")

	// ErrNotAMember indicates the user has no membership in the organization.
	ErrNotAMember = errors.New("not a member of this organization")

	// ErrInsufficientRole indicates the member's organization role is below the required role.
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrInsufficientPermission indicates the resolved account permission is below the required level.
	ErrInsufficientPermission = errors.New("insufficient account permission")

	// ErrAccessDenied indicates access to a personal resource owned by someone else.
	ErrAccessDenied = errors.New("access denied")

	// ErrConflict indicates a state conflict: duplicate membership, duplicate
	// active invitation, removing the sole owner, and the like.
	ErrConflict = errors.New("conflict")

	// ErrValidation indicates a malformed role, permission, or payload value.
	ErrValidation = errors.New("validation failed")
)

// Invitation token verification failures. Each is safe to disclose to the
// token holder, so they carry distinct reasons rather than collapsing.
var (
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrInvitationAccepted = errors.New("invitation already accepted")
	ErrInvitationRejected = errors.New("invitation was rejected")
	ErrInvitationExpired  = errors.New("invitation has expired")
)

// ErrStorage wraps opaque persistence failures. The API layer surfaces these
// as a generic internal error without the underlying detail.
var ErrStorage = errors.New("storage failure")

// Storage wraps err as a storage failure with an operation label.
func Storage(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// IsAccessDenied reports whether err is any of the access-denied kinds that
// collapse to a forbidden response.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrNotAMember) ||
		errors.Is(err, ErrInsufficientRole) ||
		errors.Is(err, ErrInsufficientPermission) ||
		errors.Is(err, ErrAccessDenied)
}

// IsInvitationInvalid reports whether err is any invitation verification failure.
func IsInvitationInvalid(err error) bool {
	return errors.Is(err, ErrInvitationNotFound) ||
		errors.Is(err, ErrInvitationAccepted) ||
		errors.Is(err, ErrInvitationRejected) ||
		errors.Is(err, ErrInvitationExpired)
}
