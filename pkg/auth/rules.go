package auth

import (
	"fmt"

	"github.com/platinummonkey/ledgerlock/pkg/errs"
)

// ValidateRoleTransition checks whether a role-update request is allowed.
//
// Promoting anyone to owner through the role-update path is forbidden;
// ownership changes only happen through the dedicated transfer operation.
// Any change touching an owner role requires the actor to be an owner.
func ValidateRoleTransition(current, next, actor Role) error {
	if !next.Valid() {
		return fmt.Errorf("%w: unknown role %q", errs.ErrValidation, next)
	}
	if next == RoleOwner {
		return fmt.Errorf("%w: use ownership transfer to make someone owner", errs.ErrValidation)
	}
	if current == RoleOwner && actor != RoleOwner {
		return fmt.Errorf("%w: only owners can modify owner roles", errs.ErrInsufficientRole)
	}
	return nil
}

// CanManageMember checks whether a member with managerRole may modify or
// remove a member with targetRole.
//
// Owners manage everyone except other owners (self excepted, so an owner can
// demote themselves). Admins manage members and viewers only.
func CanManageMember(managerRole, targetRole Role, sameUser bool) error {
	switch managerRole {
	case RoleOwner:
		if targetRole == RoleOwner && !sameUser {
			return fmt.Errorf("%w: cannot modify another owner", errs.ErrInsufficientRole)
		}
		return nil
	case RoleAdmin:
		if targetRole == RoleOwner || targetRole == RoleAdmin {
			return fmt.Errorf("%w: admins cannot modify owners or other admins", errs.ErrInsufficientRole)
		}
		return nil
	default:
		return fmt.Errorf("%w: insufficient permissions to manage members", errs.ErrInsufficientRole)
	}
}
