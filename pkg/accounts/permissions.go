package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
)

// ListPermissions returns the explicit grants on an account with grantee
// emails joined in. Requires full access.
func (s *PostgresService) ListPermissions(ctx context.Context, actor *auth.User, accountID uuid.UUID) ([]*AccountPermission, error) {
	if _, err := s.ResolveAccess(ctx, actor.ID, accountID, auth.PermissionFull); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.account_id, p.user_id, p.permission, p.granted_by, p.created_at, p.updated_at, u.email
		FROM account_permissions p
		JOIN users u ON u.id = p.user_id
		WHERE p.account_id = $1
		ORDER BY p.created_at ASC
	`, accountID)
	if err != nil {
		return nil, errs.Storage("list account permissions", err)
	}
	defer rows.Close()

	var perms []*AccountPermission
	for rows.Next() {
		p := &AccountPermission{}
		if err := rows.Scan(&p.ID, &p.AccountID, &p.UserID, &p.Permission, &p.GrantedBy, &p.CreatedAt, &p.UpdatedAt, &p.UserEmail); err != nil {
			return nil, errs.Storage("scan account permission", err)
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// SetPermission grants or updates an explicit permission for a user on
// an organizational account. Requires full access on the account; the
// grantee must be a member of the account's organization. Upserts: a
// second grant for the same pair replaces the first.
func (s *PostgresService) SetPermission(ctx context.Context, actor *auth.User, accountID, granteeID uuid.UUID, permission auth.Permission, reqCtx auth.RequestContext) (*AccountPermission, error) {
	if !permission.Valid() {
		return nil, fmt.Errorf("%w: unknown permission %q", errs.ErrValidation, permission)
	}
	access, err := s.ResolveAccess(ctx, actor.ID, accountID, auth.PermissionFull)
	if err != nil {
		return nil, err
	}
	if access.Account.Personal() {
		return nil, fmt.Errorf("%w: personal accounts have no per-user permissions", errs.ErrValidation)
	}
	// Grantee must belong to the organization; a grant to an outsider
	// would be unreachable by the resolver anyway.
	if _, err := s.members.LookupMembership(ctx, *access.Account.OrganizationID, granteeID); err != nil {
		return nil, err
	}

	p := &AccountPermission{
		ID:         uuid.New(),
		AccountID:  accountID,
		UserID:     granteeID,
		Permission: permission,
		GrantedBy:  &actor.ID,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO account_permissions (id, account_id, user_id, permission, granted_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (account_id, user_id)
		DO UPDATE SET permission = EXCLUDED.permission, granted_by = EXCLUDED.granted_by, updated_at = NOW()
		RETURNING id, created_at, updated_at
	`, p.ID, p.AccountID, p.UserID, p.Permission, p.GrantedBy).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, errs.Storage("set account permission", err)
	}

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: access.Account.OrganizationID,
		UserID:         &actor.ID,
		Action:         audit.ActionPermissionGranted,
		ResourceType:   audit.ResourcePermission,
		ResourceID:     &p.ID,
		Details: map[string]any{
			"account_id": accountID.String(),
			"grantee_id": granteeID.String(),
			"permission": string(permission),
		},
		IPAddress: reqCtx.IPAddress,
		UserAgent: reqCtx.UserAgent,
	})
	return p, nil
}

// RemovePermission deletes an explicit grant, returning the account to
// role and default-permission resolution for that user. Requires full
// access.
func (s *PostgresService) RemovePermission(ctx context.Context, actor *auth.User, accountID, granteeID uuid.UUID, reqCtx auth.RequestContext) error {
	access, err := s.ResolveAccess(ctx, actor.ID, accountID, auth.PermissionFull)
	if err != nil {
		return err
	}

	var permID uuid.UUID
	err = s.db.QueryRowContext(ctx, `
		DELETE FROM account_permissions
		WHERE account_id = $1 AND user_id = $2
		RETURNING id
	`, accountID, granteeID).Scan(&permID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: no permission for user %s on account %s", errs.ErrNotFound, granteeID, accountID)
	}
	if err != nil {
		return errs.Storage("remove account permission", err)
	}

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: access.Account.OrganizationID,
		UserID:         &actor.ID,
		Action:         audit.ActionPermissionRevoked,
		ResourceType:   audit.ResourcePermission,
		ResourceID:     &permID,
		Details: map[string]any{
			"account_id": accountID.String(),
			"grantee_id": granteeID.String(),
		},
		IPAddress: reqCtx.IPAddress,
		UserAgent: reqCtx.UserAgent,
	})
	return nil
}
