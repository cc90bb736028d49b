package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
)

// LookupMembership fetches a user's membership row in an organization,
// consulting the cache first. Returns errs.ErrNotAMember when absent.
func (s *PostgresService) LookupMembership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error) {
	if s.cache != nil {
		if m, ok := s.cache.GetMembership(ctx, orgID, userID); ok {
			return m, nil
		}
	}

	m := &Membership{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, user_id, role, wrapped_org_key, invited_by, joined_at
		FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, userID).Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.WrappedOrgKey, &m.InvitedBy, &m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s in organization %s", errs.ErrNotAMember, userID, orgID)
	}
	if err != nil {
		return nil, errs.Storage("lookup membership", err)
	}
	if s.cache != nil {
		s.cache.SetMembership(ctx, m)
	}
	return m, nil
}

// RequireMember verifies that the organization exists and that the user
// belongs to it with at least minRole. The existence check runs first so
// a missing organization is always reported as not found, never as a
// membership failure. Pass an empty minRole to accept any member.
func (s *PostgresService) RequireMember(ctx context.Context, orgID, userID uuid.UUID, minRole auth.Role) (*Membership, error) {
	if _, err := s.GetOrganization(ctx, orgID); err != nil {
		return nil, err
	}
	m, err := s.LookupMembership(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if minRole != "" && !auth.RoleAtLeast(m.Role, minRole) {
		return nil, fmt.Errorf("%w: requires %s, has %s", errs.ErrInsufficientRole, minRole, m.Role)
	}
	return m, nil
}

// RequireAdmin is RequireMember with an admin floor.
func (s *PostgresService) RequireAdmin(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error) {
	return s.RequireMember(ctx, orgID, userID, auth.RoleAdmin)
}

// RequireOwner is RequireMember with an owner floor.
func (s *PostgresService) RequireOwner(ctx context.Context, orgID, userID uuid.UUID) (*Membership, error) {
	return s.RequireMember(ctx, orgID, userID, auth.RoleOwner)
}

// ListMembers returns all members of an organization with their email
// addresses. Any member may list.
func (s *PostgresService) ListMembers(ctx context.Context, actor *auth.User, orgID uuid.UUID) ([]*Membership, error) {
	if _, err := s.RequireMember(ctx, orgID, actor.ID, ""); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.organization_id, m.user_id, m.role, m.invited_by, m.joined_at, u.email
		FROM organization_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.joined_at ASC
	`, orgID)
	if err != nil {
		return nil, errs.Storage("list members", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		m := &Membership{}
		if err := rows.Scan(&m.ID, &m.OrganizationID, &m.UserID, &m.Role, &m.InvitedBy, &m.JoinedAt, &m.Email); err != nil {
			return nil, errs.Storage("scan member", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpdateMemberRole changes a member's role. The actor must be an admin,
// must outrank the target under the management rules, and the transition
// itself must be legal; promoting to owner goes through
// TransferOwnership instead.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, actor *auth.User, orgID, targetUserID uuid.UUID, newRole auth.Role, reqCtx auth.RequestContext) error {
	actorMembership, err := s.RequireAdmin(ctx, orgID, actor.ID)
	if err != nil {
		return err
	}
	target, err := s.LookupMembership(ctx, orgID, targetUserID)
	if err != nil {
		return err
	}
	if err := auth.CanManageMember(actorMembership.Role, target.Role, actor.ID == targetUserID); err != nil {
		return err
	}
	if err := auth.ValidateRoleTransition(target.Role, newRole, actorMembership.Role); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin role change", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE organization_members SET role = $1
		WHERE organization_id = $2 AND user_id = $3
	`, newRole, orgID, targetUserID)
	if err != nil {
		return errs.Storage("update member role", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %s in organization %s", errs.ErrNotAMember, targetUserID, orgID)
	}

	if err := s.recorder.RecordTx(ctx, tx, &audit.Entry{
		OrganizationID: &orgID,
		UserID:         &actor.ID,
		Action:         audit.ActionMemberRoleChanged,
		ResourceType:   audit.ResourceMember,
		ResourceID:     &target.ID,
		Details: map[string]any{
			"target_user_id": targetUserID.String(),
			"old_role":       string(target.Role),
			"new_role":       string(newRole),
		},
		IPAddress: reqCtx.IPAddress,
		UserAgent: reqCtx.UserAgent,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage("commit role change", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, orgID, targetUserID)
	}
	return nil
}

// RemoveMember removes a member from an organization. The owner can
// never be removed; transfer ownership first. Admins may remove members
// and viewers, the owner may remove anyone below them.
func (s *PostgresService) RemoveMember(ctx context.Context, actor *auth.User, orgID, targetUserID uuid.UUID, reqCtx auth.RequestContext) error {
	actorMembership, err := s.RequireAdmin(ctx, orgID, actor.ID)
	if err != nil {
		return err
	}
	target, err := s.LookupMembership(ctx, orgID, targetUserID)
	if err != nil {
		return err
	}
	if target.Role == auth.RoleOwner {
		return fmt.Errorf("%w: the owner cannot be removed; transfer ownership first", errs.ErrConflict)
	}
	if err := auth.CanManageMember(actorMembership.Role, target.Role, actor.ID == targetUserID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin remove member", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
	`, orgID, targetUserID)
	if err != nil {
		return errs.Storage("remove member", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %s in organization %s", errs.ErrNotAMember, targetUserID, orgID)
	}

	if err := s.recorder.RecordTx(ctx, tx, &audit.Entry{
		OrganizationID: &orgID,
		UserID:         &actor.ID,
		Action:         audit.ActionMemberRemoved,
		ResourceType:   audit.ResourceMember,
		ResourceID:     &target.ID,
		Details: map[string]any{
			"target_user_id": targetUserID.String(),
			"role":           string(target.Role),
		},
		IPAddress: reqCtx.IPAddress,
		UserAgent: reqCtx.UserAgent,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage("commit remove member", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, orgID, targetUserID)
	}
	return nil
}

// TransferOwnership demotes the current owner to admin and promotes the
// named member to owner in one transaction, locking both rows so the
// single-owner invariant holds under concurrent transfers.
func (s *PostgresService) TransferOwnership(ctx context.Context, actor *auth.User, orgID, newOwnerID uuid.UUID, reqCtx auth.RequestContext) error {
	if _, err := s.RequireOwner(ctx, orgID, actor.ID); err != nil {
		return err
	}
	if newOwnerID == actor.ID {
		return fmt.Errorf("%w: already the owner", errs.ErrConflict)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin ownership transfer", err)
	}
	defer tx.Rollback()

	// Lock the owner row and re-check the role inside the transaction;
	// the pre-check above may be stale by now.
	var ownerRole auth.Role
	err = tx.QueryRowContext(ctx, `
		SELECT role FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
		FOR UPDATE
	`, orgID, actor.ID).Scan(&ownerRole)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: user %s in organization %s", errs.ErrNotAMember, actor.ID, orgID)
	}
	if err != nil {
		return errs.Storage("lock owner membership", err)
	}
	if ownerRole != auth.RoleOwner {
		return fmt.Errorf("%w: requires %s, has %s", errs.ErrInsufficientRole, auth.RoleOwner, ownerRole)
	}

	var newOwnerMemberID uuid.UUID
	err = tx.QueryRowContext(ctx, `
		SELECT id FROM organization_members
		WHERE organization_id = $1 AND user_id = $2
		FOR UPDATE
	`, orgID, newOwnerID).Scan(&newOwnerMemberID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: user %s in organization %s", errs.ErrNotAMember, newOwnerID, orgID)
	}
	if err != nil {
		return errs.Storage("lock new owner membership", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE organization_members SET role = $1
		WHERE organization_id = $2 AND user_id = $3
	`, auth.RoleAdmin, orgID, actor.ID); err != nil {
		return errs.Storage("demote previous owner", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE organization_members SET role = $1
		WHERE organization_id = $2 AND user_id = $3
	`, auth.RoleOwner, orgID, newOwnerID); err != nil {
		return errs.Storage("promote new owner", err)
	}

	if err := s.recorder.RecordTx(ctx, tx, &audit.Entry{
		OrganizationID: &orgID,
		UserID:         &actor.ID,
		Action:         audit.ActionOwnershipTransferred,
		ResourceType:   audit.ResourceMember,
		ResourceID:     &newOwnerMemberID,
		Details: map[string]any{
			"previous_owner_id": actor.ID.String(),
			"new_owner_id":      newOwnerID.String(),
		},
		IPAddress: reqCtx.IPAddress,
		UserAgent: reqCtx.UserAgent,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage("commit ownership transfer", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, orgID, actor.ID)
		s.cache.Invalidate(ctx, orgID, newOwnerID)
	}
	return nil
}
