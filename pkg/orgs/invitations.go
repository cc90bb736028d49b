package orgs

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
	"github.com/platinummonkey/ledgerlock/pkg/notify"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

// InvitationTTL is how long an invitation stays redeemable.
const InvitationTTL = 7 * 24 * time.Hour

func generateInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CreateInvitation invites an email address to join an organization.
// Admin only. The invited role can never be owner. wrappedOrgKey is the
// organization key wrapped for the invitee by the inviting client.
func (s *PostgresService) CreateInvitation(ctx context.Context, actor *auth.User, orgID uuid.UUID, email string, role auth.Role, wrappedOrgKey, message string, reqCtx auth.RequestContext) (*Invitation, error) {
	if _, err := s.RequireAdmin(ctx, orgID, actor.ID); err != nil {
		return nil, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", errs.ErrValidation)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", errs.ErrValidation, role)
	}
	if role == auth.RoleOwner {
		return nil, fmt.Errorf("%w: cannot invite as owner; transfer ownership after joining", errs.ErrValidation)
	}

	// Reject addresses that already resolve to a member or hold an
	// active invitation. Both checks are advisory; the unique index on
	// (organization_id, user_id) settles any race on accept.
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM organization_members m
			JOIN users u ON u.id = m.user_id
			WHERE m.organization_id = $1 AND LOWER(u.email) = $2
		)
	`, orgID, email).Scan(&exists)
	if err != nil {
		return nil, errs.Storage("check existing member", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s is already a member", errs.ErrConflict, email)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM organization_invitations
			WHERE organization_id = $1 AND LOWER(email) = $2
			  AND accepted_at IS NULL AND rejected_at IS NULL AND expires_at > NOW()
		)
	`, orgID, email).Scan(&exists)
	if err != nil {
		return nil, errs.Storage("check existing invitation", err)
	}
	if exists {
		return nil, fmt.Errorf("%w: %s already has a pending invitation", errs.ErrConflict, email)
	}

	token, err := generateInvitationToken()
	if err != nil {
		return nil, err
	}

	inv := &Invitation{
		ID:             uuid.New(),
		OrganizationID: orgID,
		Email:          email,
		Role:           role,
		WrappedOrgKey:  wrappedOrgKey,
		InvitedBy:      actor.ID,
		Token:          token,
		Message:        message,
		ExpiresAt:      time.Now().UTC().Add(InvitationTTL),
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO organization_invitations
			(id, organization_id, email, role, wrapped_org_key, invited_by, token, message, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`, inv.ID, inv.OrganizationID, inv.Email, inv.Role, inv.WrappedOrgKey,
		inv.InvitedBy, inv.Token, inv.Message, inv.ExpiresAt).Scan(&inv.CreatedAt)
	if err != nil {
		return nil, errs.Storage("create invitation", err)
	}
	observability.InvitationEvents.WithLabelValues("created").Inc()

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: &orgID,
		UserID:         &actor.ID,
		Action:         audit.ActionMemberInvited,
		ResourceType:   audit.ResourceInvitation,
		ResourceID:     &inv.ID,
		Details:        map[string]any{"email": email, "role": string(role)},
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})

	// Notification failure is logged but never surfaced; the invitation
	// already exists and can be redeemed regardless.
	if org, err := s.GetOrganization(ctx, orgID); err == nil {
		notice := notify.Invitation{
			To:               email,
			OrganizationName: org.Name,
			InviterEmail:     actor.Email,
			Role:             string(role),
			Token:            token,
			Message:          message,
			ExpiresAt:        inv.ExpiresAt,
		}
		if err := s.notifier.SendInvitation(ctx, notice); err != nil {
			s.logger.WithError(err).WithField("invitation_id", inv.ID.String()).Warn("failed to send invitation notification")
		}
	}

	return inv, nil
}

func scanInvitation(row *sql.Row) (*Invitation, error) {
	inv := &Invitation{}
	var message sql.NullString
	err := row.Scan(
		&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.WrappedOrgKey,
		&inv.InvitedBy, &inv.Token, &message, &inv.ExpiresAt, &inv.CreatedAt,
		&inv.AcceptedAt, &inv.RejectedAt,
	)
	if err != nil {
		return nil, err
	}
	if message.Valid {
		inv.Message = message.String
	}
	return inv, nil
}

const invitationColumns = `id, organization_id, email, role, wrapped_org_key, invited_by, token, message, expires_at, created_at, accepted_at, rejected_at`

// VerifyToken resolves an invitation token to a pending invitation. The
// failure modes are checked in a fixed order so callers (and users) get
// the most specific answer: unknown token, then already accepted, then
// rejected, then expired.
func (s *PostgresService) VerifyToken(ctx context.Context, token string) (*Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM organization_invitations WHERE token = $1`, token))
	if err == sql.ErrNoRows {
		return nil, errs.ErrInvitationNotFound
	}
	if err != nil {
		return nil, errs.Storage("verify invitation token", err)
	}
	switch inv.Status(time.Now().UTC()) {
	case InvitationAccepted:
		return nil, errs.ErrInvitationAccepted
	case InvitationRejected:
		return nil, errs.ErrInvitationRejected
	case InvitationExpired:
		return nil, errs.ErrInvitationExpired
	}
	return inv, nil
}

// AcceptInvitation redeems a token for the authenticated user. The token
// must be pending and bound to the accepter's email address.
// wrappedOrgKey is required: the organization key re-wrapped by the
// accepter for their own use. The asymmetrically-wrapped copy staged at
// invite time never becomes the membership key.
func (s *PostgresService) AcceptInvitation(ctx context.Context, accepter *auth.User, token, wrappedOrgKey string, reqCtx auth.RequestContext) (*Membership, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Storage("begin accept invitation", err)
	}
	defer tx.Rollback()

	inv, err := scanInvitation(tx.QueryRowContext(ctx,
		`SELECT `+invitationColumns+` FROM organization_invitations WHERE token = $1 FOR UPDATE`, token))
	if err == sql.ErrNoRows {
		return nil, errs.ErrInvitationNotFound
	}
	if err != nil {
		return nil, errs.Storage("lock invitation", err)
	}
	switch inv.Status(time.Now().UTC()) {
	case InvitationAccepted:
		return nil, errs.ErrInvitationAccepted
	case InvitationRejected:
		return nil, errs.ErrInvitationRejected
	case InvitationExpired:
		return nil, errs.ErrInvitationExpired
	}
	if !strings.EqualFold(inv.Email, accepter.Email) {
		return nil, fmt.Errorf("%w: invitation was issued to a different email address", errs.ErrAccessDenied)
	}
	if wrappedOrgKey == "" {
		return nil, fmt.Errorf("%w: wrapped organization key is required", errs.ErrValidation)
	}

	m := &Membership{
		ID:             uuid.New(),
		OrganizationID: inv.OrganizationID,
		UserID:         accepter.ID,
		Role:           inv.Role,
		WrappedOrgKey:  wrappedOrgKey,
		InvitedBy:      &inv.InvitedBy,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO organization_members (id, organization_id, user_id, role, wrapped_org_key, invited_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (organization_id, user_id) DO NOTHING
		RETURNING joined_at
	`, m.ID, m.OrganizationID, m.UserID, m.Role, m.WrappedOrgKey, m.InvitedBy).Scan(&m.JoinedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: already a member of this organization", errs.ErrConflict)
	}
	if err != nil {
		return nil, errs.Storage("create membership", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE organization_invitations SET accepted_at = NOW() WHERE id = $1`, inv.ID); err != nil {
		return nil, errs.Storage("mark invitation accepted", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Storage("commit accept invitation", err)
	}
	observability.InvitationEvents.WithLabelValues("accepted").Inc()

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: &inv.OrganizationID,
		UserID:         &accepter.ID,
		Action:         audit.ActionMemberJoined,
		ResourceType:   audit.ResourceMember,
		ResourceID:     &m.ID,
		Details:        map[string]any{"role": string(inv.Role), "invitation_id": inv.ID.String()},
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})
	return m, nil
}

// RejectInvitation declines a pending invitation. Same token and email
// binding rules as accept; a rejected invitation can never be redeemed
// later.
func (s *PostgresService) RejectInvitation(ctx context.Context, rejecter *auth.User, token string, reqCtx auth.RequestContext) error {
	inv, err := s.VerifyToken(ctx, token)
	if err != nil {
		return err
	}
	if !strings.EqualFold(inv.Email, rejecter.Email) {
		return fmt.Errorf("%w: invitation was issued to a different email address", errs.ErrAccessDenied)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE organization_invitations SET rejected_at = NOW()
		WHERE id = $1 AND accepted_at IS NULL AND rejected_at IS NULL
	`, inv.ID)
	if err != nil {
		return errs.Storage("reject invitation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent accept or reject.
		return fmt.Errorf("%w: invitation is no longer pending", errs.ErrConflict)
	}
	observability.InvitationEvents.WithLabelValues("rejected").Inc()

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: &inv.OrganizationID,
		UserID:         &rejecter.ID,
		Action:         audit.ActionInvitationRejected,
		ResourceType:   audit.ResourceInvitation,
		ResourceID:     &inv.ID,
		Details:        map[string]any{"email": inv.Email},
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})
	return nil
}

// CancelInvitation hard-deletes an invitation before it is redeemed.
// Admin only. Accepted invitations cannot be cancelled; the membership
// already exists and must be removed instead.
func (s *PostgresService) CancelInvitation(ctx context.Context, actor *auth.User, orgID, invitationID uuid.UUID, reqCtx auth.RequestContext) error {
	if _, err := s.RequireAdmin(ctx, orgID, actor.ID); err != nil {
		return err
	}

	var email string
	var acceptedAt *time.Time
	err := s.db.QueryRowContext(ctx, `
		SELECT email, accepted_at FROM organization_invitations
		WHERE id = $1 AND organization_id = $2
	`, invitationID, orgID).Scan(&email, &acceptedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: invitation %s", errs.ErrNotFound, invitationID)
	}
	if err != nil {
		return errs.Storage("get invitation", err)
	}
	if acceptedAt != nil {
		return fmt.Errorf("%w: invitation was already accepted", errs.ErrConflict)
	}

	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM organization_invitations WHERE id = $1`, invitationID); err != nil {
		return errs.Storage("cancel invitation", err)
	}
	observability.InvitationEvents.WithLabelValues("cancelled").Inc()

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: &orgID,
		UserID:         &actor.ID,
		Action:         audit.ActionInvitationCancelled,
		ResourceType:   audit.ResourceInvitation,
		ResourceID:     &invitationID,
		Details:        map[string]any{"email": email},
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})
	return nil
}

// ListInvitationsForEmail returns the pending invitations addressed to
// an email, newest first, with organization and inviter context joined
// in for display.
func (s *PostgresService) ListInvitationsForEmail(ctx context.Context, email string) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.organization_id, i.email, i.role, i.invited_by, i.message,
		       i.expires_at, i.created_at, o.name, u.email
		FROM organization_invitations i
		JOIN organizations o ON o.id = i.organization_id
		JOIN users u ON u.id = i.invited_by
		WHERE LOWER(i.email) = LOWER($1)
		  AND i.accepted_at IS NULL AND i.rejected_at IS NULL AND i.expires_at > NOW()
		  AND o.deleted_at IS NULL
		ORDER BY i.created_at DESC
	`, email)
	if err != nil {
		return nil, errs.Storage("list invitations", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		var message sql.NullString
		if err := rows.Scan(
			&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.InvitedBy, &message,
			&inv.ExpiresAt, &inv.CreatedAt, &inv.OrganizationName, &inv.InviterEmail,
		); err != nil {
			return nil, errs.Storage("scan invitation", err)
		}
		if message.Valid {
			inv.Message = message.String
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// ListInvitationsForOrg returns all invitations for an organization,
// including redeemed and expired ones. Admin only.
func (s *PostgresService) ListInvitationsForOrg(ctx context.Context, actor *auth.User, orgID uuid.UUID) ([]*Invitation, error) {
	if _, err := s.RequireAdmin(ctx, orgID, actor.ID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.organization_id, i.email, i.role, i.invited_by, i.message,
		       i.expires_at, i.created_at, i.accepted_at, i.rejected_at, u.email
		FROM organization_invitations i
		JOIN users u ON u.id = i.invited_by
		WHERE i.organization_id = $1
		ORDER BY i.created_at DESC
	`, orgID)
	if err != nil {
		return nil, errs.Storage("list organization invitations", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		var message sql.NullString
		if err := rows.Scan(
			&inv.ID, &inv.OrganizationID, &inv.Email, &inv.Role, &inv.InvitedBy, &message,
			&inv.ExpiresAt, &inv.CreatedAt, &inv.AcceptedAt, &inv.RejectedAt, &inv.InviterEmail,
		); err != nil {
			return nil, errs.Storage("scan invitation", err)
		}
		if message.Valid {
			inv.Message = message.String
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// SweepExpired hard-deletes invitations whose expiry has passed without
// being accepted or rejected. Returns the number removed. Called on a
// schedule; see the schedule package.
func (s *PostgresService) SweepExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM organization_invitations
		WHERE expires_at <= NOW() AND accepted_at IS NULL AND rejected_at IS NULL
	`)
	if err != nil {
		return 0, errs.Storage("sweep expired invitations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Storage("count swept invitations", err)
	}
	if n > 0 {
		observability.InvitationEvents.WithLabelValues("expired_swept").Add(float64(n))
	}
	return int(n), nil
}
