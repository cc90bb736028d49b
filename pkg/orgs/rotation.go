package orgs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

// RotationRequest carries the replacement key material for one rotation.
// The client generates a fresh organization key, re-wraps it for every
// member, and re-encrypts every account DEK under it; the server never
// sees any of it unwrapped.
type RotationRequest struct {
	// MemberKeys maps user ID to the new wrapped organization key.
	MemberKeys map[uuid.UUID]string `json:"member_keys"`
	// AccountKeys maps account ID to the new encrypted DEK.
	AccountKeys map[uuid.UUID]string `json:"account_keys"`
}

// RotateKeys atomically replaces wrapped organization keys and account
// DEKs. Owner only. Every update is scoped to the organization, so
// entries for rows that were removed (or belong elsewhere) are skipped
// rather than failing the rotation; the result reports what actually
// changed. All writes and the audit entry share one transaction.
func (s *PostgresService) RotateKeys(ctx context.Context, actor *auth.User, orgID uuid.UUID, req RotationRequest, reqCtx auth.RequestContext) (*RotationResult, error) {
	if _, err := s.RequireOwner(ctx, orgID, actor.ID); err != nil {
		return nil, err
	}
	if len(req.MemberKeys) == 0 {
		return nil, fmt.Errorf("%w: rotation must include at least the owner's wrapped key", errs.ErrValidation)
	}
	if _, ok := req.MemberKeys[actor.ID]; !ok {
		return nil, fmt.Errorf("%w: rotation is missing the owner's own wrapped key", errs.ErrValidation)
	}

	start := time.Now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Storage("begin key rotation", err)
	}
	defer tx.Rollback()

	result := &RotationResult{}
	for userID, wrappedKey := range req.MemberKeys {
		res, err := tx.ExecContext(ctx, `
			UPDATE organization_members SET wrapped_org_key = $1
			WHERE organization_id = $2 AND user_id = $3
		`, wrappedKey, orgID, userID)
		if err != nil {
			return nil, errs.Storage("rotate member key", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.MembersUpdated++
		}
	}
	for accountID, encryptedDEK := range req.AccountKeys {
		res, err := tx.ExecContext(ctx, `
			UPDATE accounts SET encrypted_dek = $1, updated_at = NOW()
			WHERE id = $2 AND organization_id = $3 AND deleted_at IS NULL
		`, encryptedDEK, accountID, orgID)
		if err != nil {
			return nil, errs.Storage("rotate account key", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.AccountsUpdated++
		}
	}

	if err := s.recorder.RecordTx(ctx, tx, &audit.Entry{
		OrganizationID: &orgID,
		UserID:         &actor.ID,
		Action:         audit.ActionKeysRotated,
		ResourceType:   audit.ResourceOrganization,
		ResourceID:     &orgID,
		Details: map[string]any{
			"members_updated":  result.MembersUpdated,
			"accounts_updated": result.AccountsUpdated,
		},
		IPAddress: reqCtx.IPAddress,
		UserAgent: reqCtx.UserAgent,
	}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Storage("commit key rotation", err)
	}
	observability.KeyRotationDuration.Observe(time.Since(start).Seconds())

	// Wrapped keys changed for everyone; cached memberships are stale.
	if s.cache != nil {
		s.cache.InvalidateOrg(ctx, orgID)
	}
	return result, nil
}
