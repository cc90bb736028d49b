package accounts

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
	"github.com/platinummonkey/ledgerlock/pkg/orgs"
)

// MembershipLookup is the slice of the orgs service the resolver needs.
type MembershipLookup interface {
	LookupMembership(ctx context.Context, orgID, userID uuid.UUID) (*orgs.Membership, error)
}

// PostgresService implements accounts, per-account permissions, and
// encrypted transactions on PostgreSQL.
type PostgresService struct {
	db       *sql.DB
	members  MembershipLookup
	recorder audit.Recorder
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB, members MembershipLookup, recorder audit.Recorder) *PostgresService {
	return &PostgresService{db: db, members: members, recorder: recorder}
}

const accountColumns = `id, user_id, organization_id, encrypted_data, encrypted_dek, currency, encryption_version, default_permission, created_at, updated_at`

func scanAccount(row *sql.Row) (*Account, error) {
	a := &Account{}
	err := row.Scan(
		&a.ID, &a.UserID, &a.OrganizationID, &a.EncryptedData, &a.EncryptedDEK,
		&a.Currency, &a.EncryptionVersion, &a.DefaultPermission, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *PostgresService) getAccount(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 AND deleted_at IS NULL`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: account %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, errs.Storage("get account", err)
	}
	return a, nil
}

// CreateParams is the client-supplied material for a new account.
type CreateParams struct {
	OrganizationID    *uuid.UUID
	EncryptedData     string
	EncryptedDEK      string
	Currency          string
	EncryptionVersion int
	DefaultPermission auth.Permission
}

// Create makes a new account. Personal accounts need no authorization
// beyond authentication. Organizational accounts require membership with
// a role above viewer; the DEK must arrive wrapped under the
// organization key so every present and future member with access can
// unwrap it.
func (s *PostgresService) Create(ctx context.Context, actor *auth.User, params CreateParams, reqCtx auth.RequestContext) (*Account, error) {
	if params.EncryptedData == "" || params.EncryptedDEK == "" {
		return nil, fmt.Errorf("%w: encrypted payload and DEK are required", errs.ErrValidation)
	}
	if params.DefaultPermission == "" {
		params.DefaultPermission = auth.PermissionView
	}
	if !params.DefaultPermission.Valid() {
		return nil, fmt.Errorf("%w: unknown permission %q", errs.ErrValidation, params.DefaultPermission)
	}
	if params.Currency == "" {
		params.Currency = "USD"
	}
	if params.EncryptionVersion <= 0 {
		params.EncryptionVersion = 1
	}

	if params.OrganizationID != nil {
		m, err := s.members.LookupMembership(ctx, *params.OrganizationID, actor.ID)
		if err != nil {
			return nil, err
		}
		if !auth.RoleAtLeast(m.Role, auth.RoleMember) {
			return nil, fmt.Errorf("%w: requires %s, has %s", errs.ErrInsufficientRole, auth.RoleMember, m.Role)
		}
	}

	a := &Account{
		ID:                uuid.New(),
		UserID:            actor.ID,
		OrganizationID:    params.OrganizationID,
		EncryptedData:     params.EncryptedData,
		EncryptedDEK:      params.EncryptedDEK,
		Currency:          params.Currency,
		EncryptionVersion: params.EncryptionVersion,
		DefaultPermission: params.DefaultPermission,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO accounts (id, user_id, organization_id, encrypted_data, encrypted_dek, currency, encryption_version, default_permission)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`, a.ID, a.UserID, a.OrganizationID, a.EncryptedData, a.EncryptedDEK,
		a.Currency, a.EncryptionVersion, a.DefaultPermission).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, errs.Storage("create account", err)
	}

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: a.OrganizationID,
		UserID:         &actor.ID,
		Action:         audit.ActionAccountCreated,
		ResourceType:   audit.ResourceAccount,
		ResourceID:     &a.ID,
		Details:        map[string]any{"currency": a.Currency},
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})
	return a, nil
}

// Get returns an account if the caller has at least view access.
func (s *PostgresService) Get(ctx context.Context, actor *auth.User, accountID uuid.UUID) (*Account, error) {
	access, err := s.ResolveAccess(ctx, actor.ID, accountID, auth.PermissionView)
	if err != nil {
		return nil, err
	}
	return access.Account, nil
}

// ListVisible returns the union of the caller's personal accounts and
// the accounts of every organization they belong to. Per-account
// permission filtering beyond membership is left to the resolver at
// access time; listing reveals only what membership already implies.
func (s *PostgresService) ListVisible(ctx context.Context, actor *auth.User) ([]*Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE deleted_at IS NULL
		  AND (
			(organization_id IS NULL AND user_id = $1)
			OR organization_id IN (
				SELECT organization_id FROM organization_members WHERE user_id = $1
			)
		  )
		ORDER BY created_at ASC
	`, actor.ID)
	if err != nil {
		return nil, errs.Storage("list accounts", err)
	}
	defer rows.Close()

	var result []*Account
	for rows.Next() {
		a := &Account{}
		if err := rows.Scan(
			&a.ID, &a.UserID, &a.OrganizationID, &a.EncryptedData, &a.EncryptedDEK,
			&a.Currency, &a.EncryptionVersion, &a.DefaultPermission, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, errs.Storage("scan account", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// UpdateParams carries a partial account update. Nil fields are left
// unchanged.
type UpdateParams struct {
	EncryptedData     *string
	EncryptedDEK      *string
	DefaultPermission *auth.Permission
}

// Update rewrites the encrypted payload, DEK, or default permission.
// Requires edit access; changing the default permission requires full.
func (s *PostgresService) Update(ctx context.Context, actor *auth.User, accountID uuid.UUID, params UpdateParams, reqCtx auth.RequestContext) (*Account, error) {
	required := auth.PermissionEdit
	if params.DefaultPermission != nil {
		if !params.DefaultPermission.Valid() {
			return nil, fmt.Errorf("%w: unknown permission %q", errs.ErrValidation, *params.DefaultPermission)
		}
		required = auth.PermissionFull
	}
	access, err := s.ResolveAccess(ctx, actor.ID, accountID, required)
	if err != nil {
		return nil, err
	}
	a := access.Account

	if params.EncryptedData != nil {
		a.EncryptedData = *params.EncryptedData
	}
	if params.EncryptedDEK != nil {
		a.EncryptedDEK = *params.EncryptedDEK
	}
	if params.DefaultPermission != nil {
		a.DefaultPermission = *params.DefaultPermission
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE accounts
		SET encrypted_data = $1, encrypted_dek = $2, default_permission = $3, updated_at = NOW()
		WHERE id = $4 AND deleted_at IS NULL
		RETURNING updated_at
	`, a.EncryptedData, a.EncryptedDEK, a.DefaultPermission, accountID).Scan(&a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: account %s", errs.ErrNotFound, accountID)
	}
	if err != nil {
		return nil, errs.Storage("update account", err)
	}

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: a.OrganizationID,
		UserID:         &actor.ID,
		Action:         audit.ActionAccountUpdated,
		ResourceType:   audit.ResourceAccount,
		ResourceID:     &a.ID,
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})
	return a, nil
}

// Delete soft-deletes an account. Personal accounts: only the owner.
// Organizational accounts: admins and the owner; full access on the
// account alone is not enough to destroy it.
func (s *PostgresService) Delete(ctx context.Context, actor *auth.User, accountID uuid.UUID, reqCtx auth.RequestContext) error {
	access, err := s.ResolveAccess(ctx, actor.ID, accountID, auth.PermissionFull)
	if err != nil {
		return err
	}
	a := access.Account
	if !a.Personal() {
		if access.Membership == nil || !auth.RoleAtLeast(access.Membership.Role, auth.RoleAdmin) {
			return fmt.Errorf("%w: deleting an organization account requires %s", errs.ErrInsufficientRole, auth.RoleAdmin)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, accountID)
	if err != nil {
		return errs.Storage("delete account", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: account %s", errs.ErrNotFound, accountID)
	}

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: a.OrganizationID,
		UserID:         &actor.ID,
		Action:         audit.ActionAccountDeleted,
		ResourceType:   audit.ResourceAccount,
		ResourceID:     &a.ID,
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})
	return nil
}
