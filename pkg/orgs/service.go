package orgs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
	"github.com/platinummonkey/ledgerlock/pkg/notify"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

// PostgresService implements organization, membership, invitation, and
// key-rotation operations on PostgreSQL.
type PostgresService struct {
	db       *sql.DB
	recorder audit.Recorder
	notifier notify.Notifier
	logger   *observability.Logger
	cache    MembershipCache
}

// NewPostgresService creates a new PostgresService. recorder and
// notifier may be the Nop implementations but must not be nil.
func NewPostgresService(db *sql.DB, recorder audit.Recorder, notifier notify.Notifier, logger *observability.Logger) *PostgresService {
	return &PostgresService{db: db, recorder: recorder, notifier: notifier, logger: logger}
}

// WithMembershipCache attaches a membership cache. Must be called before
// the service handles requests.
func (s *PostgresService) WithMembershipCache(cache MembershipCache) *PostgresService {
	s.cache = cache
	return s
}

// CreateOrganization creates an organization and enrolls the creator as
// its owner in the same transaction. wrappedOrgKey is the organization
// key wrapped for the creator, produced client side.
func (s *PostgresService) CreateOrganization(ctx context.Context, creator *auth.User, name, description, wrappedOrgKey string, reqCtx auth.RequestContext) (*Organization, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", errs.ErrValidation)
	}
	if wrappedOrgKey == "" {
		return nil, fmt.Errorf("%w: wrapped organization key is required", errs.ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errs.Storage("begin create organization", err)
	}
	defer tx.Rollback()

	org := &Organization{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedBy:   &creator.ID,
	}
	settingsJSON, err := json.Marshal(map[string]any{})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO organizations (id, name, description, settings, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, org.ID, org.Name, org.Description, settingsJSON, creator.ID).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return nil, errs.Storage("create organization", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO organization_members (id, organization_id, user_id, role, wrapped_org_key)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), org.ID, creator.ID, auth.RoleOwner, wrappedOrgKey)
	if err != nil {
		return nil, errs.Storage("enroll organization owner", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.Storage("commit create organization", err)
	}

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: &org.ID,
		UserID:         &creator.ID,
		Action:         audit.ActionOrgCreated,
		ResourceType:   audit.ResourceOrganization,
		ResourceID:     &org.ID,
		Details:        map[string]any{"name": org.Name},
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})

	return org, nil
}

// GetOrganization retrieves an organization by ID. Soft-deleted
// organizations are reported as not found.
func (s *PostgresService) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	org := &Organization{}
	var settingsJSON []byte
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, settings, created_by, created_at, updated_at
		FROM organizations
		WHERE id = $1 AND deleted_at IS NULL
	`, id).Scan(&org.ID, &org.Name, &description, &settingsJSON, &org.CreatedBy, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: organization %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, errs.Storage("get organization", err)
	}
	if description.Valid {
		org.Description = description.String
	}
	if len(settingsJSON) > 0 {
		if err := json.Unmarshal(settingsJSON, &org.Settings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
		}
	}
	return org, nil
}

// ListForUser returns every organization the user belongs to, with the
// user's role and wrapped key for each.
func (s *PostgresService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*UserOrganization, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.name, o.description, o.created_by, o.created_at, o.updated_at,
		       m.role, m.wrapped_org_key,
		       (SELECT COUNT(*) FROM organization_members mc WHERE mc.organization_id = o.id) AS member_count
		FROM organizations o
		JOIN organization_members m ON m.organization_id = o.id
		WHERE m.user_id = $1 AND o.deleted_at IS NULL
		ORDER BY o.created_at ASC
	`, userID)
	if err != nil {
		return nil, errs.Storage("list organizations", err)
	}
	defer rows.Close()

	var result []*UserOrganization
	for rows.Next() {
		uo := &UserOrganization{}
		var description sql.NullString
		if err := rows.Scan(
			&uo.ID, &uo.Name, &description, &uo.CreatedBy, &uo.CreatedAt, &uo.UpdatedAt,
			&uo.Role, &uo.WrappedOrgKey, &uo.MemberCount,
		); err != nil {
			return nil, errs.Storage("scan organization", err)
		}
		if description.Valid {
			uo.Description = description.String
		}
		result = append(result, uo)
	}
	return result, rows.Err()
}

// UpdateOrganization updates name and description. Requires admin.
func (s *PostgresService) UpdateOrganization(ctx context.Context, actor *auth.User, orgID uuid.UUID, name, description string, reqCtx auth.RequestContext) (*Organization, error) {
	if _, err := s.RequireAdmin(ctx, orgID, actor.ID); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: organization name is required", errs.ErrValidation)
	}

	org := &Organization{ID: orgID, Name: name, Description: description}
	err := s.db.QueryRowContext(ctx, `
		UPDATE organizations
		SET name = $1, description = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL
		RETURNING created_by, created_at, updated_at
	`, name, description, orgID).Scan(&org.CreatedBy, &org.CreatedAt, &org.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: organization %s", errs.ErrNotFound, orgID)
	}
	if err != nil {
		return nil, errs.Storage("update organization", err)
	}

	s.recorder.Record(ctx, &audit.Entry{
		OrganizationID: &orgID,
		UserID:         &actor.ID,
		Action:         audit.ActionOrgUpdated,
		ResourceType:   audit.ResourceOrganization,
		ResourceID:     &orgID,
		Details:        map[string]any{"name": name},
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	})
	return org, nil
}

// DeleteOrganization soft-deletes an organization and all of its
// accounts in one transaction. Owner only. Memberships are left in
// place; the deleted_at filters hide everything they pointed at.
func (s *PostgresService) DeleteOrganization(ctx context.Context, actor *auth.User, orgID uuid.UUID, reqCtx auth.RequestContext) error {
	if _, err := s.RequireOwner(ctx, orgID, actor.ID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Storage("begin delete organization", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE organizations SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, orgID)
	if err != nil {
		return errs.Storage("delete organization", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: organization %s", errs.ErrNotFound, orgID)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts SET deleted_at = NOW(), updated_at = NOW()
		WHERE organization_id = $1 AND deleted_at IS NULL
	`, orgID)
	if err != nil {
		return errs.Storage("delete organization accounts", err)
	}

	if err := s.recorder.RecordTx(ctx, tx, &audit.Entry{
		OrganizationID: &orgID,
		UserID:         &actor.ID,
		Action:         audit.ActionOrgDeleted,
		ResourceType:   audit.ResourceOrganization,
		ResourceID:     &orgID,
		IPAddress:      reqCtx.IPAddress,
		UserAgent:      reqCtx.UserAgent,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Storage("commit delete organization", err)
	}
	if s.cache != nil {
		s.cache.InvalidateOrg(ctx, orgID)
	}
	return nil
}
