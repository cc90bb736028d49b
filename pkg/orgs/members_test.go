package orgs

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ledgerlock/pkg/audit"
	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
	"github.com/platinummonkey/ledgerlock/pkg/notify"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

// Test helper to create a new mock service
func newMockService(t *testing.T) (*PostgresService, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	service := NewPostgresService(db, audit.NewPostgresRecorder(db, logger), notify.NopNotifier{}, logger)
	return service, mock, db
}

func expectOrgLookup(mock sqlmock.Sqlmock, orgID uuid.UUID) {
	mock.ExpectQuery(`SELECT id, name, description, settings, created_by, created_at, updated_at FROM organizations WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs(orgID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "settings", "created_by", "created_at", "updated_at"}).
			AddRow(orgID, "Acme", "shared books", []byte(`{}`), nil, time.Now(), time.Now()))
}

func expectMembershipLookup(mock sqlmock.Sqlmock, orgID, userID uuid.UUID, role auth.Role) {
	mock.ExpectQuery(`SELECT id, organization_id, user_id, role, wrapped_org_key, invited_by, joined_at FROM organization_members WHERE organization_id = \$1 AND user_id = \$2`).
		WithArgs(orgID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "user_id", "role", "wrapped_org_key", "invited_by", "joined_at"}).
			AddRow(uuid.New(), orgID, userID, role, "wrapped", nil, time.Now()))
}

func TestRequireMember(t *testing.T) {
	ctx := context.Background()

	t.Run("missing organization reported before membership", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID, userID := uuid.New(), uuid.New()
		mock.ExpectQuery(`SELECT id, name, description, settings, created_by, created_at, updated_at FROM organizations`).
			WithArgs(orgID).
			WillReturnError(sql.ErrNoRows)

		_, err := service.RequireMember(ctx, orgID, userID, auth.RoleViewer)
		assert.ErrorIs(t, err, errs.ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-member", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID, userID := uuid.New(), uuid.New()
		expectOrgLookup(mock, orgID)
		mock.ExpectQuery(`SELECT id, organization_id, user_id, role, wrapped_org_key, invited_by, joined_at FROM organization_members`).
			WithArgs(orgID, userID).
			WillReturnError(sql.ErrNoRows)

		_, err := service.RequireMember(ctx, orgID, userID, "")
		assert.ErrorIs(t, err, errs.ErrNotAMember)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role below floor", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID, userID := uuid.New(), uuid.New()
		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, userID, auth.RoleViewer)

		_, err := service.RequireMember(ctx, orgID, userID, auth.RoleAdmin)
		assert.ErrorIs(t, err, errs.ErrInsufficientRole)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("role at floor", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID, userID := uuid.New(), uuid.New()
		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, userID, auth.RoleAdmin)

		m, err := service.RequireMember(ctx, orgID, userID, auth.RoleAdmin)
		require.NoError(t, err)
		assert.Equal(t, auth.RoleAdmin, m.Role)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("owner satisfies admin floor", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID, userID := uuid.New(), uuid.New()
		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, userID, auth.RoleOwner)

		_, err := service.RequireAdmin(ctx, orgID, userID)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestListMembers(t *testing.T) {
	ctx := context.Background()
	service, mock, db := newMockService(t)
	defer db.Close()

	t.Run("joins member emails", func(t *testing.T) {
		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New(), Email: "owner@example.com"}
		now := time.Now()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleViewer)

		mock.ExpectQuery(`SELECT m.id, m.organization_id, m.user_id, m.role, m.invited_by, m.joined_at, u.email FROM organization_members m JOIN users u ON u.id = m.user_id`).
			WithArgs(orgID).
			WillReturnRows(sqlmock.NewRows([]string{"id", "organization_id", "user_id", "role", "invited_by", "joined_at", "email"}).
				AddRow(uuid.New(), orgID, actor.ID, auth.RoleOwner, nil, now, "owner@example.com").
				AddRow(uuid.New(), orgID, uuid.New(), auth.RoleMember, actor.ID, now, "member@example.com"))

		members, err := service.ListMembers(ctx, actor, orgID)
		require.NoError(t, err)
		require.Len(t, members, 2)
		assert.Equal(t, "owner@example.com", members[0].Email)
		assert.Equal(t, auth.RoleMember, members[1].Role)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdateMemberRole(t *testing.T) {
	ctx := context.Background()
	reqCtx := auth.RequestContext{IPAddress: "10.0.0.1", UserAgent: "test"}

	t.Run("admin promotes member and change is audited in the same transaction", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}
		targetID := uuid.New()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleOwner)
		expectMembershipLookup(mock, orgID, targetID, auth.RoleViewer)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE organization_members SET role = \$1 WHERE organization_id = \$2 AND user_id = \$3`).
			WithArgs(auth.RoleMember, orgID, targetID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO audit_logs`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.UpdateMemberRole(ctx, actor, orgID, targetID, auth.RoleMember, reqCtx)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin cannot demote another admin", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}
		targetID := uuid.New()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleAdmin)
		expectMembershipLookup(mock, orgID, targetID, auth.RoleAdmin)

		err := service.UpdateMemberRole(ctx, actor, orgID, targetID, auth.RoleMember, reqCtx)
		assert.ErrorIs(t, err, errs.ErrInsufficientRole)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("promotion to owner is refused", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}
		targetID := uuid.New()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleOwner)
		expectMembershipLookup(mock, orgID, targetID, auth.RoleMember)

		err := service.UpdateMemberRole(ctx, actor, orgID, targetID, auth.RoleOwner, reqCtx)
		assert.ErrorIs(t, err, errs.ErrValidation)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("audit failure rolls the change back", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}
		targetID := uuid.New()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleOwner)
		expectMembershipLookup(mock, orgID, targetID, auth.RoleViewer)

		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE organization_members SET role`).
			WithArgs(auth.RoleMember, orgID, targetID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO audit_logs`).
			WillReturnError(sql.ErrConnDone)
		mock.ExpectRollback()

		err := service.UpdateMemberRole(ctx, actor, orgID, targetID, auth.RoleMember, reqCtx)
		require.Error(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRemoveMember(t *testing.T) {
	ctx := context.Background()
	reqCtx := auth.RequestContext{}

	t.Run("owner cannot be removed", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}
		ownerID := uuid.New()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleAdmin)
		expectMembershipLookup(mock, orgID, ownerID, auth.RoleOwner)

		err := service.RemoveMember(ctx, actor, orgID, ownerID, reqCtx)
		assert.ErrorIs(t, err, errs.ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("admin removes member", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}
		targetID := uuid.New()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleAdmin)
		expectMembershipLookup(mock, orgID, targetID, auth.RoleMember)

		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM organization_members WHERE organization_id = \$1 AND user_id = \$2`).
			WithArgs(orgID, targetID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO audit_logs`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.RemoveMember(ctx, actor, orgID, targetID, reqCtx)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestTransferOwnership(t *testing.T) {
	ctx := context.Background()
	reqCtx := auth.RequestContext{}

	t.Run("demotes old owner and promotes new in one transaction", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}
		newOwnerID := uuid.New()
		newOwnerMemberID := uuid.New()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleOwner)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT role FROM organization_members WHERE organization_id = \$1 AND user_id = \$2 FOR UPDATE`).
			WithArgs(orgID, actor.ID).
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(auth.RoleOwner))
		mock.ExpectQuery(`SELECT id FROM organization_members WHERE organization_id = \$1 AND user_id = \$2 FOR UPDATE`).
			WithArgs(orgID, newOwnerID).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(newOwnerMemberID))
		mock.ExpectExec(`UPDATE organization_members SET role = \$1`).
			WithArgs(auth.RoleAdmin, orgID, actor.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE organization_members SET role = \$1`).
			WithArgs(auth.RoleOwner, orgID, newOwnerID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO audit_logs`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := service.TransferOwnership(ctx, actor, orgID, newOwnerID, reqCtx)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transfer to self is refused", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleOwner)

		err := service.TransferOwnership(ctx, actor, orgID, actor.ID, reqCtx)
		assert.ErrorIs(t, err, errs.ErrConflict)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("new owner must already be a member", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}
		strangerID := uuid.New()

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleOwner)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT role FROM organization_members`).
			WithArgs(orgID, actor.ID).
			WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow(auth.RoleOwner))
		mock.ExpectQuery(`SELECT id FROM organization_members`).
			WithArgs(orgID, strangerID).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		err := service.TransferOwnership(ctx, actor, orgID, strangerID, reqCtx)
		assert.ErrorIs(t, err, errs.ErrNotAMember)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-owner cannot transfer", func(t *testing.T) {
		service, mock, db := newMockService(t)
		defer db.Close()

		orgID := uuid.New()
		actor := &auth.User{ID: uuid.New()}

		expectOrgLookup(mock, orgID)
		expectMembershipLookup(mock, orgID, actor.ID, auth.RoleAdmin)

		err := service.TransferOwnership(ctx, actor, orgID, uuid.New(), reqCtx)
		assert.ErrorIs(t, err, errs.ErrInsufficientRole)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
