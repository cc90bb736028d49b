package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
)

func TestCreate(t *testing.T) {
	ctx := context.Background()
	reqCtx := auth.RequestContext{}

	t.Run("personal account defaults", func(t *testing.T) {
		service, mock, db := newResolverService(t, nil)
		defer db.Close()

		actor := &auth.User{ID: uuid.New()}
		mock.ExpectQuery(`INSERT INTO accounts`).
			WithArgs(sqlmock.AnyArg(), actor.ID, nil, "blob", "dek", "USD", 1, auth.PermissionView).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

		a, err := service.Create(ctx, actor, CreateParams{EncryptedData: "blob", EncryptedDEK: "dek"}, reqCtx)
		require.NoError(t, err)
		assert.True(t, a.Personal())
		assert.Equal(t, "USD", a.Currency)
		assert.Equal(t, auth.PermissionView, a.DefaultPermission)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("organizational account requires member role", func(t *testing.T) {
		orgID := uuid.New()
		viewerID := uuid.New()
		service, _, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{viewerID: auth.RoleViewer}})
		defer db.Close()

		actor := &auth.User{ID: viewerID}
		_, err := service.Create(ctx, actor, CreateParams{
			OrganizationID: &orgID, EncryptedData: "blob", EncryptedDEK: "dek",
		}, reqCtx)
		assert.ErrorIs(t, err, errs.ErrInsufficientRole)
	})

	t.Run("non-member cannot create in an organization", func(t *testing.T) {
		orgID := uuid.New()
		service, _, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{}})
		defer db.Close()

		actor := &auth.User{ID: uuid.New()}
		_, err := service.Create(ctx, actor, CreateParams{
			OrganizationID: &orgID, EncryptedData: "blob", EncryptedDEK: "dek",
		}, reqCtx)
		assert.ErrorIs(t, err, errs.ErrNotAMember)
	})

	t.Run("missing ciphertext is a validation error", func(t *testing.T) {
		service, _, db := newResolverService(t, nil)
		defer db.Close()

		actor := &auth.User{ID: uuid.New()}
		_, err := service.Create(ctx, actor, CreateParams{EncryptedData: "blob"}, reqCtx)
		assert.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	reqCtx := auth.RequestContext{}

	t.Run("personal owner soft-deletes", func(t *testing.T) {
		service, mock, db := newResolverService(t, nil)
		defer db.Close()

		ownerID := uuid.New()
		a := &Account{ID: uuid.New(), UserID: ownerID, EncryptedData: "blob", EncryptedDEK: "dek",
			Currency: "USD", EncryptionVersion: 1, DefaultPermission: auth.PermissionView}
		expectAccountFetch(mock, a)
		mock.ExpectExec(`UPDATE accounts SET deleted_at = NOW\(\)`).
			WithArgs(a.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.Delete(ctx, &auth.User{ID: ownerID}, a.ID, reqCtx)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("org account deletion needs admin even with full access", func(t *testing.T) {
		orgID := uuid.New()
		memberID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{memberID: auth.RoleMember}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionFull)
		expectAccountFetch(mock, a)
		expectExplicitPermission(mock, a.ID, memberID, auth.PermissionFull)

		err := service.Delete(ctx, &auth.User{ID: memberID}, a.ID, reqCtx)
		assert.ErrorIs(t, err, errs.ErrInsufficientRole)
	})

	t.Run("admin deletes org account", func(t *testing.T) {
		orgID := uuid.New()
		adminID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{adminID: auth.RoleAdmin}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionView)
		expectAccountFetch(mock, a)
		mock.ExpectExec(`UPDATE accounts SET deleted_at = NOW\(\)`).
			WithArgs(a.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.Delete(ctx, &auth.User{ID: adminID}, a.ID, reqCtx)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	reqCtx := auth.RequestContext{}

	t.Run("changing default permission requires full access", func(t *testing.T) {
		orgID := uuid.New()
		memberID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{memberID: auth.RoleMember}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionEdit)
		expectAccountFetch(mock, a)
		expectExplicitPermission(mock, a.ID, memberID, "")

		perm := auth.PermissionView
		_, err := service.Update(ctx, &auth.User{ID: memberID}, a.ID, UpdateParams{DefaultPermission: &perm}, reqCtx)
		assert.ErrorIs(t, err, errs.ErrInsufficientPermission)
	})

	t.Run("edit access rewrites ciphertext", func(t *testing.T) {
		orgID := uuid.New()
		memberID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{memberID: auth.RoleMember}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionEdit)
		expectAccountFetch(mock, a)
		expectExplicitPermission(mock, a.ID, memberID, "")
		mock.ExpectQuery(`UPDATE accounts SET encrypted_data = \$1, encrypted_dek = \$2, default_permission = \$3`).
			WithArgs("new-blob", a.EncryptedDEK, a.DefaultPermission, a.ID).
			WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

		data := "new-blob"
		updated, err := service.Update(ctx, &auth.User{ID: memberID}, a.ID, UpdateParams{EncryptedData: &data}, reqCtx)
		require.NoError(t, err)
		assert.Equal(t, "new-blob", updated.EncryptedData)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
