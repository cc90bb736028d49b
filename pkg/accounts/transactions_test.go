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

func expectTransactionFetch(mock sqlmock.Sqlmock, txn *Transaction) {
	mock.ExpectQuery(`FROM transactions WHERE id = \$1 AND deleted_at IS NULL`).
		WithArgs(txn.ID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "account_id", "created_by", "encrypted_data", "date",
			"encryption_version", "created_at", "updated_at",
		}).AddRow(txn.ID, txn.AccountID, txn.CreatedBy, txn.EncryptedData, txn.Date, 1, time.Now(), time.Now()))
}

func TestCreateTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("requires edit access", func(t *testing.T) {
		orgID := uuid.New()
		viewerID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{viewerID: auth.RoleViewer}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionView)
		expectAccountFetch(mock, a)
		expectExplicitPermission(mock, a.ID, viewerID, "")

		_, err := service.CreateTransaction(ctx, &auth.User{ID: viewerID}, a.ID, TransactionParams{
			EncryptedData: "blob", Date: time.Now(),
		})
		assert.ErrorIs(t, err, errs.ErrInsufficientPermission)
	})

	t.Run("member with edit default appends", func(t *testing.T) {
		orgID := uuid.New()
		memberID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{memberID: auth.RoleMember}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionEdit)
		expectAccountFetch(mock, a)
		expectExplicitPermission(mock, a.ID, memberID, "")

		date := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`INSERT INTO transactions`).
			WithArgs(sqlmock.AnyArg(), a.ID, memberID, "ciphertext", date, 1).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

		txn, err := service.CreateTransaction(ctx, &auth.User{ID: memberID}, a.ID, TransactionParams{
			EncryptedData: "ciphertext", Date: date,
		})
		require.NoError(t, err)
		assert.Equal(t, date, txn.Date)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("date is mandatory", func(t *testing.T) {
		service, _, db := newResolverService(t, nil)
		defer db.Close()

		_, err := service.CreateTransaction(ctx, &auth.User{ID: uuid.New()}, uuid.New(), TransactionParams{
			EncryptedData: "blob",
		})
		assert.ErrorIs(t, err, errs.ErrValidation)
	})
}

func TestListTransactions(t *testing.T) {
	ctx := context.Background()

	t.Run("viewer lists with date bounds", func(t *testing.T) {
		orgID := uuid.New()
		viewerID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{viewerID: auth.RoleViewer}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionView)
		expectAccountFetch(mock, a)
		expectExplicitPermission(mock, a.ID, viewerID, "")

		from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(`FROM transactions WHERE account_id = \$1 AND deleted_at IS NULL AND date >= \$2 AND date <= \$3`).
			WithArgs(a.ID, from, to, 100, 0).
			WillReturnRows(sqlmock.NewRows([]string{
				"id", "account_id", "created_by", "encrypted_data", "date",
				"encryption_version", "created_at", "updated_at",
			}).
				AddRow(uuid.New(), a.ID, viewerID, "c1", to, 1, time.Now(), time.Now()).
				AddRow(uuid.New(), a.ID, viewerID, "c2", from, 1, time.Now(), time.Now()))

		txns, err := service.ListTransactions(ctx, &auth.User{ID: viewerID}, a.ID, from, to, 0, 0)
		require.NoError(t, err)
		require.Len(t, txns, 2)
		assert.Equal(t, "c1", txns[0].EncryptedData)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDeleteTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("edit access is not enough to delete", func(t *testing.T) {
		orgID := uuid.New()
		memberID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{memberID: auth.RoleMember}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionEdit)
		txn := &Transaction{ID: uuid.New(), AccountID: a.ID, CreatedBy: memberID, EncryptedData: "c", Date: time.Now()}

		expectTransactionFetch(mock, txn)
		// GetTransaction's view resolution.
		expectAccountFetch(mock, a)
		expectExplicitPermission(mock, a.ID, memberID, "")
		// Delete's full resolution.
		expectAccountFetch(mock, a)
		expectExplicitPermission(mock, a.ID, memberID, "")

		err := service.DeleteTransaction(ctx, &auth.User{ID: memberID}, txn.ID)
		assert.ErrorIs(t, err, errs.ErrInsufficientPermission)
	})

	t.Run("admin soft-deletes", func(t *testing.T) {
		orgID := uuid.New()
		adminID := uuid.New()
		service, mock, db := newResolverService(t, &fakeMembers{roles: map[uuid.UUID]auth.Role{adminID: auth.RoleAdmin}})
		defer db.Close()

		a := orgAccount(orgID, auth.PermissionView)
		txn := &Transaction{ID: uuid.New(), AccountID: a.ID, CreatedBy: adminID, EncryptedData: "c", Date: time.Now()}

		expectTransactionFetch(mock, txn)
		expectAccountFetch(mock, a)
		expectAccountFetch(mock, a)
		mock.ExpectExec(`UPDATE transactions SET deleted_at = NOW\(\)`).
			WithArgs(txn.ID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := service.DeleteTransaction(ctx, &auth.User{ID: adminID}, txn.ID)
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
