package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
)

// TransactionParams is the client-supplied material for one entry.
type TransactionParams struct {
	EncryptedData     string
	Date              time.Time
	EncryptionVersion int
}

// CreateTransaction appends an encrypted entry to an account. Requires
// edit access.
func (s *PostgresService) CreateTransaction(ctx context.Context, actor *auth.User, accountID uuid.UUID, params TransactionParams) (*Transaction, error) {
	if params.EncryptedData == "" {
		return nil, fmt.Errorf("%w: encrypted payload is required", errs.ErrValidation)
	}
	if params.Date.IsZero() {
		return nil, fmt.Errorf("%w: transaction date is required", errs.ErrValidation)
	}
	if params.EncryptionVersion <= 0 {
		params.EncryptionVersion = 1
	}
	if _, err := s.ResolveAccess(ctx, actor.ID, accountID, auth.PermissionEdit); err != nil {
		return nil, err
	}

	txn := &Transaction{
		ID:                uuid.New(),
		AccountID:         accountID,
		CreatedBy:         actor.ID,
		EncryptedData:     params.EncryptedData,
		Date:              params.Date,
		EncryptionVersion: params.EncryptionVersion,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO transactions (id, account_id, created_by, encrypted_data, date, encryption_version)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, txn.ID, txn.AccountID, txn.CreatedBy, txn.EncryptedData, txn.Date, txn.EncryptionVersion).
		Scan(&txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		return nil, errs.Storage("create transaction", err)
	}
	return txn, nil
}

// ListTransactions pages an account's entries, newest date first.
// Requires view access. from/to bound the plaintext date when non-zero.
func (s *PostgresService) ListTransactions(ctx context.Context, actor *auth.User, accountID uuid.UUID, from, to time.Time, limit, offset int) ([]*Transaction, error) {
	if _, err := s.ResolveAccess(ctx, actor.ID, accountID, auth.PermissionView); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	where := "account_id = $1 AND deleted_at IS NULL"
	args := []interface{}{accountID}
	if !from.IsZero() {
		args = append(args, from)
		where += fmt.Sprintf(" AND date >= $%d", len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		where += fmt.Sprintf(" AND date <= $%d", len(args))
	}
	query := fmt.Sprintf(`
		SELECT id, account_id, created_by, encrypted_data, date, encryption_version, created_at, updated_at
		FROM transactions
		WHERE %s
		ORDER BY date DESC, created_at DESC
		LIMIT $%d OFFSET $%d
	`, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Storage("list transactions", err)
	}
	defer rows.Close()

	var txns []*Transaction
	for rows.Next() {
		txn := &Transaction{}
		if err := rows.Scan(
			&txn.ID, &txn.AccountID, &txn.CreatedBy, &txn.EncryptedData,
			&txn.Date, &txn.EncryptionVersion, &txn.CreatedAt, &txn.UpdatedAt,
		); err != nil {
			return nil, errs.Storage("scan transaction", err)
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// GetTransaction fetches one entry. Requires view access on its account.
func (s *PostgresService) GetTransaction(ctx context.Context, actor *auth.User, transactionID uuid.UUID) (*Transaction, error) {
	txn := &Transaction{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, created_by, encrypted_data, date, encryption_version, created_at, updated_at
		FROM transactions
		WHERE id = $1 AND deleted_at IS NULL
	`, transactionID).Scan(
		&txn.ID, &txn.AccountID, &txn.CreatedBy, &txn.EncryptedData,
		&txn.Date, &txn.EncryptionVersion, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction %s", errs.ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, errs.Storage("get transaction", err)
	}
	if _, err := s.ResolveAccess(ctx, actor.ID, txn.AccountID, auth.PermissionView); err != nil {
		return nil, err
	}
	return txn, nil
}

// UpdateTransaction replaces an entry's encrypted payload and, when
// non-zero, its date. Requires edit access.
func (s *PostgresService) UpdateTransaction(ctx context.Context, actor *auth.User, transactionID uuid.UUID, params TransactionParams) (*Transaction, error) {
	txn, err := s.GetTransaction(ctx, actor, transactionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ResolveAccess(ctx, actor.ID, txn.AccountID, auth.PermissionEdit); err != nil {
		return nil, err
	}
	if params.EncryptedData != "" {
		txn.EncryptedData = params.EncryptedData
	}
	if !params.Date.IsZero() {
		txn.Date = params.Date
	}

	err = s.db.QueryRowContext(ctx, `
		UPDATE transactions SET encrypted_data = $1, date = $2, updated_at = NOW()
		WHERE id = $3 AND deleted_at IS NULL
		RETURNING updated_at
	`, txn.EncryptedData, txn.Date, transactionID).Scan(&txn.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction %s", errs.ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, errs.Storage("update transaction", err)
	}
	return txn, nil
}

// DeleteTransaction soft-deletes an entry. Requires full access on the
// account: removing financial history is a stronger act than editing it.
func (s *PostgresService) DeleteTransaction(ctx context.Context, actor *auth.User, transactionID uuid.UUID) error {
	txn, err := s.GetTransaction(ctx, actor, transactionID)
	if err != nil {
		return err
	}
	if _, err := s.ResolveAccess(ctx, actor.ID, txn.AccountID, auth.PermissionFull); err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND deleted_at IS NULL
	`, transactionID)
	if err != nil {
		return errs.Storage("delete transaction", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: transaction %s", errs.ErrNotFound, transactionID)
	}
	return nil
}
