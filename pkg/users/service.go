package users

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/auth"
	"github.com/platinummonkey/ledgerlock/pkg/errs"
)

// PostgresService stores user accounts and their key material. The salt,
// public key, and encrypted private key are client-generated blobs; the
// server stores and returns them without ever being able to use them.
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService.
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// CreateParams is everything a client submits at registration. All of
// the key material is produced client side from the user's passphrase.
type CreateParams struct {
	Email               string
	PasswordHash        string
	Salt                string
	PublicKey           string
	EncryptedPrivateKey string
}

// Create registers a user. Email uniqueness is enforced by the schema;
// a duplicate registration is reported as a conflict.
func (s *PostgresService) Create(ctx context.Context, params CreateParams) (*auth.User, error) {
	email := strings.ToLower(strings.TrimSpace(params.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", errs.ErrValidation)
	}
	if params.PasswordHash == "" || params.Salt == "" {
		return nil, fmt.Errorf("%w: password hash and salt are required", errs.ErrValidation)
	}
	if params.PublicKey == "" || params.EncryptedPrivateKey == "" {
		return nil, fmt.Errorf("%w: key material is required", errs.ErrValidation)
	}

	u := &auth.User{
		ID:                  uuid.New(),
		Email:               email,
		PasswordHash:        params.PasswordHash,
		Salt:                params.Salt,
		PublicKey:           params.PublicKey,
		EncryptedPrivateKey: params.EncryptedPrivateKey,
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, email, password_hash, salt, public_key, encrypted_private_key)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (email) DO NOTHING
		RETURNING created_at
	`, u.ID, u.Email, u.PasswordHash, u.Salt, u.PublicKey, u.EncryptedPrivateKey).Scan(&u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: email %s is already registered", errs.ErrConflict, email)
	}
	if err != nil {
		return nil, errs.Storage("create user", err)
	}
	return u, nil
}

const userColumns = `id, email, password_hash, salt, public_key, encrypted_private_key, is_system_admin, last_login_at, login_count, created_at`

func scanUser(row *sql.Row) (*auth.User, error) {
	u := &auth.User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.Salt, &u.PublicKey, &u.EncryptedPrivateKey,
		&u.IsSystemAdmin, &u.LastLoginAt, &u.LoginCount, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// GetByID fetches a user by ID.
func (s *PostgresService) GetByID(ctx context.Context, id uuid.UUID) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", errs.ErrNotFound, id)
	}
	if err != nil {
		return nil, errs.Storage("get user", err)
	}
	return u, nil
}

// GetByEmail fetches a user by email, case-insensitively.
func (s *PostgresService) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %s", errs.ErrNotFound, email)
	}
	if err != nil {
		return nil, errs.Storage("get user by email", err)
	}
	return u, nil
}

// GetSalt returns the key-derivation salt for an email. This is the one
// piece of custody data served before authentication: the client needs
// it to derive its keys and prove anything at all.
func (s *PostgresService) GetSalt(ctx context.Context, email string) (string, error) {
	var salt string
	err := s.db.QueryRowContext(ctx,
		`SELECT salt FROM users WHERE LOWER(email) = LOWER($1)`, email).Scan(&salt)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: user %s", errs.ErrNotFound, email)
	}
	if err != nil {
		return "", errs.Storage("get salt", err)
	}
	return salt, nil
}

// RecordLogin bumps the login counter and timestamp.
func (s *PostgresService) RecordLogin(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login_at = NOW(), login_count = login_count + 1
		WHERE id = $1
	`, id)
	if err != nil {
		return errs.Storage("record login", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %s", errs.ErrNotFound, id)
	}
	return nil
}

// UpdateKeyMaterial replaces a user's public key and encrypted private
// key, typically after a client-side passphrase change. The salt moves
// with them; all three are derived together.
func (s *PostgresService) UpdateKeyMaterial(ctx context.Context, id uuid.UUID, salt, publicKey, encryptedPrivateKey string) error {
	if salt == "" || publicKey == "" || encryptedPrivateKey == "" {
		return fmt.Errorf("%w: key material is required", errs.ErrValidation)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET salt = $1, public_key = $2, encrypted_private_key = $3
		WHERE id = $4
	`, salt, publicKey, encryptedPrivateKey, id)
	if err != nil {
		return errs.Storage("update key material", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %s", errs.ErrNotFound, id)
	}
	return nil
}

// GetPublicKeys returns the public keys for a set of users, keyed by
// user ID. Used when wrapping an organization key for members during
// invitation and rotation flows.
func (s *PostgresService) GetPublicKeys(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]string{}, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, public_key FROM users WHERE id IN (`+strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return nil, errs.Storage("get public keys", err)
	}
	defer rows.Close()

	keys := make(map[uuid.UUID]string, len(ids))
	for rows.Next() {
		var id uuid.UUID
		var pk string
		if err := rows.Scan(&id, &pk); err != nil {
			return nil, errs.Storage("scan public key", err)
		}
		keys[id] = pk
	}
	return keys, rows.Err()
}
