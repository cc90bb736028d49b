package accounts

import (
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/auth"
)

// Account is an expense ledger. Personal accounts have a nil
// OrganizationID and belong to exactly one user; organizational accounts
// belong to an organization and are governed by roles and per-account
// permissions.
//
// EncryptedData is the account's metadata blob (name, type, balance and
// whatever else the client keeps there) and EncryptedDEK is the data
// encryption key wrapped under the user key or organization key. Both
// are opaque to the server. Currency is deliberately plaintext so
// clients can group accounts without a decrypt round.
type Account struct {
	ID                uuid.UUID       `json:"id"`
	UserID            uuid.UUID       `json:"user_id"`
	OrganizationID    *uuid.UUID      `json:"organization_id,omitempty"`
	EncryptedData     string          `json:"encrypted_data"`
	EncryptedDEK      string          `json:"encrypted_dek"`
	Currency          string          `json:"currency"`
	EncryptionVersion int             `json:"encryption_version"`
	DefaultPermission auth.Permission `json:"default_permission"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	DeletedAt         *time.Time      `json:"-"`
}

// Personal reports whether the account is outside any organization.
func (a *Account) Personal() bool {
	return a.OrganizationID == nil
}

// AccountPermission is an explicit per-user grant on one organizational
// account. It coexists with the account's default permission; access is
// granted when either meets the bar.
type AccountPermission struct {
	ID         uuid.UUID       `json:"id"`
	AccountID  uuid.UUID       `json:"account_id"`
	UserID     uuid.UUID       `json:"user_id"`
	Permission auth.Permission `json:"permission"`
	GrantedBy  *uuid.UUID      `json:"granted_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`

	// UserEmail is joined from users on list reads.
	UserEmail string `json:"user_email,omitempty"`
}

// Transaction is one encrypted ledger entry. Everything financial lives
// inside EncryptedData; Date stays plaintext so the server can order and
// page without decrypting.
type Transaction struct {
	ID                uuid.UUID  `json:"id"`
	AccountID         uuid.UUID  `json:"account_id"`
	CreatedBy         uuid.UUID  `json:"created_by"`
	EncryptedData     string     `json:"encrypted_data"`
	Date              time.Time  `json:"date"`
	EncryptionVersion int        `json:"encryption_version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"-"`
}

// Access is a successful resolution: the account plus the effective
// permission the user holds on it.
type Access struct {
	Account    *Account
	Permission auth.Permission
	// Membership is set for organizational accounts; nil for personal.
	Membership *MembershipInfo
}

// MembershipInfo is the slice of a membership the resolver needs.
type MembershipInfo struct {
	Role auth.Role
}
