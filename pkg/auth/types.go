package auth

import (
	"time"

	"github.com/google/uuid"
)

// User represents an account holder along with their end-to-end encryption
// material. The server stores the salt and key blobs verbatim; it can never
// derive the master key or decrypt the private key.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose hash

	// Salt is the client-side KDF salt. The client derives
	// masterKey = KDF(password, salt) locally; the server only stores it.
	Salt string `json:"salt,omitempty"`

	// PublicKey is the user's asymmetric public key, used to wrap
	// organization keys for this user before they can derive their master key.
	PublicKey string `json:"public_key,omitempty"`

	// EncryptedPrivateKey is the matching private key, encrypted client-side
	// under the user's master key. Opaque to the server.
	EncryptedPrivateKey string `json:"-"`

	IsSystemAdmin bool       `json:"is_system_admin"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	LoginCount    int        `json:"login_count"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Role represents organization-level roles
type Role string

const (
	RoleOwner  Role = "owner"  // Full control, ownership transfer, org deletion
	RoleAdmin  Role = "admin"  // Manage accounts and members, cannot touch owners
	RoleMember Role = "member" // Falls through to account-level permissions
	RoleViewer Role = "viewer" // Read-only organization access
)

// Permission represents account-level access levels
type Permission string

const (
	PermissionFull Permission = "full" // Complete account control
	PermissionEdit Permission = "edit" // Modify transactions
	PermissionView Permission = "view" // Read-only
)

// roleLevels is the total order over roles. Unknown roles map to 0 and are
// never sufficient for anything.
var roleLevels = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
	RoleOwner:  4,
}

// permissionLevels is the total order over account permissions.
var permissionLevels = map[Permission]int{
	PermissionView: 1,
	PermissionEdit: 2,
	PermissionFull: 3,
}

// Level returns the role's position in the hierarchy, 0 if unknown.
func (r Role) Level() int {
	return roleLevels[r]
}

// Valid reports whether the role is one of the closed set.
func (r Role) Valid() bool {
	return roleLevels[r] > 0
}

// Level returns the permission's position in the hierarchy, 0 if unknown.
func (p Permission) Level() int {
	return permissionLevels[p]
}

// Valid reports whether the permission is one of the closed set.
func (p Permission) Valid() bool {
	return permissionLevels[p] > 0
}

// RoleAtLeast reports whether actual meets or exceeds required in the role
// hierarchy. Unknown roles compare at level 0, always insufficient.
func RoleAtLeast(actual, required Role) bool {
	return roleLevels[actual] >= roleLevels[required]
}

// PermissionAtLeast reports whether actual meets or exceeds required in the
// permission hierarchy.
func PermissionAtLeast(actual, required Permission) bool {
	return permissionLevels[actual] >= permissionLevels[required]
}

// RequestContext carries provenance captured from the inbound request, used
// for audit records only.
type RequestContext struct {
	IPAddress string
	UserAgent string
	RequestID string
}
