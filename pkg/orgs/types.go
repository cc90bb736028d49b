package orgs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/ledgerlock/pkg/auth"
)

// Organization is a shared workspace. Every organization has exactly one
// owner at any time and its own organization key; the server only ever
// sees that key wrapped for individual members.
type Organization struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedBy   *uuid.UUID     `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   *time.Time     `json:"-"`
}

// Membership ties a user to an organization with a role and that user's
// wrapped copy of the organization key.
type Membership struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Role           auth.Role  `json:"role"`
	WrappedOrgKey  string     `json:"wrapped_org_key,omitempty"`
	InvitedBy      *uuid.UUID `json:"invited_by,omitempty"`
	JoinedAt       time.Time  `json:"joined_at"`

	// Email is joined from the users table on reads that list members;
	// it is not a column on organization_members.
	Email string `json:"email,omitempty"`
}

// UserOrganization is an organization as seen from one member's
// perspective, carrying their role and wrapped key alongside it.
type UserOrganization struct {
	Organization
	Role          auth.Role `json:"role"`
	WrappedOrgKey string    `json:"wrapped_org_key,omitempty"`
	MemberCount   int       `json:"member_count"`
}

// InvitationStatus is derived from an invitation's columns, never stored.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation is a pending offer of membership, bound to an email address
// and redeemable by single-use token.
type Invitation struct {
	ID             uuid.UUID  `json:"id"`
	OrganizationID uuid.UUID  `json:"organization_id"`
	Email          string     `json:"email"`
	Role           auth.Role  `json:"role"`
	WrappedOrgKey  string     `json:"-"`
	InvitedBy      uuid.UUID  `json:"invited_by"`
	Token          string     `json:"-"`
	Message        string     `json:"message,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
	CreatedAt      time.Time  `json:"created_at"`
	AcceptedAt     *time.Time `json:"accepted_at,omitempty"`
	RejectedAt     *time.Time `json:"rejected_at,omitempty"`

	// OrganizationName and InviterEmail are joined on read.
	OrganizationName string `json:"organization_name,omitempty"`
	InviterEmail     string `json:"inviter_email,omitempty"`
}

// Status derives the invitation's state. Accepted and rejected win over
// expired: a redeemed invitation stays redeemed even after its expiry
// timestamp passes.
func (inv *Invitation) Status(now time.Time) InvitationStatus {
	switch {
	case inv.AcceptedAt != nil:
		return InvitationAccepted
	case inv.RejectedAt != nil:
		return InvitationRejected
	case now.After(inv.ExpiresAt):
		return InvitationExpired
	default:
		return InvitationPending
	}
}

// RotationResult reports how many wrapped keys a rotation actually
// rewrote. Entries submitted for rows that no longer exist are skipped,
// so these counts can be lower than what the client sent.
type RotationResult struct {
	MembersUpdated  int `json:"members_updated"`
	AccountsUpdated int `json:"accounts_updated"`
}

// MembershipCache caches membership lookups. Implementations must treat
// invalidation as mandatory: a stale role or wrapped key is worse than a
// cache miss.
type MembershipCache interface {
	GetMembership(ctx context.Context, orgID, userID uuid.UUID) (*Membership, bool)
	SetMembership(ctx context.Context, m *Membership)
	Invalidate(ctx context.Context, orgID, userID uuid.UUID)
	InvalidateOrg(ctx context.Context, orgID uuid.UUID)
}
