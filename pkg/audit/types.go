package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action identifies a sensitive operation in the audit trail.
type Action string

const (
	ActionOrgCreated           Action = "org_created"
	ActionOrgUpdated           Action = "org_updated"
	ActionOrgDeleted           Action = "org_deleted"
	ActionMemberInvited        Action = "member_invited"
	ActionMemberJoined         Action = "member_joined"
	ActionMemberRemoved        Action = "member_removed"
	ActionMemberRoleChanged    Action = "member_role_changed"
	ActionOwnershipTransferred Action = "ownership_transferred"
	ActionInvitationRejected   Action = "invitation_rejected"
	ActionInvitationCancelled  Action = "invitation_cancelled"
	ActionKeysRotated          Action = "keys_rotated"
	ActionAccountCreated       Action = "account_created"
	ActionAccountUpdated       Action = "account_updated"
	ActionAccountDeleted       Action = "account_deleted"
	ActionPermissionGranted    Action = "permission_granted"
	ActionPermissionRevoked    Action = "permission_revoked"
)

// ResourceType identifies the kind of resource an entry refers to.
type ResourceType string

const (
	ResourceOrganization ResourceType = "organization"
	ResourceMember       ResourceType = "organization_member"
	ResourceInvitation   ResourceType = "organization_invitation"
	ResourceAccount      ResourceType = "account"
	ResourcePermission   ResourceType = "account_permission"
)

// Entry is a single append-only audit record. Entries are never mutated or
// deleted by normal operation; retention is an external admin concern.
type Entry struct {
	ID             uuid.UUID      `json:"id"`
	OrganizationID *uuid.UUID     `json:"organization_id,omitempty"`
	UserID         *uuid.UUID     `json:"user_id,omitempty"`
	UserEmail      string         `json:"user_email,omitempty"` // joined at read time
	Action         Action         `json:"action"`
	ResourceType   ResourceType   `json:"resource_type,omitempty"`
	ResourceID     *uuid.UUID     `json:"resource_id,omitempty"`
	Details        map[string]any `json:"details"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Page is a paginated slice of the audit trail.
type Page struct {
	Entries  []*Entry `json:"logs"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}
