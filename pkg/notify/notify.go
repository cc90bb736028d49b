package notify

import (
	"context"
	"time"
)

// Invitation carries everything needed to tell someone they have been
// invited to an organization. The token is included verbatim so the
// recipient can complete the join flow from the message alone.
type Invitation struct {
	To               string    `json:"to"`
	OrganizationName string    `json:"organization_name"`
	InviterEmail     string    `json:"inviter_email"`
	Role             string    `json:"role"`
	Token            string    `json:"token"`
	Message          string    `json:"message,omitempty"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// Notifier delivers invitation notices. Delivery is best-effort from the
// caller's point of view: a failed send must never roll back the
// invitation that triggered it.
type Notifier interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) SendInvitation(ctx context.Context, inv Invitation) error { return nil }
