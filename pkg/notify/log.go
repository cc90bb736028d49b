package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes invitation notices to the log instead of sending
// them anywhere. Useful for development and for deployments that handle
// email out of band.
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a notifier that logs invitations.
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) SendInvitation(ctx context.Context, inv Invitation) error {
	n.logger.WithFields(logrus.Fields{
		"to":           inv.To,
		"organization": inv.OrganizationName,
		"invited_by":   inv.InviterEmail,
		"role":         inv.Role,
		"expires_at":   inv.ExpiresAt,
	}).Info("invitation created")
	return nil
}
