package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
)

// SMTPNotifier sends invitation email through a plain SMTP relay.
type SMTPNotifier struct {
	addr    string // host:port
	from    string
	auth    smtp.Auth
	baseURL string // public URL of the frontend, used to build accept links
}

// NewSMTPNotifier creates an SMTP-backed notifier. auth may be nil for
// relays that accept unauthenticated mail from the service network.
func NewSMTPNotifier(addr, from, baseURL string, auth smtp.Auth) *SMTPNotifier {
	return &SMTPNotifier{addr: addr, from: from, auth: auth, baseURL: strings.TrimRight(baseURL, "/")}
}

func (n *SMTPNotifier) SendInvitation(ctx context.Context, inv Invitation) error {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", n.from)
	fmt.Fprintf(&b, "To: %s\r\n", inv.To)
	fmt.Fprintf(&b, "Subject: You have been invited to %s\r\n", inv.OrganizationName)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&b, "%s invited you to join %s as %s.\r\n\r\n", inv.InviterEmail, inv.OrganizationName, inv.Role)
	if inv.Message != "" {
		fmt.Fprintf(&b, "%s\r\n\r\n", inv.Message)
	}
	fmt.Fprintf(&b, "Accept the invitation before %s:\r\n%s/invitations/%s\r\n",
		inv.ExpiresAt.Format("2006-01-02 15:04 MST"), n.baseURL, inv.Token)

	if err := smtp.SendMail(n.addr, n.auth, n.from, []string{inv.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("failed to send invitation email: %w", err)
	}
	return nil
}
