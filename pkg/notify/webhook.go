package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier delivers invitation events to an HTTP endpoint as JSON.
// Payloads are signed with HMAC-SHA256 when a secret is configured so the
// receiver can authenticate the sender.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for the given endpoint.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookEvent struct {
	Type    string     `json:"type"`
	SentAt  time.Time  `json:"sent_at"`
	Payload Invitation `json:"payload"`
}

// SendInvitation implements Notifier. The invitation token rides in the
// payload; the receiving system is responsible for getting it to the
// invitee over a trusted channel.
func (n *WebhookNotifier) SendInvitation(ctx context.Context, inv Invitation) error {
	payload, err := json.Marshal(webhookEvent{
		Type:    "invitation.created",
		SentAt:  time.Now().UTC(),
		Payload: inv,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal invitation event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Ledgerlock-Event", "invitation.created")
	if n.secret != "" {
		req.Header.Set("X-Ledgerlock-Signature", Sign(payload, n.secret))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned non-2xx status: %d", resp.StatusCode)
	}
	return nil
}

// Sign computes the signature header value for a payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature lets webhook receivers authenticate a delivery.
func VerifySignature(payload []byte, signature, secret string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
