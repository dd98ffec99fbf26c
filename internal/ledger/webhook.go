package ledger

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Webhook event types emitted by the billing provider
const (
	WebhookCreditAdded         = "credit.added"
	WebhookCreditDepleted      = "credit.depleted"
	WebhookSubscriptionCreated = "subscription.created"
)

// WebhookEvent is a billing-state notification. It must only be populated
// from a payload whose signature has already been verified.
type WebhookEvent struct {
	EventType string
	UserID    string
	Credits   int
}

// VerifySignature reports whether signatureHeader is a valid HMAC-SHA256
// signature of payload under secret. The comparison is constant time.
//
// payload must be the raw request bytes as received; re-serialized JSON can
// change byte layout and invalidate legitimate signatures.
func VerifySignature(secret string, payload []byte, signatureHeader string) bool {
	if secret == "" {
		return false
	}

	sigHex := strings.TrimSpace(signatureHeader)
	sigHex = strings.TrimPrefix(sigHex, "sha256=")
	if sigHex == "" {
		return false
	}

	sig, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hmac.Equal(sig, mac.Sum(nil))
}

// ComputeSignature returns the hex HMAC-SHA256 signature of payload.
func ComputeSignature(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhookEvent decodes a verified webhook payload. Call only after
// VerifySignature returned true.
func ParseWebhookEvent(payload []byte) (*WebhookEvent, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("webhook payload is not valid JSON")
	}

	eventType := gjson.GetBytes(payload, "event_type").String()
	if eventType == "" {
		return nil, fmt.Errorf("webhook payload missing event_type")
	}

	return &WebhookEvent{
		EventType: eventType,
		UserID:    gjson.GetBytes(payload, "user_id").String(),
		Credits:   int(gjson.GetBytes(payload, "credits").Int()),
	}, nil
}
