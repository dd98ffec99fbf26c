// Package ledger talks to the external billing provider that owns credit
// balances and usage history. The provider is the single source of truth;
// nothing here caches balances.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/researchai/research-bridge/internal/types"
	"github.com/tidwall/gjson"
)

// EventMirror receives a local copy of every usage event so a billing outage
// can be reconciled later. synced reports whether the provider accepted it.
type EventMirror interface {
	RecordEvent(event types.UsageEvent, synced bool) error
}

// Options configures a ledger client.
type Options struct {
	BaseURL            string
	APIKey             string
	Timeout            time.Duration
	MaxRetries         int
	DefaultCreditLimit int
	Mirror             EventMirror // optional
}

// Client issues usage-check and usage-record calls against the billing
// provider. Pure request/response, no local state.
type Client struct {
	baseURL            string
	apiKey             string
	defaultCreditLimit int
	httpClient         *http.Client
	retry              retryPolicy
	mirror             EventMirror
}

// NewClient creates a ledger client.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := opts.DefaultCreditLimit
	if limit <= 0 {
		limit = 100
	}

	return &Client{
		baseURL:            opts.BaseURL,
		apiKey:             opts.APIKey,
		defaultCreditLimit: limit,
		httpClient:         &http.Client{Timeout: timeout},
		retry:              newRetryPolicy(opts.MaxRetries),
		mirror:             opts.Mirror,
	}
}

// CheckCredits reports whether the user has at least requiredCredits available.
// Fails closed: any transport or provider error denies. A non-positive
// requiredCredits or empty user id is an input-contract violation and is
// rejected before any network call.
func (c *Client) CheckCredits(ctx context.Context, userID string, requiredCredits int) bool {
	if userID == "" || requiredCredits <= 0 {
		log.Printf("⚠️ [Ledger] Invalid credit check input (user=%q, required=%d), denying", userID, requiredCredits)
		return false
	}

	status, body, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/credits", nil)
	})
	if err != nil {
		log.Printf("⚠️ [Ledger] Credit check failed for user %s, denying (fail closed): %v", userID, err)
		return false
	}
	if status != http.StatusOK {
		log.Printf("⚠️ [Ledger] Credit check returned HTTP %d for user %s, denying", status, userID)
		return false
	}

	available := gjson.GetBytes(body, "available_credits")
	if !available.Exists() {
		log.Printf("⚠️ [Ledger] Credit check response missing available_credits for user %s, denying", userID)
		return false
	}

	return available.Int() >= int64(requiredCredits)
}

// RecordUsage persists a usage event, best effort. The action being billed has
// already produced user-visible value by the time this runs, so a billing
// outage must not surface as a failure to the caller; it is logged and the
// event lands in the reconciliation mirror instead.
func (c *Client) RecordUsage(ctx context.Context, event types.UsageEvent) {
	payload := map[string]interface{}{
		"user_id":      event.UserID,
		"event_type":   event.EventType,
		"credits_used": event.Credits,
		"metadata":     event.Metadata,
		"timestamp":    event.Timestamp.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("⚠️ [Ledger] Failed to encode usage event %s: %v", event.ID, err)
		c.mirrorEvent(event, false)
		return
	}

	status, _, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, "/usage", bytes.NewReader(body))
	})
	if err != nil {
		log.Printf("⚠️ [Ledger] Failed to record usage %s (%s, %d credits) for user %s: %v",
			event.ID, event.EventType, event.Credits, event.UserID, err)
		c.mirrorEvent(event, false)
		return
	}
	if status < 200 || status >= 300 {
		log.Printf("⚠️ [Ledger] Usage record %s rejected with HTTP %d", event.ID, status)
		c.mirrorEvent(event, false)
		return
	}

	log.Printf("💳 [Ledger] Recorded usage: %s for user %s (%d credits)", event.EventType, event.UserID, event.Credits)
	c.mirrorEvent(event, true)
}

// GetUserUsage aggregates the user's usage events into a summary. On any
// error it returns a conservative zero-usage default with the configured
// credit limit so downstream admission checks still function; an unknown user
// gets the same default rather than an error.
func (c *Client) GetUserUsage(ctx context.Context, userID string) types.UsageSummary {
	summary := types.UsageSummary{
		UserID:       userID,
		LastActivity: time.Now(),
		CreditLimit:  c.defaultCreditLimit,
	}
	if userID == "" {
		return summary
	}

	status, body, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/usage", nil)
	})
	if err != nil {
		log.Printf("⚠️ [Ledger] Usage lookup failed for user %s, returning defaults: %v", userID, err)
		return summary
	}
	if status != http.StatusOK {
		log.Printf("⚠️ [Ledger] Usage lookup returned HTTP %d for user %s, returning defaults", status, userID)
		return summary
	}

	summary.TotalCreditsUsed = clampNonNegative(gjson.GetBytes(body, "total_credits").Int())
	summary.TotalReports = clampNonNegative(gjson.GetBytes(body, "reports_generated").Int())
	summary.TotalSources = clampNonNegative(gjson.GetBytes(body, "sources_processed").Int())

	if v := gjson.GetBytes(body, "credit_limit"); v.Exists() && v.Int() > 0 {
		summary.CreditLimit = int(v.Int())
	}
	if v := gjson.GetBytes(body, "last_activity"); v.Exists() {
		if t, err := time.Parse(time.RFC3339, v.String()); err == nil {
			summary.LastActivity = t
		}
	}

	return summary
}

func (c *Client) mirrorEvent(event types.UsageEvent, synced bool) {
	if c.mirror == nil {
		return
	}
	if err := c.mirror.RecordEvent(event, synced); err != nil {
		log.Printf("⚠️ [Ledger] Failed to mirror usage event %s locally: %v", event.ID, err)
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body *bytes.Reader) (*http.Request, error) {
	var req *http.Request
	var err error
	if body != nil {
		// Rewind so retries resend the full payload.
		if _, serr := body.Seek(0, 0); serr != nil {
			return nil, serr
		}
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	} else {
		req, err = http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build ledger request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func clampNonNegative(v int64) int {
	if v < 0 {
		return 0
	}
	return int(v)
}
