package handlers

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/researchai/research-bridge/internal/admission"
	"github.com/researchai/research-bridge/internal/config"
	"github.com/researchai/research-bridge/internal/ledger"
	"github.com/researchai/research-bridge/internal/types"
)

// UsageReader fetches a user's aggregated usage from the ledger provider.
type UsageReader interface {
	GetUserUsage(ctx context.Context, userID string) types.UsageSummary
}

// BillingStatusHandler serves GET /api/billing: the user's balance position
// and the current pricing table.
func BillingStatusHandler(usage UsageReader, pricingManager *config.PricingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Query("userId")
		if userID == "" {
			c.JSON(400, gin.H{
				"error": "userId is required",
				"code":  "MISSING_USER_ID",
			})
			return
		}

		summary := usage.GetUserUsage(c.Request.Context(), userID)
		remaining := summary.CreditLimit - summary.TotalCreditsUsed
		if remaining < 0 {
			remaining = 0
		}

		c.JSON(200, gin.H{
			"usage":            summary,
			"remainingCredits": remaining,
			"hasCredits":       remaining > 0,
			"pricing":          pricingManager.Get(),
		})
	}
}

// RecordUsageRequest is the body of POST /api/billing. Clients report
// billable actions that happen outside the chat loop, like processing an
// uploaded source.
type RecordUsageRequest struct {
	UserID    string                 `json:"userId"`
	EventType string                 `json:"eventType"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// RecordUsageHandler admits and records one out-of-band billable action.
func RecordUsageHandler(admitter *admission.Controller, pricingManager *config.PricingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RecordUsageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{"error": "Invalid request body", "code": admission.CodeInvalidRequest})
			return
		}
		if req.UserID == "" {
			c.JSON(400, gin.H{"error": "userId is required", "code": "MISSING_USER_ID"})
			return
		}

		rate, ok := eventRate(pricingManager.Get(), req.EventType)
		if !ok {
			c.JSON(400, gin.H{
				"error": "Unknown event type",
				"code":  admission.CodeInvalidRequest,
			})
			return
		}

		result, err := admitter.Admit(c.Request.Context(), req.UserID, req.EventType, rate,
			func(ctx context.Context) (*admission.Result, error) {
				// The action itself already happened client-side; this call
				// gates and records it.
				return &admission.Result{Credits: rate, Metadata: req.Metadata}, nil
			})
		if err != nil {
			if rej, ok := admission.AsRejection(err); ok {
				status := 402
				if rej.Code == admission.CodeInvalidRequest {
					status = 400
				}
				c.JSON(status, gin.H{"error": rej.Message, "code": rej.Code})
				return
			}
			c.JSON(500, gin.H{"error": "Failed to record usage"})
			return
		}

		c.JSON(200, gin.H{
			"recorded": true,
			"credits":  result.Credits,
		})
	}
}

func eventRate(p config.Pricing, eventType string) (int, bool) {
	switch eventType {
	case types.EventQuestionAsked:
		return p.QuestionAsked, true
	case types.EventReportGenerated:
		return p.ReportGenerated, true
	case types.EventSourceProcessed:
		return p.SourceProcessed, true
	}
	return 0, false
}

// WebhookHandler serves POST /api/billing/webhook. The billing provider
// pushes credit-state changes here; the HMAC signature is the only
// authentication. Verification runs over the raw body bytes.
func WebhookHandler(envCfg *config.EnvConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader("X-Signature")
		if signature == "" {
			c.JSON(400, gin.H{"error": "Missing X-Signature header"})
			return
		}

		payload, err := c.GetRawData()
		if err != nil {
			c.JSON(400, gin.H{"error": "Failed to read request body"})
			return
		}

		if !ledger.VerifySignature(envCfg.WebhookSecret, payload, signature) {
			log.Printf("🔒 [Webhook] Invalid signature - IP: %s", c.ClientIP())
			c.JSON(401, gin.H{"error": "Invalid signature"})
			return
		}

		event, err := ledger.ParseWebhookEvent(payload)
		if err != nil {
			log.Printf("❌ [Webhook] Failed to parse verified payload: %v", err)
			c.JSON(500, gin.H{"error": "Failed to process webhook"})
			return
		}

		switch event.EventType {
		case ledger.WebhookCreditAdded:
			log.Printf("💰 [Webhook] Credits added: user=%s credits=%d", event.UserID, event.Credits)
		case ledger.WebhookCreditDepleted:
			log.Printf("⚠️ [Webhook] Credits depleted: user=%s", event.UserID)
		case ledger.WebhookSubscriptionCreated:
			log.Printf("📋 [Webhook] Subscription created: user=%s", event.UserID)
		default:
			// Unrecognized types are acknowledged so the provider stops
			// retrying; new event types must not break delivery.
			log.Printf("❓ [Webhook] Unrecognized event type: %s", event.EventType)
		}

		c.JSON(200, gin.H{"received": true})
	}
}
