// Package admission gates billable actions behind a credit check and records
// their usage exactly once.
package admission

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/researchai/research-bridge/internal/types"
)

// Rejection codes surfaced to callers
const (
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeInvalidRequest      = "INVALID_REQUEST"
)

// Ledger is the subset of the ledger client the controller needs.
type Ledger interface {
	CheckCredits(ctx context.Context, userID string, requiredCredits int) bool
	RecordUsage(ctx context.Context, event types.UsageEvent)
}

// Rejection is a typed admission denial. It is distinct from a system error
// so callers can present a billing prompt instead of a generic failure.
type Rejection struct {
	Code    string
	Message string
}

func (r *Rejection) Error() string {
	return r.Message
}

// AsRejection unwraps an admission rejection from err, if present.
func AsRejection(err error) (*Rejection, bool) {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej, true
	}
	return nil, false
}

// Result is what an admitted action reports back. Credits is the actual
// amount consumed, which may differ from the pre-check estimate (a report
// costs its fixed rate regardless of source count; a failed search costs
// nothing).
type Result struct {
	Credits  int
	Metadata map[string]interface{}
}

// Controller wraps billable actions with the check → execute → record
// pipeline. The pre-check prevents unauthorized spend; recording only after
// execution prevents charging for actions that fail outright.
type Controller struct {
	ledger Ledger
}

// NewController creates an admission controller backed by the given ledger.
func NewController(l Ledger) *Controller {
	return &Controller{ledger: l}
}

// Admit runs action if the user has at least requiredCredits available.
//
// On denial the action never runs and a *Rejection is returned. On action
// failure a zero-credit usage event is still recorded, keeping the attempt
// trail auditable, and the error is propagated. On success the event
// carries the credits the action reported (or the estimate when the action
// reports nothing). The record step runs on a context detached from request
// cancellation so an aborted stream cannot skip billing for a side effect
// that already completed.
func (c *Controller) Admit(ctx context.Context, userID, eventType string, requiredCredits int, action func(ctx context.Context) (*Result, error)) (*Result, error) {
	if userID == "" {
		return nil, &Rejection{Code: CodeInvalidRequest, Message: "user id is required"}
	}
	if requiredCredits <= 0 {
		return nil, &Rejection{Code: CodeInvalidRequest, Message: "required credits must be positive"}
	}

	if !c.ledger.CheckCredits(ctx, userID, requiredCredits) {
		return nil, &Rejection{Code: CodeInsufficientCredits, Message: "insufficient credits"}
	}

	start := time.Now()
	result, err := action(ctx)
	elapsed := time.Since(start)

	if err != nil {
		c.ledger.RecordUsage(context.WithoutCancel(ctx), types.UsageEvent{
			ID:        uuid.NewString(),
			UserID:    userID,
			EventType: eventType,
			Credits:   0,
			Metadata: map[string]interface{}{
				"success":        false,
				"creditsUsed":    0,
				"error":          err.Error(),
				"processingTime": elapsed.Milliseconds(),
			},
			Timestamp: time.Now(),
		})
		return nil, err
	}

	credits := requiredCredits
	metadata := map[string]interface{}{}
	if result != nil {
		credits = result.Credits
		for k, v := range result.Metadata {
			metadata[k] = v
		}
	}
	metadata["success"] = true
	metadata["creditsUsed"] = credits
	metadata["processingTime"] = elapsed.Milliseconds()

	c.ledger.RecordUsage(context.WithoutCancel(ctx), types.UsageEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		EventType: eventType,
		Credits:   credits,
		Metadata:  metadata,
		Timestamp: time.Now(),
	})

	return result, nil
}
