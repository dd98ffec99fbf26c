package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/researchai/research-bridge/internal/admission"
	"github.com/researchai/research-bridge/internal/config"
	"github.com/researchai/research-bridge/internal/orchestrator"
	"github.com/researchai/research-bridge/internal/types"
)

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	UserID   string              `json:"userId"`
	Messages []types.ChatMessage `json:"messages"`
}

// ChatHandler streams one research conversation turn over SSE. The turn is
// admitted against the user's credit balance before any model output flows;
// once streaming starts, failures surface as SSE error events.
func ChatHandler(admitter *admission.Controller, orch *orchestrator.Orchestrator, pricingManager *config.PricingManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(400, gin.H{
				"error": "Invalid request body",
				"code":  admission.CodeInvalidRequest,
			})
			return
		}
		if req.UserID == "" {
			c.JSON(400, gin.H{
				"error": "userId is required",
				"code":  "MISSING_USER_ID",
			})
			return
		}
		if len(orchestrator.NormalizeHistory(req.Messages)) == 0 {
			c.JSON(400, gin.H{
				"error": "Conversation has no text content",
				"code":  admission.CodeInvalidRequest,
			})
			return
		}

		flusher, ok := c.Writer.(http.Flusher)
		if !ok {
			c.JSON(500, gin.H{"error": "Streaming not supported"})
			return
		}

		streaming := false
		emit := func(event orchestrator.StreamEvent) error {
			if !streaming {
				c.Header("Content-Type", "text/event-stream")
				c.Header("Cache-Control", "no-cache")
				c.Header("Connection", "keep-alive")
				c.Writer.WriteHeader(http.StatusOK)
				streaming = true
			}
			payload, err := json.Marshal(event)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				return err
			}
			flusher.Flush()
			return nil
		}

		rate := pricingManager.Get().QuestionAsked
		_, err := admitter.Admit(c.Request.Context(), req.UserID, types.EventQuestionAsked, rate,
			func(ctx context.Context) (*admission.Result, error) {
				if err := orch.Run(ctx, req.UserID, req.Messages, emit); err != nil {
					return nil, err
				}
				return &admission.Result{
					Credits:  rate,
					Metadata: map[string]interface{}{"messageCount": len(req.Messages)},
				}, nil
			})
		if err == nil {
			return
		}

		if rej, ok := admission.AsRejection(err); ok {
			status := 402
			if rej.Code == admission.CodeInvalidRequest {
				status = 400
			}
			c.JSON(status, gin.H{
				"error": rej.Message,
				"code":  rej.Code,
			})
			return
		}

		if errors.Is(err, context.Canceled) {
			// Client went away; nothing left to write.
			log.Printf("🔌 [Chat] Stream aborted by client: %s", req.UserID)
			return
		}
		if errors.Is(err, orchestrator.ErrToolRoundLimit) {
			// The orchestrator already told the client.
			return
		}

		log.Printf("❌ [Chat] Turn failed for %s: %v", req.UserID, err)
		if streaming {
			emit(orchestrator.StreamEvent{
				Type:    orchestrator.StreamError,
				Message: "The conversation failed. Please try again.",
			})
			return
		}
		c.JSON(500, gin.H{
			"error": "The conversation failed. Please try again.",
			"code":  "CHAT_FAILED",
		})
	}
}
