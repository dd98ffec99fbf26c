package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/researchai/research-bridge/internal/tools"
	"github.com/researchai/research-bridge/internal/types"
)

// ErrNoContent is returned when the incoming history has no sendable turns.
var ErrNoContent = errors.New("conversation has no text content")

// ErrToolRoundLimit is returned when the model keeps requesting tools past
// the configured round cap.
var ErrToolRoundLimit = errors.New("tool round limit reached")

// Stream event types sent to the client
const (
	StreamText  = "text"
	StreamTool  = "tool"
	StreamDone  = "done"
	StreamError = "error"
)

// StreamEvent is one unit of output pushed to the client.
type StreamEvent struct {
	Type    string        `json:"type"`
	Text    string        `json:"text,omitempty"`
	Tool    *tools.Output `json:"tool,omitempty"`
	Message string        `json:"message,omitempty"`
}

// Emitter delivers one stream event to the client. A non-nil return stops
// the run; the client is gone.
type Emitter func(event StreamEvent) error

// ToolInvoker executes one tool call for a user.
type ToolInvoker interface {
	Invoke(ctx context.Context, userID, name string, input json.RawMessage) tools.Output
}

// Orchestrator runs the model conversation loop for one request at a time.
type Orchestrator struct {
	provider      Provider
	invoker       ToolInvoker
	maxToolRounds int
}

// New creates an orchestrator. maxToolRounds caps how many times the model
// may request tools within one user turn.
func New(provider Provider, invoker ToolInvoker, maxToolRounds int) *Orchestrator {
	if maxToolRounds <= 0 {
		maxToolRounds = 5
	}
	return &Orchestrator{
		provider:      provider,
		invoker:       invoker,
		maxToolRounds: maxToolRounds,
	}
}

// NormalizeHistory converts incoming client messages into the provider shape.
// Messages without usable text are dropped: a turn whose only content is tool
// markers must not be replayed as model text, and a fully empty turn would be
// rejected upstream.
func NormalizeHistory(history []types.ChatMessage) []ModelMessage {
	messages := make([]ModelMessage, 0, len(history))
	for _, msg := range history {
		text := extractText(msg)
		if text == "" {
			continue
		}
		role := msg.Role
		if role != "assistant" {
			role = "user"
		}
		messages = append(messages, ModelMessage{Role: role, Content: text})
	}
	return messages
}

func extractText(msg types.ChatMessage) string {
	if msg.Content != "" {
		return msg.Content
	}
	var parts []string
	for _, part := range msg.Parts {
		if part.Type == "text" && part.Text != "" {
			parts = append(parts, part.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// Run drives one user turn to completion. Model text is emitted as it
// arrives; tool calls run synchronously between model turns and their results
// are both emitted to the client and fed back to the model. A canceled ctx
// lets the in-flight tool finish but starts nothing new.
func (o *Orchestrator) Run(ctx context.Context, userID string, history []types.ChatMessage, emit Emitter) error {
	messages := NormalizeHistory(history)
	if len(messages) == 0 {
		return ErrNoContent
	}

	for round := 0; round <= o.maxToolRounds; round++ {
		events, err := o.provider.Stream(ctx, messages, tools.Definitions())
		if err != nil {
			return err
		}

		var calls []*ToolCallRequest
		var assistantBlocks []ContentBlock
		var textBuf strings.Builder

		for event := range events {
			switch event.Type {
			case EventText:
				textBuf.WriteString(event.Text)
				if err := emit(StreamEvent{Type: StreamText, Text: event.Text}); err != nil {
					return err
				}
			case EventToolCall:
				calls = append(calls, event.Call)
			case EventError:
				return event.Err
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		if len(calls) == 0 {
			return emit(StreamEvent{Type: StreamDone})
		}

		if text := textBuf.String(); text != "" {
			assistantBlocks = append(assistantBlocks, ContentBlock{Type: "text", Text: text})
		}

		var resultBlocks []ContentBlock
		for _, call := range calls {
			if ctx.Err() != nil {
				// A tool already in flight runs to completion and is billed;
				// calls that have not started yet never do.
				return ctx.Err()
			}

			log.Printf("🔧 [Orchestrator] Round %d: executing %s for %s", round+1, call.Name, userID)
			out := o.invoker.Invoke(ctx, userID, call.Name, call.Input)
			if err := emit(StreamEvent{Type: StreamTool, Tool: &out}); err != nil {
				return err
			}

			assistantBlocks = append(assistantBlocks, ContentBlock{
				Type:     "tool_use",
				ID:       call.ID,
				ToolName: call.Name,
				Input:    call.Input,
			})
			resultBlocks = append(resultBlocks, toolResultBlock(call.ID, out))
		}

		if ctx.Err() != nil {
			// The in-flight tool finished and was billed; the model turn that
			// would consume its result never starts.
			return ctx.Err()
		}

		messages = append(messages,
			ModelMessage{Role: "assistant", Content: assistantBlocks},
			ModelMessage{Role: "user", Content: resultBlocks},
		)
	}

	log.Printf("⚠️ [Orchestrator] Tool round limit reached for %s", userID)
	if err := emit(StreamEvent{Type: StreamError, Message: "The conversation required too many tool calls. Please rephrase your request."}); err != nil {
		return err
	}
	return ErrToolRoundLimit
}

func toolResultBlock(toolUseID string, out tools.Output) ContentBlock {
	block := ContentBlock{Type: "tool_result", ToolUseID: toolUseID}
	if out.State == tools.StateErrored {
		block.IsError = true
		block.Content = out.Error
		return block
	}
	if len(out.Output) > 0 {
		block.Content = string(out.Output)
	} else {
		block.Content = "{}"
	}
	return block
}

// SystemPrompt is the instruction set given to the model on every turn.
func SystemPrompt() string {
	return fmt.Sprintf(
		"You are a research assistant. You help users explore their uploaded sources and "+
			"produce structured reports.\n\n"+
			"Use the %s tool to look up relevant material before answering questions about "+
			"the user's sources. Use the %s tool only when the user explicitly asks for a "+
			"report; it consumes credits from their balance.\n\n"+
			"When a search returns no results, tell the user to add a source first. When a "+
			"tool reports an error, explain the problem conversationally instead of retrying "+
			"endlessly. Cite sources by title when you draw on them.",
		tools.NameSearchSources, tools.NameGenerateReport)
}
