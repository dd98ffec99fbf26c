// Package orchestrator drives the model conversation loop: it streams model
// output to the client, executes tool calls between model turns, and feeds
// tool results back until the model produces a final answer.
package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/researchai/research-bridge/internal/tools"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ContentBlock is one block of a provider message. Text blocks carry Text;
// tool_use blocks carry ID, ToolName, and Input; tool_result blocks carry
// ToolUseID and Content.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	ToolName  string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

// ModelMessage is one provider-facing conversation turn. Content is either a
// plain string or a []ContentBlock.
type ModelMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ToolCallRequest is a complete tool invocation the model asked for.
type ToolCallRequest struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// Provider event types
const (
	EventText     = "text"
	EventToolCall = "tool_call"
	EventStop     = "stop"
	EventError    = "error"
)

// ProviderEvent is one unit of streamed model output.
type ProviderEvent struct {
	Type       string
	Text       string
	Call       *ToolCallRequest
	StopReason string
	Err        error
}

// Provider streams one model turn. The returned channel is closed when the
// turn ends; an error event on the channel terminates the turn.
type Provider interface {
	Stream(ctx context.Context, messages []ModelMessage, defs []tools.Definition) (<-chan ProviderEvent, error)
}

// ProviderOptions configures the HTTP model provider.
type ProviderOptions struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
	Timeout      time.Duration
}

// HTTPProvider talks to an Anthropic-messages-compatible endpoint over SSE.
type HTTPProvider struct {
	opts       ProviderOptions
	httpClient *http.Client
}

// NewHTTPProvider creates a streaming model provider.
func NewHTTPProvider(opts ProviderOptions) *HTTPProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2000
	}

	return &HTTPProvider{
		opts:       opts,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) buildRequestBody(messages []ModelMessage, defs []tools.Definition) ([]byte, error) {
	body := `{}`
	var err error

	set := func(path string, value interface{}) {
		if err != nil {
			return
		}
		body, err = sjson.Set(body, path, value)
	}

	set("model", p.opts.Model)
	set("max_tokens", p.opts.MaxTokens)
	set("temperature", p.opts.Temperature)
	set("stream", true)
	if p.opts.SystemPrompt != "" {
		set("system", p.opts.SystemPrompt)
	}
	set("messages", messages)
	if len(defs) > 0 {
		set("tools", defs)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build model request: %w", err)
	}
	return []byte(body), nil
}

// Stream starts one model turn and emits events as they arrive.
func (p *HTTPProvider) Stream(ctx context.Context, messages []ModelMessage, defs []tools.Definition) (<-chan ProviderEvent, error) {
	payload, err := p.buildRequestBody(messages, defs)
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(p.opts.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("x-api-key", p.opts.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("model request failed: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	events := make(chan ProviderEvent, 100)
	go p.readStream(ctx, resp.Body, events)
	return events, nil
}

// readStream parses the SSE body. Tool input arrives as partial JSON deltas
// that must be accumulated until the block stops; only complete calls are
// emitted. Every send races against ctx so a consumer that stops receiving
// cannot strand this goroutine on a full channel with the body still open.
func (p *HTTPProvider) readStream(ctx context.Context, body io.ReadCloser, events chan<- ProviderEvent) {
	defer close(events)
	defer body.Close()

	send := func(ev ProviderEvent) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var pending *ToolCallRequest
	var pendingInput strings.Builder

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		switch gjson.Get(data, "type").String() {
		case "content_block_start":
			block := gjson.Get(data, "content_block")
			if block.Get("type").String() == "tool_use" {
				pending = &ToolCallRequest{
					ID:   block.Get("id").String(),
					Name: block.Get("name").String(),
				}
				pendingInput.Reset()
			}

		case "content_block_delta":
			delta := gjson.Get(data, "delta")
			switch delta.Get("type").String() {
			case "text_delta":
				if text := delta.Get("text").String(); text != "" {
					if !send(ProviderEvent{Type: EventText, Text: text}) {
						return
					}
				}
			case "input_json_delta":
				if pending != nil {
					pendingInput.WriteString(delta.Get("partial_json").String())
				}
			}

		case "content_block_stop":
			if pending != nil {
				input := pendingInput.String()
				if input == "" {
					input = "{}"
				}
				pending.Input = json.RawMessage(input)
				if !send(ProviderEvent{Type: EventToolCall, Call: pending}) {
					return
				}
				pending = nil
			}

		case "message_delta":
			if reason := gjson.Get(data, "delta.stop_reason").String(); reason != "" {
				if !send(ProviderEvent{Type: EventStop, StopReason: reason}) {
					return
				}
			}

		case "error":
			msg := gjson.Get(data, "error.message").String()
			send(ProviderEvent{Type: EventError, Err: fmt.Errorf("model stream error: %s", msg)})
			return
		}
	}

	if err := scanner.Err(); err != nil {
		send(ProviderEvent{Type: EventError, Err: fmt.Errorf("model stream read failed: %w", err)})
	}
}
