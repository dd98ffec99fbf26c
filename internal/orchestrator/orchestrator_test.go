package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/researchai/research-bridge/internal/tools"
	"github.com/researchai/research-bridge/internal/types"
)

// scriptedProvider replays one event script per model turn.
type scriptedProvider struct {
	turns [][]ProviderEvent
	calls int
	seen  [][]ModelMessage
}

func (p *scriptedProvider) Stream(ctx context.Context, messages []ModelMessage, defs []tools.Definition) (<-chan ProviderEvent, error) {
	p.seen = append(p.seen, messages)
	if p.calls >= len(p.turns) {
		return nil, errors.New("no more scripted turns")
	}
	script := p.turns[p.calls]
	p.calls++

	events := make(chan ProviderEvent, len(script))
	for _, ev := range script {
		events <- ev
	}
	close(events)
	return events, nil
}

type recordingInvoker struct {
	outputs map[string]tools.Output
	invoked []string
	cancel  context.CancelFunc
}

func (r *recordingInvoker) Invoke(ctx context.Context, userID, name string, input json.RawMessage) tools.Output {
	r.invoked = append(r.invoked, name)
	if r.cancel != nil {
		r.cancel()
	}
	if out, ok := r.outputs[name]; ok {
		return out
	}
	return tools.Output{Type: "tool-" + name, Name: name, State: tools.StateOutputAvailable, Output: json.RawMessage(`{}`)}
}

type collector struct {
	events []StreamEvent
}

func (c *collector) emit(event StreamEvent) error {
	c.events = append(c.events, event)
	return nil
}

func userTurn(text string) []types.ChatMessage {
	return []types.ChatMessage{{Role: "user", Content: text}}
}

func TestRun_PlainTextTurn(t *testing.T) {
	provider := &scriptedProvider{turns: [][]ProviderEvent{{
		{Type: EventText, Text: "Hello, "},
		{Type: EventText, Text: "researcher."},
		{Type: EventStop, StopReason: "end_turn"},
	}}}
	sink := &collector{}

	orch := New(provider, &recordingInvoker{}, 5)
	if err := orch.Run(context.Background(), "u1", userTurn("hi"), sink.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(sink.events) != 3 {
		t.Fatalf("expected 2 text events and a done, got %+v", sink.events)
	}
	if sink.events[0].Text != "Hello, " || sink.events[2].Type != StreamDone {
		t.Fatalf("unexpected event sequence: %+v", sink.events)
	}
}

func TestRun_ToolLoopFeedsResultBack(t *testing.T) {
	provider := &scriptedProvider{turns: [][]ProviderEvent{
		{
			{Type: EventText, Text: "Let me check."},
			{Type: EventToolCall, Call: &ToolCallRequest{ID: "tc1", Name: tools.NameSearchSources, Input: json.RawMessage(`{"query":"x"}`)}},
			{Type: EventStop, StopReason: "tool_use"},
		},
		{
			{Type: EventText, Text: "Found it."},
			{Type: EventStop, StopReason: "end_turn"},
		},
	}}
	invoker := &recordingInvoker{outputs: map[string]tools.Output{
		tools.NameSearchSources: {
			Type:   "tool-searchSources",
			Name:   tools.NameSearchSources,
			State:  tools.StateOutputAvailable,
			Output: json.RawMessage(`{"results":[{"id":"doc-1"}]}`),
		},
	}}
	sink := &collector{}

	orch := New(provider, invoker, 5)
	if err := orch.Run(context.Background(), "u1", userTurn("search x"), sink.emit); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(invoker.invoked) != 1 || invoker.invoked[0] != tools.NameSearchSources {
		t.Fatalf("expected one search invocation, got %v", invoker.invoked)
	}

	var sawTool, sawDone bool
	for _, ev := range sink.events {
		if ev.Type == StreamTool && ev.Tool != nil && ev.Tool.Name == tools.NameSearchSources {
			sawTool = true
		}
		if ev.Type == StreamDone {
			sawDone = true
		}
	}
	if !sawTool || !sawDone {
		t.Fatalf("expected tool and done events, got %+v", sink.events)
	}

	// The second model turn must carry the assistant tool_use and the
	// tool_result back to the provider.
	if provider.calls != 2 {
		t.Fatalf("expected 2 model turns, got %d", provider.calls)
	}
	second := provider.seen[1]
	if len(second) != 3 {
		t.Fatalf("expected original turn plus tool exchange, got %d messages", len(second))
	}
	assistant, ok := second[1].Content.([]ContentBlock)
	if !ok || second[1].Role != "assistant" {
		t.Fatalf("expected assistant block message, got %+v", second[1])
	}
	foundToolUse := false
	for _, block := range assistant {
		if block.Type == "tool_use" && block.ID == "tc1" {
			foundToolUse = true
		}
	}
	if !foundToolUse {
		t.Fatalf("assistant turn missing tool_use block: %+v", assistant)
	}
	results, ok := second[2].Content.([]ContentBlock)
	if !ok || len(results) != 1 || results[0].Type != "tool_result" || results[0].ToolUseID != "tc1" {
		t.Fatalf("unexpected tool_result turn: %+v", second[2])
	}
}

func TestRun_ErroredToolContinuesConversation(t *testing.T) {
	provider := &scriptedProvider{turns: [][]ProviderEvent{
		{
			{Type: EventToolCall, Call: &ToolCallRequest{ID: "tc1", Name: tools.NameGenerateReport, Input: json.RawMessage(`{}`)}},
			{Type: EventStop, StopReason: "tool_use"},
		},
		{
			{Type: EventText, Text: "You need more credits for a report."},
			{Type: EventStop, StopReason: "end_turn"},
		},
	}}
	invoker := &recordingInvoker{outputs: map[string]tools.Output{
		tools.NameGenerateReport: {
			Type:      "tool-generateReport",
			Name:      tools.NameGenerateReport,
			State:     tools.StateErrored,
			Error:     "insufficient credits",
			ErrorCode: tools.CodeInsufficientCredits,
		},
	}}
	sink := &collector{}

	orch := New(provider, invoker, 5)
	if err := orch.Run(context.Background(), "u1", userTurn("make a report"), sink.emit); err != nil {
		t.Fatalf("an errored tool must not abort the run: %v", err)
	}

	results := provider.seen[1][2].Content.([]ContentBlock)
	if !results[0].IsError || results[0].Content != "insufficient credits" {
		t.Fatalf("expected error tool_result, got %+v", results[0])
	}
	if sink.events[len(sink.events)-1].Type != StreamDone {
		t.Fatalf("expected run to complete, got %+v", sink.events)
	}
}

func TestRun_AbortDuringToolStartsNothingNew(t *testing.T) {
	provider := &scriptedProvider{turns: [][]ProviderEvent{
		{
			{Type: EventToolCall, Call: &ToolCallRequest{ID: "tc1", Name: tools.NameSearchSources, Input: json.RawMessage(`{}`)}},
			{Type: EventToolCall, Call: &ToolCallRequest{ID: "tc2", Name: tools.NameSearchSources, Input: json.RawMessage(`{}`)}},
			{Type: EventStop, StopReason: "tool_use"},
		},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	invoker := &recordingInvoker{cancel: cancel} // client aborts while the first tool runs
	sink := &collector{}

	orch := New(provider, invoker, 5)
	err := orch.Run(ctx, "u1", userTurn("search twice"), sink.emit)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if len(invoker.invoked) != 1 {
		t.Fatalf("the in-flight tool finishes but no new one starts, got %v", invoker.invoked)
	}
	if provider.calls != 1 {
		t.Fatalf("no further model turn after abort, got %d", provider.calls)
	}
}

func TestRun_ToolRoundLimit(t *testing.T) {
	// The model asks for a tool on every turn, forever.
	turn := []ProviderEvent{
		{Type: EventToolCall, Call: &ToolCallRequest{ID: "tc", Name: tools.NameSearchSources, Input: json.RawMessage(`{}`)}},
		{Type: EventStop, StopReason: "tool_use"},
	}
	provider := &scriptedProvider{turns: [][]ProviderEvent{turn, turn, turn, turn}}
	invoker := &recordingInvoker{}
	sink := &collector{}

	orch := New(provider, invoker, 2)
	err := orch.Run(context.Background(), "u1", userTurn("loop"), sink.emit)
	if !errors.Is(err, ErrToolRoundLimit) {
		t.Fatalf("expected round limit error, got %v", err)
	}
	if sink.events[len(sink.events)-1].Type != StreamError {
		t.Fatalf("expected a client-facing error event, got %+v", sink.events)
	}
	if len(invoker.invoked) != 3 {
		t.Fatalf("expected maxToolRounds+1 turns worth of tools, got %d", len(invoker.invoked))
	}
}

func TestRun_ToolRoundLimitReportsGoneClient(t *testing.T) {
	turn := []ProviderEvent{
		{Type: EventToolCall, Call: &ToolCallRequest{ID: "tc", Name: tools.NameSearchSources, Input: json.RawMessage(`{}`)}},
		{Type: EventStop, StopReason: "tool_use"},
	}
	provider := &scriptedProvider{turns: [][]ProviderEvent{turn, turn, turn}}

	// The client disconnects before the limit message can be delivered.
	gone := errors.New("client gone")
	emit := func(event StreamEvent) error {
		if event.Type == StreamError {
			return gone
		}
		return nil
	}

	orch := New(provider, &recordingInvoker{}, 1)
	if err := orch.Run(context.Background(), "u1", userTurn("loop"), emit); !errors.Is(err, gone) {
		t.Fatalf("a failed delivery must surface, got %v", err)
	}
}

func TestRun_EmptyHistoryRejected(t *testing.T) {
	orch := New(&scriptedProvider{}, &recordingInvoker{}, 5)

	err := orch.Run(context.Background(), "u1", nil, (&collector{}).emit)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("expected ErrNoContent, got %v", err)
	}
}

func TestNormalizeHistory(t *testing.T) {
	history := []types.ChatMessage{
		{Role: "user", Content: "plain"},
		{Role: "assistant", Parts: []types.MessagePart{
			{Type: "text", Text: "part one"},
			{Type: "text", Text: "part two"},
		}},
		{Role: "assistant", Parts: []types.MessagePart{
			{Type: "tool-searchSources", State: "output-available"},
		}},
		{Role: "user", Content: ""},
		{Role: "system", Content: "be nice"},
	}

	messages := NormalizeHistory(history)
	if len(messages) != 3 {
		t.Fatalf("expected tool-only and empty turns dropped, got %d messages", len(messages))
	}
	if messages[0].Content != "plain" {
		t.Fatalf("unexpected first message: %+v", messages[0])
	}
	if messages[1].Role != "assistant" || messages[1].Content != "part one\npart two" {
		t.Fatalf("expected joined text parts, got %+v", messages[1])
	}
	if messages[2].Role != "user" {
		t.Fatalf("expected non-assistant roles normalized to user, got %+v", messages[2])
	}
}
