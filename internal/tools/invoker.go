package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/researchai/research-bridge/internal/admission"
	"github.com/researchai/research-bridge/internal/config"
	"github.com/researchai/research-bridge/internal/report"
	"github.com/researchai/research-bridge/internal/types"
)

// Searcher queries the source index.
type Searcher interface {
	Search(ctx context.Context, query string, sourceTypes []string, top int) ([]types.SearchResult, error)
}

// Admitter gates billable tool executions.
type Admitter interface {
	Admit(ctx context.Context, userID, eventType string, requiredCredits int, action func(ctx context.Context) (*admission.Result, error)) (*admission.Result, error)
}

// Output is the normalized result of one tool call. Type follows the
// "tool-<name>" convention so clients can render each tool distinctly.
type Output struct {
	Type      string          `json:"type"`
	Name      string          `json:"-"`
	State     string          `json:"state"`
	Input     json.RawMessage `json:"input,omitempty"`
	Output    json.RawMessage `json:"output,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
}

// SearchInput is the declared input of the searchSources tool.
type SearchInput struct {
	Query       string   `json:"query"`
	SourceTypes []string `json:"sourceTypes,omitempty"`
}

// SearchOutput is what the model and the client receive from searchSources.
// A failed search reports its error here instead of erroring the tool call so
// the model can relay the problem conversationally.
type SearchOutput struct {
	Results []types.SearchResult `json:"results"`
	IsEmpty bool                 `json:"isEmpty,omitempty"`
	Message string               `json:"message,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// ReportInput is the declared input of the generateReport tool.
type ReportInput struct {
	Topic      string         `json:"topic"`
	ReportType string         `json:"reportType"`
	Sources    []types.Source `json:"sources,omitempty"`
}

// ReportOutput wraps the generated report.
type ReportOutput struct {
	Report *types.Report `json:"report"`
}

// Invoker validates and executes tool calls on behalf of one user. Search is
// free; report generation is admitted against the user's credit balance first.
type Invoker struct {
	searcher Searcher
	admitter Admitter
	pricing  func() config.Pricing
	topN     int
}

// NewInvoker creates a tool invoker. pricing is read per call so rate changes
// apply without a restart.
func NewInvoker(searcher Searcher, admitter Admitter, pricing func() config.Pricing, topN int) *Invoker {
	return &Invoker{
		searcher: searcher,
		admitter: admitter,
		pricing:  pricing,
		topN:     topN,
	}
}

// Invoke runs one tool call and always returns a well-formed Output, never a
// Go error. Failures become errored outputs the conversation can continue past.
func (inv *Invoker) Invoke(ctx context.Context, userID, name string, input json.RawMessage) Output {
	switch name {
	case NameSearchSources:
		return inv.invokeSearch(ctx, input)
	case NameGenerateReport:
		return inv.invokeReport(ctx, userID, input)
	default:
		log.Printf("⚠️ [Tools] Rejected call to undeclared tool: %s", name)
		return Output{
			Type:      "tool-" + name,
			Name:      name,
			State:     StateErrored,
			Input:     input,
			Error:     fmt.Sprintf("unknown tool: %s", name),
			ErrorCode: CodeUnknownTool,
		}
	}
}

func (inv *Invoker) invokeSearch(ctx context.Context, input json.RawMessage) Output {
	out := Output{Type: "tool-" + NameSearchSources, Name: NameSearchSources, Input: input}

	var params SearchInput
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			out.State = StateErrored
			out.Error = fmt.Sprintf("invalid searchSources input: %v", err)
			out.ErrorCode = CodeInvalidToolInput
			return out
		}
	}
	for _, st := range params.SourceTypes {
		if !types.ValidSourceType(st) {
			out.State = StateErrored
			out.Error = fmt.Sprintf("invalid sourceTypes entry: %q", st)
			out.ErrorCode = CodeInvalidToolInput
			return out
		}
	}

	results, err := inv.searcher.Search(ctx, params.Query, params.SourceTypes, inv.topN)
	if err != nil {
		log.Printf("⚠️ [Tools] searchSources failed: %v", err)
		return withPayload(out, SearchOutput{
			Results: []types.SearchResult{},
			Error:   "Failed to search sources. The index may be temporarily unavailable.",
		})
	}

	payload := SearchOutput{Results: results}
	if len(results) == 0 {
		payload.Results = []types.SearchResult{}
		payload.IsEmpty = true
		payload.Message = "No sources found. Add a source first, then try searching again."
	}
	return withPayload(out, payload)
}

func (inv *Invoker) invokeReport(ctx context.Context, userID string, input json.RawMessage) Output {
	out := Output{Type: "tool-" + NameGenerateReport, Name: NameGenerateReport, Input: input}

	var params ReportInput
	if err := json.Unmarshal(input, &params); err != nil {
		out.State = StateErrored
		out.Error = fmt.Sprintf("invalid generateReport input: %v", err)
		out.ErrorCode = CodeInvalidToolInput
		return out
	}
	if strings.TrimSpace(params.Topic) == "" {
		out.State = StateErrored
		out.Error = "generateReport requires a non-empty topic"
		out.ErrorCode = CodeInvalidToolInput
		return out
	}
	if !report.ValidType(params.ReportType) {
		out.State = StateErrored
		out.Error = fmt.Sprintf("invalid reportType: %q", params.ReportType)
		out.ErrorCode = CodeInvalidToolInput
		return out
	}
	for _, s := range params.Sources {
		if s.ID == "" {
			out.State = StateErrored
			out.Error = "every source must carry an id"
			out.ErrorCode = CodeInvalidToolInput
			return out
		}
	}

	rate := inv.pricing().ReportGenerated
	var payload json.RawMessage
	_, err := inv.admitter.Admit(ctx, userID, types.EventReportGenerated, rate, func(ctx context.Context) (*admission.Result, error) {
		rep := report.Build(params.Topic, params.Sources, params.ReportType)
		encoded, err := json.Marshal(ReportOutput{Report: rep})
		if err != nil {
			return nil, fmt.Errorf("failed to encode report: %w", err)
		}
		payload = encoded
		return &admission.Result{
			Credits: rate,
			Metadata: map[string]interface{}{
				"reportType":  params.ReportType,
				"sourcesUsed": len(params.Sources),
			},
		}, nil
	})
	if err != nil {
		if rej, ok := admission.AsRejection(err); ok {
			log.Printf("⚠️ [Tools] generateReport denied for %s: %s", userID, rej.Code)
			out.State = StateErrored
			out.Error = rej.Message
			out.ErrorCode = rej.Code
			return out
		}
		log.Printf("❌ [Tools] generateReport failed for %s: %v", userID, err)
		out.State = StateErrored
		out.Error = "Report generation failed. Please try again."
		out.ErrorCode = CodeToolFailed
		return out
	}

	out.State = StateOutputAvailable
	out.Output = payload
	return out
}

func withPayload(out Output, payload SearchOutput) Output {
	encoded, err := json.Marshal(payload)
	if err != nil {
		out.State = StateErrored
		out.Error = fmt.Sprintf("failed to encode tool output: %v", err)
		out.ErrorCode = CodeToolFailed
		return out
	}
	out.State = StateOutputAvailable
	out.Output = encoded
	return out
}
