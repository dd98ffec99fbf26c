// Package tools defines the closed set of tools the model may call and the
// invoker that validates, bills, and executes those calls. Tools are declared
// at compile time; there is no dynamic registration surface.
package tools

// Tool names exposed to the model
const (
	NameSearchSources  = "searchSources"
	NameGenerateReport = "generateReport"
)

// Tool call states carried back to the client
const (
	StateOutputAvailable = "output-available"
	StateErrored         = "errored"
)

// Error codes attached to errored tool outputs
const (
	CodeUnknownTool         = "UNKNOWN_TOOL"
	CodeInvalidToolInput    = "INVALID_TOOL_INPUT"
	CodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	CodeToolFailed          = "TOOL_FAILED"
)

// Definition describes one tool in the shape the model provider expects.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// Definitions returns the full tool set offered on every model turn. The
// model decides when to call; this service decides whether the call runs.
func Definitions() []Definition {
	return []Definition{
		{
			Name: NameSearchSources,
			Description: "Search through the user's research sources. Returns ranked matches " +
				"with highlights. Call with an empty query to list available sources.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Search terms. Empty matches all sources.",
					},
					"sourceTypes": map[string]interface{}{
						"type":        "array",
						"items":       map[string]interface{}{"type": "string", "enum": []string{"pdf", "image", "url", "feed"}},
						"description": "Optional filter on source type.",
					},
				},
			},
		},
		{
			Name: NameGenerateReport,
			Description: "Generate a structured research report from the given sources. " +
				"This consumes credits from the user's balance.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"topic": map[string]interface{}{
						"type":        "string",
						"description": "Report topic.",
					},
					"reportType": map[string]interface{}{
						"type": "string",
						"enum": []string{"summary", "analysis", "comparison", "trend-analysis"},
					},
					"sources": map[string]interface{}{
						"type":        "array",
						"description": "Sources the report should draw on.",
						"items": map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"id":         map[string]interface{}{"type": "string"},
								"title":      map[string]interface{}{"type": "string"},
								"content":    map[string]interface{}{"type": "string"},
								"sourceType": map[string]interface{}{"type": "string"},
							},
							"required": []string{"id"},
						},
					},
				},
				"required": []string{"topic", "reportType"},
			},
		},
	}
}

// Known reports whether name is part of the tool set.
func Known(name string) bool {
	return name == NameSearchSources || name == NameGenerateReport
}
