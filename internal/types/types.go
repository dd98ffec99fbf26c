// Package types holds the wire-level structures shared across the service.
package types

import (
	"encoding/json"
	"time"
)

// Usage event types recognized by the ledger provider
const (
	EventQuestionAsked   = "question_asked"
	EventReportGenerated = "report_generated"
	EventSourceProcessed = "source_processed"
)

// UsageEvent is an immutable record of one billable action. It is created by
// whichever component performed the action and handed to the ledger client;
// nothing mutates it afterwards.
type UsageEvent struct {
	ID        string                 `json:"id"`
	UserID    string                 `json:"userId"`
	EventType string                 `json:"eventType"`
	Credits   int                    `json:"credits"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// UsageSummary is derived on demand by aggregating a user's usage events.
// TotalCreditsUsed is the sum of Credits over all events and is never negative.
type UsageSummary struct {
	UserID           string    `json:"userId"`
	TotalCreditsUsed int       `json:"totalCreditsUsed"`
	TotalReports     int       `json:"totalReports"`
	TotalSources     int       `json:"totalSources"`
	LastActivity     time.Time `json:"lastActivity"`
	CreditLimit      int       `json:"creditLimit"`
}

// ChatMessage is one turn of incoming conversation history. Content carries
// plain text; Parts carries structured text/tool fragments from richer clients.
type ChatMessage struct {
	Role    string        `json:"role"`
	Content string        `json:"content,omitempty"`
	Parts   []MessagePart `json:"parts,omitempty"`
}

// MessagePart is a fragment of a chat message. Type is either "text" or a
// tool marker of the form "tool-<name>".
type MessagePart struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	State  string          `json:"state,omitempty"`
	Input  json.RawMessage `json:"input,omitempty"`
	Output json.RawMessage `json:"output,omitempty"`
}

// Source type values accepted by the search index
const (
	SourceTypePDF   = "pdf"
	SourceTypeImage = "image"
	SourceTypeURL   = "url"
	SourceTypeFeed  = "feed"
)

// ValidSourceType reports whether t is a recognized source type.
func ValidSourceType(t string) bool {
	switch t {
	case SourceTypePDF, SourceTypeImage, SourceTypeURL, SourceTypeFeed:
		return true
	}
	return false
}

// Source is an indexed document handed to the report generator.
type Source struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	SourceType string `json:"sourceType"`
}

// SearchResult is one ranked hit from the search index.
type SearchResult struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Content        string   `json:"content"`
	SourceType     string   `json:"sourceType"`
	RelevanceScore float64  `json:"relevanceScore"`
	Highlights     []string `json:"highlights,omitempty"`
	SourceURL      string   `json:"sourceUrl,omitempty"`
	PageNumber     int      `json:"pageNumber,omitempty"`
}

// Report types accepted by the generateReport tool
const (
	ReportTypeSummary       = "summary"
	ReportTypeAnalysis      = "analysis"
	ReportTypeComparison    = "comparison"
	ReportTypeTrendAnalysis = "trend-analysis"
)

// ReportSection is one body section of a generated report. Citations is always
// a subset of the IDs of the sources the report was built from.
type ReportSection struct {
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	Citations []string `json:"citations"`
}

// Report is the structured output of the generateReport tool.
type Report struct {
	Title            string          `json:"title"`
	ExecutiveSummary string          `json:"executiveSummary"`
	KeyFindings      []string        `json:"keyFindings"`
	Sections         []ReportSection `json:"sections"`
	Recommendations  []string        `json:"recommendations"`
	Sources          []Source        `json:"sources"`
	GeneratedAt      time.Time       `json:"generatedAt"`
	ProcessingTimeMS int64           `json:"processingTime"`
}
