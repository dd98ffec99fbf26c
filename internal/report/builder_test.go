package report

import (
	"testing"

	"github.com/researchai/research-bridge/internal/types"
)

func sourceList(n int) []types.Source {
	sources := make([]types.Source, 0, n)
	for i := 0; i < n; i++ {
		sources = append(sources, types.Source{
			ID:         string(rune('a' + i)),
			Title:      "Source",
			Content:    "content",
			SourceType: types.SourceTypePDF,
		})
	}
	return sources
}

func assertCitationsAreSubset(t *testing.T, report *types.Report) {
	t.Helper()
	known := map[string]bool{}
	for _, s := range report.Sources {
		known[s.ID] = true
	}
	for _, section := range report.Sections {
		for _, id := range section.Citations {
			if !known[id] {
				t.Fatalf("section %q cites unknown source %q", section.Title, id)
			}
		}
	}
}

func TestBuild_Structure(t *testing.T) {
	report := Build("renewable energy", sourceList(4), types.ReportTypeSummary)

	if report.Title != "Summary Report: renewable energy" {
		t.Fatalf("unexpected title: %q", report.Title)
	}
	if len(report.KeyFindings) != 4 {
		t.Fatalf("expected 4 key findings, got %d", len(report.KeyFindings))
	}
	if len(report.Sections) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(report.Sections))
	}
	if len(report.Recommendations) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(report.Recommendations))
	}
	if len(report.Sources) != 4 {
		t.Fatalf("expected sources to be carried into the report")
	}
	if report.GeneratedAt.IsZero() {
		t.Fatalf("expected generation timestamp to be set")
	}
	assertCitationsAreSubset(t, report)
}

func TestBuild_SectionCitationWindows(t *testing.T) {
	report := Build("topic", sourceList(4), types.ReportTypeAnalysis)

	wantCitations := [][]string{{"a", "b"}, {"b", "c"}, {"c", "d"}}
	for i, section := range report.Sections {
		got := section.Citations
		want := wantCitations[i]
		if len(got) != len(want) {
			t.Fatalf("section %d: expected citations %v, got %v", i, want, got)
		}
		for j := range want {
			if got[j] != want[j] {
				t.Fatalf("section %d: expected citations %v, got %v", i, want, got)
			}
		}
	}
}

func TestBuild_FewSourcesClipsCitations(t *testing.T) {
	for n := 0; n <= 2; n++ {
		report := Build("topic", sourceList(n), types.ReportTypeComparison)
		assertCitationsAreSubset(t, report)
		for _, section := range report.Sections {
			if len(section.Citations) > n {
				t.Fatalf("with %d sources section %q cites %d documents", n, section.Title, len(section.Citations))
			}
		}
	}
}

func TestBuild_ZeroSourcesStillProducesReport(t *testing.T) {
	report := Build("topic", nil, types.ReportTypeTrendAnalysis)

	if report.Title != "Trend-analysis Report: topic" {
		t.Fatalf("unexpected title: %q", report.Title)
	}
	for _, section := range report.Sections {
		if len(section.Citations) != 0 {
			t.Fatalf("expected no citations without sources, got %v", section.Citations)
		}
	}
}

func TestValidType(t *testing.T) {
	for _, rt := range []string{types.ReportTypeSummary, types.ReportTypeAnalysis, types.ReportTypeComparison, types.ReportTypeTrendAnalysis} {
		if !ValidType(rt) {
			t.Fatalf("expected %q to be valid", rt)
		}
	}
	if ValidType("essay") || ValidType("") {
		t.Fatalf("expected unknown types to be invalid")
	}
}
