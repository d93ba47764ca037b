package audit

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestFormatTimelineHeaderAndSummary(t *testing.T) {
	path := writeTimelineLog(t)
	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1"})
	if err != nil {
		t.Fatal(err)
	}

	out := FormatTimeline(result)

	if !strings.Contains(out, "Tab: t1") {
		t.Error("expected header to contain tab id")
	}
	if !strings.Contains(out, "Summary:") {
		t.Error("expected summary line")
	}
	if !strings.Contains(out, "1 proceed") {
		t.Errorf("expected '1 proceed' in summary, got:\n%s", out)
	}
	if !strings.Contains(out, "1 cancel") {
		t.Errorf("expected '1 cancel' in summary, got:\n%s", out)
	}
	if !strings.Contains(out, "Max risk: 100") {
		t.Errorf("expected max risk in summary, got:\n%s", out)
	}
}

func TestFormatTimelineEntryColumns(t *testing.T) {
	path := writeTimelineLog(t)
	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1"})
	if err != nil {
		t.Fatal(err)
	}

	out := FormatTimeline(result)

	if !strings.Contains(out, "chatgpt.com") {
		t.Error("expected chatgpt.com host")
	}
	if !strings.Contains(out, "risk 40") {
		t.Error("expected risk detail on trigger entries")
	}
	if !strings.Contains(out, "proceed") {
		t.Error("expected proceed decision")
	}
	if !strings.Contains(out, "[always_block]") {
		t.Error("expected [always_block] tag")
	}
	if !strings.Contains(out, "(consent)") {
		t.Error("expected (consent) suppression cause")
	}
	if !strings.Contains(out, "prompt captured (anonymized)") {
		t.Error("expected anonymized prompt marker")
	}
	if strings.Contains(out, "abc123") {
		t.Error("prompt digest must not be echoed")
	}
}

func TestFormatJSONValid(t *testing.T) {
	path := writeTimelineLog(t)
	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1"})
	if err != nil {
		t.Fatal(err)
	}

	jsonStr, err := FormatJSON(result)
	if err != nil {
		t.Fatal(err)
	}

	var parsed TimelineResult
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		t.Fatalf("JSON output not valid: %v", err)
	}
	if parsed.TabID != "t1" {
		t.Errorf("expected tab id t1, got %s", parsed.TabID)
	}
	if len(parsed.Entries) != 5 {
		t.Errorf("expected 5 entries in JSON, got %d", len(parsed.Entries))
	}
	if parsed.Summary.Total != 5 {
		t.Errorf("expected total 5 in JSON summary, got %d", parsed.Summary.Total)
	}
}

func TestFormatTimelineEmptyEntries(t *testing.T) {
	result := &TimelineResult{
		TabID: "t-empty",
	}

	out := FormatTimeline(result)
	if !strings.Contains(out, "No entries found") {
		t.Errorf("expected 'No entries found' message, got:\n%s", out)
	}
}
