package audit

import (
	"path/filepath"
	"testing"
	"time"
)

// writeTimelineLog creates a temp decision log with known entries.
func writeTimelineLog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decisions.jsonl")
	log, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()

	base := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	entries := []Entry{
		{Timestamp: base.Format(TimestampFormat), Kind: KindDomainDetected, TabID: "t1", Host: "chatgpt.com", Risk: 40},
		{Timestamp: base.Add(2 * time.Second).Format(TimestampFormat), Kind: KindRouterDecision, TabID: "t1", Host: "chatgpt.com", Decision: "proceed", Risk: 40},
		{Timestamp: base.Add(4 * time.Second).Format(TimestampFormat), Kind: KindDomainDetected, TabID: "t2", Host: "claude.ai", Risk: 40},
		{Timestamp: base.Add(6 * time.Second).Format(TimestampFormat), Kind: KindUIDetectedSuppressed, TabID: "t1", Host: "chatgpt.com", Cause: "consent"},
		{Timestamp: base.Add(8 * time.Second).Format(TimestampFormat), Kind: KindPrompt, TabID: "t1", Host: "chatgpt.com", PromptDigest: "abc123"},
		{Timestamp: base.Add(10 * time.Second).Format(TimestampFormat), Kind: KindRouterDecision, TabID: "t1", Host: "badtool.ai", Decision: "cancel", Cause: "always_block", Risk: 100},
	}

	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatal(err)
		}
	}

	return path
}

func TestTimelineFiltersByTab(t *testing.T) {
	path := writeTimelineLog(t)

	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 5 {
		t.Errorf("expected 5 entries for t1, got %d", len(result.Entries))
	}

	for _, e := range result.Entries {
		if e.TabID != "t1" {
			t.Errorf("unexpected tab id: %s", e.TabID)
		}
	}
}

func TestTimelineTimeRangeFrom(t *testing.T) {
	path := writeTimelineLog(t)

	from := time.Date(2026, 3, 10, 14, 0, 5, 0, time.UTC)
	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1", From: from})
	if err != nil {
		t.Fatal(err)
	}

	// Entries at 14:00:06, 14:00:08, 14:00:10
	if len(result.Entries) != 3 {
		t.Errorf("expected 3 entries after from filter, got %d", len(result.Entries))
	}
}

func TestTimelineTimeRangeTo(t *testing.T) {
	path := writeTimelineLog(t)

	to := time.Date(2026, 3, 10, 14, 0, 3, 0, time.UTC)
	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1", To: to})
	if err != nil {
		t.Fatal(err)
	}

	// Entries at 14:00:00 and 14:00:02
	if len(result.Entries) != 2 {
		t.Errorf("expected 2 entries before to filter, got %d", len(result.Entries))
	}
}

func TestTimelineTimeRangeBoth(t *testing.T) {
	path := writeTimelineLog(t)

	from := time.Date(2026, 3, 10, 14, 0, 1, 0, time.UTC)
	to := time.Date(2026, 3, 10, 14, 0, 7, 0, time.UTC)
	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1", From: from, To: to})
	if err != nil {
		t.Fatal(err)
	}

	// Entries at 14:00:02 and 14:00:06
	if len(result.Entries) != 2 {
		t.Errorf("expected 2 entries in time window, got %d", len(result.Entries))
	}
}

func TestTimelineEmptyResult(t *testing.T) {
	path := writeTimelineLog(t)

	result, err := BuildTimeline(path, TimelineFilter{TabID: "t-nonexistent"})
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Entries) != 0 {
		t.Errorf("expected 0 entries for unknown tab, got %d", len(result.Entries))
	}
	if result.Summary.Total != 0 {
		t.Errorf("expected 0 total, got %d", result.Summary.Total)
	}
}

func TestTimelineSummaryCounts(t *testing.T) {
	path := writeTimelineLog(t)

	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1"})
	if err != nil {
		t.Fatal(err)
	}

	s := result.Summary
	if s.Total != 5 {
		t.Errorf("total: expected 5, got %d", s.Total)
	}
	if s.Triggers != 1 {
		t.Errorf("triggers: expected 1, got %d", s.Triggers)
	}
	if s.Suppressed != 1 {
		t.Errorf("suppressed: expected 1, got %d", s.Suppressed)
	}
	if s.Proceeds != 1 {
		t.Errorf("proceeds: expected 1, got %d", s.Proceeds)
	}
	if s.Cancels != 1 {
		t.Errorf("cancels: expected 1, got %d", s.Cancels)
	}
	if s.Prompts != 1 {
		t.Errorf("prompts: expected 1, got %d", s.Prompts)
	}
}

func TestTimelineMaxRiskTracked(t *testing.T) {
	path := writeTimelineLog(t)

	result, err := BuildTimeline(path, TimelineFilter{TabID: "t1"})
	if err != nil {
		t.Fatal(err)
	}

	if result.Summary.MaxRisk != 100 {
		t.Errorf("max risk: expected 100, got %d", result.Summary.MaxRisk)
	}

	// t2 only saw the risk 40 trigger.
	result2, err := BuildTimeline(path, TimelineFilter{TabID: "t2"})
	if err != nil {
		t.Fatal(err)
	}
	if result2.Summary.MaxRisk != 40 {
		t.Errorf("max risk for t2: expected 40, got %d", result2.Summary.MaxRisk)
	}
}

func TestTimelineMissingFile(t *testing.T) {
	_, err := BuildTimeline(filepath.Join(t.TempDir(), "absent.jsonl"), TimelineFilter{TabID: "t1"})
	if err == nil {
		t.Error("expected error for missing log")
	}
}
