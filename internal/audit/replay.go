package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// TimelineFilter holds filtering criteria for a tab timeline.
type TimelineFilter struct {
	TabID string
	From  time.Time // zero value = no lower bound
	To    time.Time // zero value = no upper bound
}

// TimelineSummary holds event counts and metadata for one tab's history.
type TimelineSummary struct {
	Total          int    `json:"total"`
	Triggers       int    `json:"triggers"`
	Suppressed     int    `json:"suppressed"`
	Proceeds       int    `json:"proceeds"`
	Cancels        int    `json:"cancels"`
	Redirects      int    `json:"redirects"`
	Prompts        int    `json:"prompts"`
	FirstTimestamp string `json:"first_timestamp"`
	LastTimestamp  string `json:"last_timestamp"`
	MaxRisk        int    `json:"max_risk"`
}

// TimelineResult holds filtered entries and summary for one tab.
type TimelineResult struct {
	TabID   string          `json:"tab_id"`
	Entries []Entry         `json:"entries"`
	Summary TimelineSummary `json:"summary"`
}

// BuildTimeline reads the decision log and returns the entries for one
// tab in recorded order. Malformed lines are skipped; use Verify for
// integrity checking.
func BuildTimeline(path string, filter TimelineFilter) (*TimelineResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	result := &TimelineResult{
		TabID: filter.TabID,
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue // skip malformed lines
		}

		if entry.TabID != filter.TabID {
			continue
		}

		// Time range filtering
		if !filter.From.IsZero() || !filter.To.IsZero() {
			ts, err := time.Parse(TimestampFormat, entry.Timestamp)
			if err != nil {
				continue // skip unparseable timestamps
			}
			if !filter.From.IsZero() && ts.Before(filter.From) {
				continue
			}
			if !filter.To.IsZero() && ts.After(filter.To) {
				continue
			}
		}

		result.Entries = append(result.Entries, entry)
		updateSummary(&result.Summary, entry)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read decision log: %w", err)
	}

	return result, nil
}

func updateSummary(s *TimelineSummary, entry Entry) {
	s.Total++

	switch entry.Kind {
	case KindDomainDetected, KindUIDetected, KindPolicyReprompt:
		s.Triggers++
	case KindUIDetectedSuppressed:
		s.Suppressed++
	case KindRouterDecision:
		switch entry.Decision {
		case "proceed":
			s.Proceeds++
		case "cancel":
			s.Cancels++
		case "redirect":
			s.Redirects++
		}
	case KindPrompt:
		s.Prompts++
	}

	if entry.Risk > s.MaxRisk {
		s.MaxRisk = entry.Risk
	}

	if s.FirstTimestamp == "" {
		s.FirstTimestamp = entry.Timestamp
	}
	s.LastTimestamp = entry.Timestamp
}
