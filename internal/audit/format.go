package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a TimelineResult as a human-readable text
// timeline. Prompt text is never echoed; captured prompts show only
// that capture happened.
func FormatTimeline(result *TimelineResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Tab: %s | No entries found.\n", result.TabID)
	}

	var b strings.Builder

	// Header
	first := formatDateTime(result.Summary.FirstTimestamp)
	last := formatTimeOnly(result.Summary.LastTimestamp)
	fmt.Fprintf(&b, "Tab: %s | %s to %s UTC\n", result.TabID, first, last)
	b.WriteString(separator + "\n")

	// Entries
	for _, e := range result.Entries {
		ts := formatTimeOnly(e.Timestamp)
		host := truncate(e.Host, 28)
		fmt.Fprintf(&b, "%-10s %-24s %-28s %s\n", ts, e.Kind, host, entryDetail(e))
	}

	// Footer
	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))

	return b.String()
}

// FormatJSON renders a TimelineResult as indented JSON.
func FormatJSON(result *TimelineResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal timeline: %w", err)
	}
	return string(data), nil
}

func entryDetail(e Entry) string {
	switch e.Kind {
	case KindRouterDecision:
		detail := e.Decision
		if e.PINVerified {
			detail += " (pin verified)"
		}
		if e.Cause != "" {
			detail += "  [" + e.Cause + "]"
		}
		return detail
	case KindUIDetectedSuppressed:
		return fmt.Sprintf("(%s)", e.Cause)
	case KindPrompt:
		if e.PromptDigest != "" {
			return "prompt captured (anonymized)"
		}
		return "prompt captured"
	default:
		return fmt.Sprintf("risk %d", e.Risk)
	}
}

func formatDateTime(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s TimelineSummary) string {
	parts := []string{}
	if s.Triggers > 0 {
		parts = append(parts, fmt.Sprintf("%d triggers", s.Triggers))
	}
	if s.Suppressed > 0 {
		parts = append(parts, fmt.Sprintf("%d suppressed", s.Suppressed))
	}
	if s.Proceeds > 0 {
		parts = append(parts, fmt.Sprintf("%d proceed", s.Proceeds))
	}
	if s.Cancels > 0 {
		parts = append(parts, fmt.Sprintf("%d cancel", s.Cancels))
	}
	if s.Redirects > 0 {
		parts = append(parts, fmt.Sprintf("%d redirect", s.Redirects))
	}
	if s.Prompts > 0 {
		parts = append(parts, fmt.Sprintf("%d prompts captured", s.Prompts))
	}
	if len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d entries", s.Total))
	}

	return fmt.Sprintf("Summary: %s | Max risk: %d\n", strings.Join(parts, ", "), s.MaxRisk)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
