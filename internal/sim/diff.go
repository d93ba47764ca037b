package sim

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DiffEntry represents one trigger whose outcome changed.
type DiffEntry struct {
	Timestamp string `json:"ts"`
	Kind      string `json:"kind"`
	Host      string `json:"host"`
	OldRisk   int    `json:"old_risk"`
	NewRisk   int    `json:"new_risk"`
	OldPrompt bool   `json:"old_prompt"`
	NewPrompt bool   `json:"new_prompt"`
}

// Result holds the complete simulation output.
type Result struct {
	PolicyPath     string      `json:"policy_path"`
	TotalTriggers  int         `json:"total_triggers"`
	Changed        int         `json:"changed"`
	NewlySilent    int         `json:"newly_silent"`
	NewlyPrompting int         `json:"newly_prompting"`
	Changes        []DiffEntry `json:"changes"`
}

func outcome(prompt bool) string {
	if prompt {
		return "prompt"
	}
	return "silent"
}

// FormatText renders the simulation result as human-readable text.
func FormatText(r *Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Simulating %s against %d recorded triggers...\n", r.PolicyPath, r.TotalTriggers)

	if len(r.Changes) == 0 {
		b.WriteString("\nNo changes detected.\n")
		return b.String()
	}

	b.WriteString("\n")
	for _, d := range r.Changes {
		ts := d.Timestamp
		if len(ts) > 19 {
			// Extract HH:MM:SS from the timestamp.
			ts = ts[11:19]
		}
		host := d.Host
		if len(host) > 40 {
			host = host[:37] + "..."
		}
		fmt.Fprintf(&b, "  CHANGED  %s  %-40s %s (risk %d) -> %s (risk %d)\n",
			ts, host, outcome(d.OldPrompt), d.OldRisk, outcome(d.NewPrompt), d.NewRisk)
	}

	fmt.Fprintf(&b, "\n%d of %d triggers changed.", r.Changed, r.TotalTriggers)
	if r.NewlySilent > 0 || r.NewlyPrompting > 0 {
		fmt.Fprintf(&b, " %d newly silent, %d newly prompting.", r.NewlySilent, r.NewlyPrompting)
	}
	b.WriteString("\n")

	return b.String()
}

// FormatJSON renders the simulation result as JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal simulation result: %w", err)
	}
	return string(data), nil
}
