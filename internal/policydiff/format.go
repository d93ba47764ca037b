package policydiff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders the diff result as human-readable text.
func FormatText(r *DiffResult) string {
	if !r.HasChanges {
		return fmt.Sprintf("Policy diff: %s → %s\n\nNo changes detected.\n", r.OldPath, r.NewPath)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Policy diff: %s → %s\n", r.OldPath, r.NewPath)

	topLevel := filterTopLevel(r.Changes)
	if len(topLevel) > 0 {
		b.WriteString("\n")
		for _, c := range topLevel {
			fmt.Fprintf(&b, "  %-24s %s → %s", c.Field+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
	}

	lists := make(map[string][]ListChange)
	for _, lc := range r.ListChanges {
		lists[lc.Profile] = append(lists[lc.Profile], lc)
	}

	for _, id := range profileOrder(r.Changes, r.ListChanges) {
		fmt.Fprintf(&b, "\n  Profile %s:\n", id)
		for _, c := range r.Changes {
			pid, rest, ok := splitProfileField(c.Field)
			if !ok || pid != id {
				continue
			}
			fmt.Fprintf(&b, "    %-28s %s → %s", rest+":", c.Old, c.New)
			if c.Comment != "" {
				fmt.Fprintf(&b, "  (%s)", c.Comment)
			}
			b.WriteString("\n")
		}
		for _, lc := range lists[id] {
			fmt.Fprintf(&b, "    %s %s: %s\n", listMark(lc.Type), lc.List, lc.Entry)
		}
	}

	var profAdds []Change
	for _, c := range r.Changes {
		if c.Field == "profiles" {
			profAdds = append(profAdds, c)
		}
	}
	if len(profAdds) > 0 {
		b.WriteString("\n")
		for _, c := range profAdds {
			switch c.Comment {
			case "added":
				fmt.Fprintf(&b, "  profiles: + %s\n", c.New)
			case "removed":
				fmt.Fprintf(&b, "  profiles: - %s\n", c.Old)
			}
		}
	}

	if doc := lists[""]; len(doc) > 0 {
		b.WriteString("\n")
		for _, lc := range doc {
			fmt.Fprintf(&b, "  %s: %s %s\n", lc.List, listMark(lc.Type), lc.Entry)
		}
	}

	return b.String()
}

// FormatJSON renders the diff result as JSON.
func FormatJSON(r *DiffResult) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal diff result: %w", err)
	}
	return string(data), nil
}

func listMark(changeType string) string {
	if changeType == "removed" {
		return "-"
	}
	return "+"
}

func filterTopLevel(changes []Change) []Change {
	var out []Change
	for _, c := range changes {
		if !strings.Contains(c.Field, ".") && c.Field != "profiles" {
			out = append(out, c)
		}
	}
	return out
}

func profileOrder(changes []Change, lists []ListChange) []string {
	var order []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id == "" || seen[id] {
			return
		}
		seen[id] = true
		order = append(order, id)
	}
	for _, c := range changes {
		if id, _, ok := splitProfileField(c.Field); ok {
			add(id)
		}
	}
	for _, lc := range lists {
		add(lc.Profile)
	}
	return order
}

func splitProfileField(field string) (id, rest string, ok bool) {
	const prefix = "profiles."
	if !strings.HasPrefix(field, prefix) {
		return "", "", false
	}
	trimmed := strings.TrimPrefix(field, prefix)
	i := strings.Index(trimmed, ".")
	if i < 0 {
		return "", "", false
	}
	return trimmed[:i], trimmed[i+1:], true
}
