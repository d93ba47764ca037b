package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Filter narrows which entries ReadAll returns. Zero values mean no
// bound.
type Filter struct {
	Kinds []string
	From  time.Time
	To    time.Time
}

// Exporter yields recorded entries matching a filter. Both sink
// implementations satisfy it so the export surface does not care where
// the log lives.
type Exporter interface {
	Export(f Filter) ([]Entry, error)
}

func (f Filter) matches(entry Entry) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if entry.Kind == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !f.From.IsZero() || !f.To.IsZero() {
		ts, err := time.Parse(TimestampFormat, entry.Timestamp)
		if err != nil {
			return false
		}
		if !f.From.IsZero() && ts.Before(f.From) {
			return false
		}
		if !f.To.IsZero() && ts.After(f.To) {
			return false
		}
	}
	return true
}

// ReadAll decodes a JSONL decision log into entries matching the
// filter. Malformed lines are skipped; Verify is the tool that cares
// about them.
func ReadAll(path string, filter Filter) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			continue
		}
		if filter.matches(entry) {
			entries = append(entries, entry)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan decision log: %w", err)
	}
	return entries, nil
}

// ExportJSON renders entries as an indented JSON array for external
// analysis.
func ExportJSON(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	return data, nil
}
