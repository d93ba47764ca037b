package model

// MaxSignals caps how many detector signals one report may carry.
const MaxSignals = 5

// SensitiveFields counts sensitive inputs visible on the page.
type SensitiveFields struct {
	Password int `json:"password"`
	Email    int `json:"email"`
	Credit   int `json:"credit"`
	ID       int `json:"id"`
}

// Clamped floors every count at zero. Reports come from page script
// and are not trusted to be well formed.
func (s SensitiveFields) Clamped() SensitiveFields {
	return SensitiveFields{
		Password: max(s.Password, 0),
		Email:    max(s.Email, 0),
		Credit:   max(s.Credit, 0),
		ID:       max(s.ID, 0),
	}
}

// Total is the clamped sum across all field kinds.
func (s SensitiveFields) Total() int {
	c := s.Clamped()
	return c.Password + c.Email + c.Credit + c.ID
}

// Sanitized enforces the report contract: signals deduplicated in
// order, capped at MaxSignals, sensitive counts clamped at zero.
func (r SignalReport) Sanitized() SignalReport {
	out := r
	out.Sensitive = r.Sensitive.Clamped()

	if len(r.Signals) == 0 {
		return out
	}
	seen := make(map[string]struct{}, len(r.Signals))
	deduped := make([]string, 0, len(r.Signals))
	for _, sig := range r.Signals {
		if sig == "" {
			continue
		}
		if _, dup := seen[sig]; dup {
			continue
		}
		seen[sig] = struct{}{}
		deduped = append(deduped, sig)
		if len(deduped) == MaxSignals {
			break
		}
	}
	out.Signals = deduped
	return out
}

// Empty reports whether the report carries nothing worth evaluating.
func (r SignalReport) Empty() bool {
	return len(r.Signals) == 0 && r.Sensitive.Total() == 0
}
