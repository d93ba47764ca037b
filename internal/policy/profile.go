package policy

import "fmt"

// Profile modes. The mode drives the gating rule in ShouldPrompt.
const (
	ModeStrict     = "strict"
	ModeBalanced   = "balanced"
	ModePermissive = "permissive"
)

// Prompt tracking modes.
const (
	TrackFull       = "full"
	TrackAnonymized = "anonymized"
	TrackOff        = "off"
)

// Sensitive field kinds recognized by the scorer.
const (
	FieldPassword = "password"
	FieldEmail    = "email"
	FieldCredit   = "credit"
	FieldID       = "id"
)

// Weights holds the risk score contribution of each signal kind.
type Weights struct {
	AIDomain       int            `json:"ai_domain"`
	AIOnPage       int            `json:"ai_on_page"`
	InternalSite   int            `json:"internal_site"`
	SensitiveField map[string]int `json:"sensitive_field"`
}

// DefaultWeights returns the built-in scoring weights.
func DefaultWeights() Weights {
	return Weights{
		AIDomain:     40,
		AIOnPage:     25,
		InternalSite: 20,
		SensitiveField: map[string]int{
			FieldPassword: 30,
			FieldEmail:    15,
			FieldCredit:   35,
			FieldID:       25,
		},
	}
}

// Profile is one administrator policy profile.
type Profile struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Mode           string   `json:"mode"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
	BlockedDomains []string `json:"blocked_domains,omitempty"`
	RiskThreshold  int      `json:"risk_threshold"`
	RequirePIN     bool     `json:"require_pin"`
	Weights        Weights  `json:"weights"`
	TrackUsers     bool     `json:"track_users"`
	TrackPrompts   string   `json:"track_prompts"`
}

// Classification is the outcome of matching a host against the lists.
type Classification struct {
	Allowed bool
	Blocked bool
	Matched string
}

// Classify checks host against the profile lists. The allow list is
// consulted first and short-circuits: an allowed host is never blocked.
func (p Profile) Classify(host string) Classification {
	if entry, ok := MatchAny(host, p.AllowedDomains); ok {
		return Classification{Allowed: true, Matched: entry}
	}
	if entry, ok := MatchAny(host, p.BlockedDomains); ok {
		return Classification{Blocked: true, Matched: entry}
	}
	return Classification{}
}

// ShouldPrompt applies the profile gating rule. A permissive profile
// stays silent unless the host is blocklisted; every other mode
// proceeds to the dedup check.
func (p Profile) ShouldPrompt(blocked bool) bool {
	if p.Mode == ModePermissive {
		return blocked
	}
	return true
}

// PINRequired reports whether a prompt at the given risk demands the
// admin PIN.
func (p Profile) PINRequired(risk int) bool {
	return p.RequirePIN && risk >= p.RiskThreshold
}

func (p Profile) validate() error {
	if p.ID == "" {
		return fmt.Errorf("profile without id")
	}
	switch p.Mode {
	case ModeStrict, ModeBalanced, ModePermissive:
	default:
		return fmt.Errorf("profile %q: unknown mode %q", p.ID, p.Mode)
	}
	if p.RiskThreshold < 0 || p.RiskThreshold > MaxRisk {
		return fmt.Errorf("profile %q: risk_threshold %d out of range", p.ID, p.RiskThreshold)
	}
	switch p.TrackPrompts {
	case TrackFull, TrackAnonymized, TrackOff:
	default:
		return fmt.Errorf("profile %q: unknown track_prompts %q", p.ID, p.TrackPrompts)
	}
	for kind := range p.Weights.SensitiveField {
		switch kind {
		case FieldPassword, FieldEmail, FieldCredit, FieldID:
		default:
			return fmt.Errorf("profile %q: unknown sensitive field %q", p.ID, kind)
		}
	}
	return nil
}
