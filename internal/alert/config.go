package alert

// Event kinds administrators can subscribe to.
const (
	KindBlocklistHit = "blocklist_hit"
	KindPINProceed   = "pin_proceed"
	KindShielded     = "shielded"
)

// WebhookConfig defines one admin webhook destination.
type WebhookConfig struct {
	Name    string            `yaml:"name"    json:"name"`
	URL     string            `yaml:"url"     json:"url"`
	Format  string            `yaml:"format"  json:"format"` // "generic", "slack", "pagerduty"
	Kinds   []string          `yaml:"kinds"   json:"kinds"`
	Headers map[string]string `yaml:"headers" json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp  string `json:"timestamp"`
	Kind       string `json:"kind"`
	TabID      string `json:"tab_id,omitempty"`
	Host       string `json:"host"`
	ProfileID  string `json:"profile_id"`
	Risk       int    `json:"risk"`
	PolicyHash string `json:"policy_hash,omitempty"`
}
