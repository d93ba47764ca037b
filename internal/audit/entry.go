package audit

import (
	"crypto/sha256"
	"encoding/hex"
)

// Entry kinds. One kind per decision-log event.
const (
	KindDomainDetected       = "domain_detected"
	KindUIDetected           = "ui_detected"
	KindUIDetectedSuppressed = "ui_detected_suppressed"
	KindPolicyReprompt       = "policy_reprompt"
	KindRouterDecision       = "router_decision"
	KindPrompt               = "prompt"
)

// TimestampFormat is the layout used in entry timestamps.
const TimestampFormat = "2006-01-02T15:04:05.000Z"

// Entry is one line in the hash-chained JSONL decision log.
// All fields are flat scalars (no map[string]any) to guarantee
// deterministic json.Marshal field order for reproducible hashing.
//
// Tracking modes shape what is present: with user tracking off,
// UserID and UserRole stay empty; prompt capture fills exactly one of
// PromptText (full) or PromptDigest (anonymized).
type Entry struct {
	Timestamp    string `json:"ts"`
	Kind         string `json:"kind"`
	TabID        string `json:"tab_id,omitempty"`
	Host         string `json:"host,omitempty"`
	URL          string `json:"url,omitempty"`
	ProfileID    string `json:"profile_id,omitempty"`
	Risk         int    `json:"risk"`
	Decision     string `json:"decision,omitempty"`
	PINVerified  bool   `json:"pin_verified,omitempty"`
	Cause        string `json:"cause,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	UserRole     string `json:"user_role,omitempty"`
	PromptText   string `json:"prompt_text,omitempty"`
	PromptDigest string `json:"prompt_digest,omitempty"`
	PolicyHash   string `json:"policy_hash,omitempty"`
	PrevHash     string `json:"prev_hash"`
}

// Sink records decision-log entries. The JSONL Log is the default;
// the SQLite sink exists for queryable history.
type Sink interface {
	Record(entry Entry) error
	Close() error
}

// Digest returns the one-way digest recorded for anonymized prompt
// tracking. The salt (the installation id) keeps digests uncomparable
// across installations.
func Digest(salt, text string) string {
	h := sha256.Sum256([]byte(salt + "\x00" + text))
	return hex.EncodeToString(h[:])
}
