package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Message types carried in the wire envelope. The page side sends the
// first group, the engine sends the second.
const (
	TypeHello    = "hello"
	TypeNav      = "nav"
	TypeSignals  = "signals"
	TypeDecision = "decision"
	TypePINCheck = "pin_check"
	TypePrompt   = "prompt"

	TypeHelloAck  = "hello_ack"
	TypeDirective = "directive"
	TypeTeardown  = "teardown"
	TypePINResult = "pin_result"
)

// Decision actions a page router may report.
const (
	ActionProceed  = "proceed"
	ActionCancel   = "cancel"
	ActionRedirect = "redirect"
)

// Directive trigger reasons.
const (
	ReasonDomain = "domain"
	ReasonUI     = "ui"
)

// ErrUnknownType is returned by Decode for message types outside the
// protocol. Handlers log it and keep the connection.
var ErrUnknownType = errors.New("unknown message type")

// Envelope is the tagged wire frame. Data holds the payload for Type.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Hello registers a tab session.
type Hello struct {
	TabID string `json:"tab_id"`
}

// HelloAck confirms registration and pins the session to a policy state.
type HelloAck struct {
	TabID      string `json:"tab_id"`
	ProfileID  string `json:"profile_id"`
	PolicyHash string `json:"policy_hash"`
}

// Nav reports a committed navigation.
type Nav struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
}

// SignalReport carries in-page detector findings.
type SignalReport struct {
	TabID     string          `json:"tab_id"`
	URL       string          `json:"url"`
	Signals   []string        `json:"signals,omitempty"`
	Sensitive SensitiveFields `json:"sensitive"`
}

// DecisionReport is the page router's resolution of a prompt.
// AlwaysAllow and AlwaysBlock carry the prompt's checkbox state; the
// engine persists them to the active profile's lists.
type DecisionReport struct {
	TabID       string `json:"tab_id"`
	URL         string `json:"url"`
	Action      string `json:"action"`
	AlwaysAllow bool   `json:"always_allow,omitempty"`
	AlwaysBlock bool   `json:"always_block,omitempty"`
}

// Validate rejects unknown actions before the report reaches the engine.
func (d DecisionReport) Validate() error {
	switch d.Action {
	case ActionProceed, ActionCancel, ActionRedirect:
		return nil
	}
	return fmt.Errorf("invalid decision action %q", d.Action)
}

// PINCheck asks the engine to verify an admin PIN.
type PINCheck struct {
	TabID string `json:"tab_id"`
	PIN   string `json:"pin"`
}

// PINResult answers a PINCheck.
type PINResult struct {
	TabID string `json:"tab_id"`
	OK    bool   `json:"ok"`
}

// PromptCapture reports prompt text submitted on an AI surface. The
// engine records it according to the profile's tracking mode.
type PromptCapture struct {
	TabID string `json:"tab_id"`
	URL   string `json:"url"`
	Text  string `json:"text"`
}

// Context is the classification context a directive was decided on.
type Context struct {
	Host         string          `json:"host"`
	AIDomain     bool            `json:"ai_domain"`
	InternalSite bool            `json:"internal_site"`
	Blocked      bool            `json:"blocked"`
	Signals      []string        `json:"signals,omitempty"`
	Sensitive    SensitiveFields `json:"sensitive"`
}

// Directive orders the page to open a prompt. PINRequired and
// RedirectURL are resolved from the active profile so the page never
// reads policy state itself.
type Directive struct {
	Reason      string  `json:"reason"`
	Context     Context `json:"context"`
	Risk        int     `json:"risk"`
	ProfileID   string  `json:"profile_id"`
	PINRequired bool    `json:"pin_required"`
	RedirectURL string  `json:"redirect_url,omitempty"`
}

// Teardown tells page routers to discard any open prompt.
type Teardown struct {
	Reason string `json:"reason,omitempty"`
}

// Marshal wraps a payload in an envelope of the given type.
func Marshal(msgType string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	return Envelope{Type: msgType, Data: data}, nil
}

// Decode returns the typed payload for an envelope. The switch is
// exhaustive over the protocol; anything else is ErrUnknownType.
func Decode(env Envelope) (any, error) {
	switch env.Type {
	case TypeHello:
		return decodeAs[Hello](env)
	case TypeNav:
		return decodeAs[Nav](env)
	case TypeSignals:
		return decodeAs[SignalReport](env)
	case TypeDecision:
		return decodeAs[DecisionReport](env)
	case TypePINCheck:
		return decodeAs[PINCheck](env)
	case TypePrompt:
		return decodeAs[PromptCapture](env)
	case TypeHelloAck:
		return decodeAs[HelloAck](env)
	case TypeDirective:
		return decodeAs[Directive](env)
	case TypeTeardown:
		return decodeAs[Teardown](env)
	case TypePINResult:
		return decodeAs[PINResult](env)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
}

func decodeAs[T any](env Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %w", env.Type, err)
	}
	return payload, nil
}
