package engine

import (
	"fmt"

	"github.com/tabwarden/tabwarden/internal/directory"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
)

// Assessment is an offline policy evaluation of one trigger.
type Assessment struct {
	Host        string `json:"host"`
	Allowed     bool   `json:"allowed"`
	Blocked     bool   `json:"blocked"`
	AIDomain    bool   `json:"ai_domain"`
	Risk        int    `json:"risk"`
	WouldPrompt bool   `json:"would_prompt"`
	PINRequired bool   `json:"pin_required"`
}

// Assess classifies and scores a trigger against a document without
// consent state or delivery. It mirrors the live pipeline's ordering:
// allow short-circuit, navigation gate, score with blocklist override,
// mode gate. The check and simulate commands use it to preview policy
// outcomes.
func Assess(doc *policy.Document, rawURL string, signals []string, sensitive model.SensitiveFields) (Assessment, error) {
	active, ok := doc.Active()
	if !ok {
		return Assessment{}, fmt.Errorf("selected profile %q not found", doc.SelectedProfileID)
	}
	host, err := policy.NormalizeHost(rawURL)
	if err != nil {
		return Assessment{}, err
	}

	a := Assessment{Host: host}
	cls := active.Classify(host)
	a.Allowed = cls.Allowed
	a.Blocked = cls.Blocked
	if cls.Allowed {
		return a, nil
	}

	rep := model.SignalReport{URL: rawURL, Signals: signals, Sensitive: sensitive}.Sanitized()
	dir := directory.New(doc.CustomAIDomains)
	mctx := model.Context{
		Host:         host,
		AIDomain:     dir.IsAIDomain(host),
		InternalSite: directory.IsInternalSite(host),
		Blocked:      cls.Blocked,
		Signals:      rep.Signals,
		Sensitive:    rep.Sensitive,
	}
	a.AIDomain = mctx.AIDomain

	// A bare navigation to a host that is neither an AI destination
	// nor blocklisted never prompts, so it scores as silent.
	if rep.Empty() && !mctx.AIDomain && !mctx.Blocked {
		return a, nil
	}

	a.Risk = policy.EffectiveRisk(mctx.Blocked, policy.Score(active.Weights, mctx))
	a.WouldPrompt = active.ShouldPrompt(mctx.Blocked)
	a.PINRequired = a.WouldPrompt && active.PINRequired(a.Risk)
	return a, nil
}
