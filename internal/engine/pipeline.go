package engine

import (
	"context"
	"fmt"

	"github.com/tabwarden/tabwarden/internal/alert"
	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/directory"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
)

// causeGating marks suppressions by the profile mode rather than the
// consent store.
const causeGating = "gating"

// trigger is one evaluation request flowing through the pipeline.
type trigger struct {
	tabID     string
	url       string
	host      string
	reason    string
	signals   []string
	sensitive model.SensitiveFields
	sweep     bool
}

// HandleNavigation runs the pipeline for a committed navigation.
// Non-web URLs are remembered for bookkeeping but never evaluated.
func (e *Engine) HandleNavigation(ctx context.Context, nav model.Nav) error {
	e.rememberTab(nav.TabID, nav.URL)
	snap := e.store.Current()
	if snap == nil {
		return nil
	}
	host, err := policy.NormalizeHost(nav.URL)
	if err != nil {
		return nil
	}
	return e.evaluate(ctx, snap, trigger{
		tabID:  nav.TabID,
		url:    nav.URL,
		host:   host,
		reason: model.ReasonDomain,
	})
}

// HandleSignals runs the pipeline for an in-page detector report. The
// report is sanitized first: signals deduplicated and capped, counts
// clamped. An empty report is dropped without evaluation.
func (e *Engine) HandleSignals(ctx context.Context, rep model.SignalReport) error {
	rep = rep.Sanitized()
	e.rememberTab(rep.TabID, rep.URL)
	snap := e.store.Current()
	if snap == nil {
		return nil
	}
	host, err := policy.NormalizeHost(rep.URL)
	if err != nil {
		return nil
	}
	if rep.Empty() {
		return nil
	}
	return e.evaluate(ctx, snap, trigger{
		tabID:     rep.TabID,
		url:       rep.URL,
		host:      host,
		reason:    model.ReasonUI,
		signals:   rep.Signals,
		sensitive: rep.Sensitive,
	})
}

// evaluate is the ordered decision pipeline: classify, score, gate,
// admit, deliver. Every early return is a deliberate policy outcome.
func (e *Engine) evaluate(ctx context.Context, snap *policy.Snapshot, t trigger) error {
	prof := snap.Active

	cls := prof.Classify(t.host)
	if cls.Allowed {
		// Allow-listed hosts are invisible: no prompt, no log entry.
		return nil
	}

	dir := directory.New(snap.Doc.CustomAIDomains)
	mctx := model.Context{
		Host:         t.host,
		AIDomain:     dir.IsAIDomain(t.host),
		InternalSite: directory.IsInternalSite(t.host),
		Blocked:      cls.Blocked,
		Signals:      t.signals,
		Sensitive:    t.sensitive,
	}

	// A navigation only triggers for AI destinations or blocklisted
	// hosts; everything else on the web is none of our business.
	if t.reason == model.ReasonDomain && !mctx.AIDomain && !mctx.Blocked {
		return nil
	}

	score := policy.Score(prof.Weights, mctx)
	risk := policy.EffectiveRisk(mctx.Blocked, score)

	if !prof.ShouldPrompt(mctx.Blocked) {
		if t.reason == model.ReasonUI {
			e.record(snap, audit.Entry{
				Kind:  audit.KindUIDetectedSuppressed,
				TabID: t.tabID,
				Host:  t.host,
				URL:   t.url,
				Risk:  risk,
				Cause: causeGating,
			})
		}
		e.metrics.Suppressed(causeGating)
		return nil
	}

	key := consent.Key{TabID: t.tabID, Host: t.host}
	verdict, err := e.consent.Admit(ctx, key)
	if err != nil {
		return fmt.Errorf("consent admit: %w", err)
	}
	if !verdict.Admitted {
		if t.reason == model.ReasonUI {
			e.record(snap, audit.Entry{
				Kind:  audit.KindUIDetectedSuppressed,
				TabID: t.tabID,
				Host:  t.host,
				URL:   t.url,
				Risk:  risk,
				Cause: verdict.Cause,
			})
		}
		e.metrics.Suppressed(verdict.Cause)
		return nil
	}

	d := model.Directive{
		Reason:      t.reason,
		Context:     mctx,
		Risk:        risk,
		ProfileID:   prof.ID,
		PINRequired: prof.PINRequired(risk),
		RedirectURL: snap.Doc.RedirectURL,
	}
	if e.deliver(t.tabID, d) {
		e.setPending(key, d)
	}

	kind := audit.KindDomainDetected
	switch {
	case t.sweep:
		kind = audit.KindPolicyReprompt
	case t.reason == model.ReasonUI:
		kind = audit.KindUIDetected
	}
	e.record(snap, audit.Entry{
		Kind:  kind,
		TabID: t.tabID,
		Host:  t.host,
		URL:   t.url,
		Risk:  risk,
	})
	e.metrics.PromptDelivered(t.reason, risk)

	if mctx.Blocked {
		e.dispatchAlert(alert.KindBlocklistHit, snap, t.tabID, t.host, risk)
	}
	return nil
}

// HandleDecision records a router decision, grants consent on
// proceed, and persists always-allow / always-block list updates.
func (e *Engine) HandleDecision(ctx context.Context, rep model.DecisionReport) error {
	if err := rep.Validate(); err != nil {
		return err
	}
	snap := e.store.Current()
	if snap == nil {
		return nil
	}
	host, err := policy.NormalizeHost(rep.URL)
	if err != nil {
		return fmt.Errorf("decision url: %w", err)
	}

	key := consent.Key{TabID: rep.TabID, Host: host}
	directive, prompted := e.takePending(key)

	entry := audit.Entry{
		Kind:     audit.KindRouterDecision,
		TabID:    rep.TabID,
		Host:     host,
		URL:      rep.URL,
		Decision: rep.Action,
	}
	if prompted {
		entry.Risk = directive.Risk
		// The router only proceeds past a PIN gate after verification,
		// and the directive is what demanded the gate.
		entry.PINVerified = directive.PINRequired && rep.Action == model.ActionProceed
	}
	switch {
	case rep.AlwaysBlock:
		entry.Cause = "always_block"
	case rep.AlwaysAllow:
		entry.Cause = "always_allow"
	}
	e.record(snap, entry)
	e.metrics.Decision(rep.Action)

	if prompted && directive.PINRequired {
		switch rep.Action {
		case model.ActionProceed:
			e.dispatchAlert(alert.KindPINProceed, snap, rep.TabID, host, directive.Risk)
		case model.ActionCancel:
			// The page router shields rather than dismissing.
			e.dispatchAlert(alert.KindShielded, snap, rep.TabID, host, directive.Risk)
		}
	}

	switch {
	case rep.AlwaysBlock:
		return e.appendToList(ctx, host, false)
	case rep.AlwaysAllow:
		return e.appendToList(ctx, host, true)
	case rep.Action == model.ActionProceed:
		if err := e.consent.Grant(ctx, key); err != nil {
			return fmt.Errorf("consent grant: %w", err)
		}
	}
	return nil
}

// appendToList persists a list update on the active profile and runs
// the policy-change path so every open prompt re-evaluates.
func (e *Engine) appendToList(ctx context.Context, host string, allow bool) error {
	snap, err := e.store.Mutate(func(doc *policy.Document) error {
		for i := range doc.Profiles {
			if doc.Profiles[i].ID != doc.SelectedProfileID {
				continue
			}
			if allow {
				doc.Profiles[i].AllowedDomains = appendHost(doc.Profiles[i].AllowedDomains, host)
			} else {
				doc.Profiles[i].BlockedDomains = appendHost(doc.Profiles[i].BlockedDomains, host)
			}
			return nil
		}
		return fmt.Errorf("selected profile %q not found", doc.SelectedProfileID)
	})
	if err != nil {
		return fmt.Errorf("persist list update: %w", err)
	}
	e.OnPolicyChanged(ctx, snap)
	return nil
}

func appendHost(list []string, host string) []string {
	for _, entry := range list {
		if entry == host {
			return list
		}
	}
	return append(list, host)
}

// HandlePrompt records captured prompt text according to the active
// profile's tracking mode. Anything but an explicit "full" or
// "anonymized" records nothing.
func (e *Engine) HandlePrompt(_ context.Context, pc model.PromptCapture) error {
	snap := e.store.Current()
	if snap == nil {
		return nil
	}
	host, err := policy.NormalizeHost(pc.URL)
	if err != nil {
		return nil
	}

	entry := audit.Entry{
		Kind:  audit.KindPrompt,
		TabID: pc.TabID,
		Host:  host,
		URL:   pc.URL,
	}
	switch snap.Active.TrackPrompts {
	case policy.TrackFull:
		entry.PromptText = pc.Text
	case policy.TrackAnonymized:
		entry.PromptDigest = audit.Digest(e.ident.ID, pc.Text)
	default:
		return nil
	}
	e.record(snap, entry)
	return nil
}
