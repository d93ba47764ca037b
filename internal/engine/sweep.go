package engine

import (
	"context"

	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
)

// OnPolicyChanged applies a new snapshot to the live system. The order
// is load-bearing: stale consent state is cleared before any tab is
// re-evaluated, so a grant issued under the old policy can never
// suppress a prompt the new policy demands.
func (e *Engine) OnPolicyChanged(ctx context.Context, snap *policy.Snapshot) {
	if snap == nil {
		return
	}

	if err := e.consent.Reset(ctx); err != nil {
		e.log.Error("consent reset on policy change", "err", err)
	}
	e.mu.Lock()
	e.pending = make(map[consent.Key]model.Directive)
	e.mu.Unlock()
	e.metrics.PolicyReloaded()

	// Tear down stale prompts before re-delivering fresh ones.
	if sender := e.currentSender(); sender != nil {
		env, err := model.Marshal(model.TypeTeardown, model.Teardown{Reason: "policy_changed"})
		if err == nil {
			sender.Broadcast(env)
		}
	}

	e.sweep(ctx, snap)
	e.log.Info("policy change applied", "hash", snap.Hash, "profile", snap.Active.ID)
}

// sweep re-runs the navigation pipeline for every connected tab.
// Failures are isolated per tab: one bad tab never stops the rest.
func (e *Engine) sweep(ctx context.Context, snap *policy.Snapshot) {
	for tabID, rawURL := range e.tabsCopy() {
		host, err := policy.NormalizeHost(rawURL)
		if err != nil {
			// Internal pages are not swept.
			continue
		}
		t := trigger{
			tabID:  tabID,
			url:    rawURL,
			host:   host,
			reason: model.ReasonDomain,
			sweep:  true,
		}
		if err := e.evaluate(ctx, snap, t); err != nil {
			e.log.Warn("sweep: tab re-evaluation failed", "tab", tabID, "host", host, "err", err)
			e.metrics.SweepFailure()
		}
	}
}
