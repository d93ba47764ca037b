// Package sim replays a recorded decision log against a candidate
// policy document and reports which outcomes would change. Use it to
// preview a policy edit before dropping it on a fleet.
package sim

import (
	"fmt"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/engine"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
)

// Simulate replays trigger entries from a decision log against the
// document at policyPath.
//
// Only policy-shaped outcomes replay: prompts and mode-gated
// suppressions. Cooldown and consent suppressions describe session
// timing, not policy, and are skipped. UI entries replay with signal
// presence only; sensitive-field contributions are not recorded in
// the log and do not replay.
func Simulate(logPath, policyPath string) (*Result, error) {
	doc, err := policy.Load(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("validate policy: %w", err)
	}

	entries, err := audit.ReadAll(logPath, audit.Filter{Kinds: []string{
		audit.KindDomainDetected,
		audit.KindUIDetected,
		audit.KindUIDetectedSuppressed,
	}})
	if err != nil {
		return nil, err
	}

	result := &Result{PolicyPath: policyPath}
	for _, entry := range entries {
		if entry.Cause == consent.CauseCooldown || entry.Cause == consent.CauseConsent {
			continue
		}
		result.TotalTriggers++

		var signals []string
		if entry.Kind != audit.KindDomainDetected {
			signals = []string{"ui"}
		}
		assessed, err := engine.Assess(doc, entry.URL, signals, model.SensitiveFields{})
		if err != nil {
			// Log rows predate URL validation fixes sometimes; skip
			// what the candidate policy cannot evaluate.
			continue
		}

		oldPrompt := entry.Kind != audit.KindUIDetectedSuppressed
		newPrompt := !assessed.Allowed && assessed.WouldPrompt && (assessed.AIDomain || assessed.Blocked || len(signals) > 0)

		if oldPrompt == newPrompt && entry.Risk == assessed.Risk {
			continue
		}
		result.Changed++
		if oldPrompt && !newPrompt {
			result.NewlySilent++
		}
		if !oldPrompt && newPrompt {
			result.NewlyPrompting++
		}
		result.Changes = append(result.Changes, DiffEntry{
			Timestamp: entry.Timestamp,
			Kind:      entry.Kind,
			Host:      entry.Host,
			OldRisk:   entry.Risk,
			NewRisk:   assessed.Risk,
			OldPrompt: oldPrompt,
			NewPrompt: newPrompt,
		})
	}
	return result, nil
}
