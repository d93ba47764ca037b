package policy

import "github.com/tabwarden/tabwarden/internal/model"

// MaxRisk is the score ceiling and the forced score for blocklisted hosts.
const MaxRisk = 100

// Score computes a deterministic, explainable risk score for a
// classification context. This is NOT anomaly detection; each present
// signal contributes its configured weight once, and the sum is
// clamped to [0, MaxRisk].
func Score(w Weights, c model.Context) int {
	risk := 0

	if c.AIDomain {
		risk += w.AIDomain
	}
	if len(c.Signals) > 0 {
		risk += w.AIOnPage
	}
	if c.InternalSite {
		risk += w.InternalSite
	}

	// Sensitive fields score by presence, not by count. A page with
	// three password inputs is no riskier than one with one.
	fields := c.Sensitive.Clamped()
	if fields.Password > 0 {
		risk += w.SensitiveField[FieldPassword]
	}
	if fields.Email > 0 {
		risk += w.SensitiveField[FieldEmail]
	}
	if fields.Credit > 0 {
		risk += w.SensitiveField[FieldCredit]
	}
	if fields.ID > 0 {
		risk += w.SensitiveField[FieldID]
	}

	if risk < 0 {
		risk = 0
	}
	if risk > MaxRisk {
		risk = MaxRisk
	}
	return risk
}

// EffectiveRisk applies the blocklist override: a blocklisted host is
// always MaxRisk regardless of the weighted score.
func EffectiveRisk(blocked bool, score int) int {
	if blocked {
		return MaxRisk
	}
	return score
}
