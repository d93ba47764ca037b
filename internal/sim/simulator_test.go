package sim

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/policy"
)

// writeDecisionLog records entries through the real sink so the chain
// is valid.
func writeDecisionLog(t *testing.T, entries []audit.Entry) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "decisions.log")
	log, err := audit.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer log.Close()
	for _, e := range entries {
		if err := log.Record(e); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func writePolicy(t *testing.T, mutate func(*policy.Document)) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.json")
	doc := policy.DefaultDocument()
	if mutate != nil {
		mutate(doc)
	}
	if err := policy.Save(path, doc); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestSimulateAllowListSilences(t *testing.T) {
	logPath := writeDecisionLog(t, []audit.Entry{
		{Kind: audit.KindDomainDetected, Host: "chatgpt.com", URL: "https://chatgpt.com/", Risk: 40},
		{Kind: audit.KindDomainDetected, Host: "claude.ai", URL: "https://claude.ai/", Risk: 40},
	})
	policyPath := writePolicy(t, func(doc *policy.Document) {
		for i := range doc.Profiles {
			if doc.Profiles[i].ID == "balanced" {
				doc.Profiles[i].AllowedDomains = []string{"chatgpt.com"}
			}
		}
	})

	result, err := Simulate(logPath, policyPath)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if result.TotalTriggers != 2 {
		t.Errorf("TotalTriggers = %d, want 2", result.TotalTriggers)
	}
	if result.NewlySilent != 1 || result.Changed != 1 {
		t.Errorf("result = %+v", result)
	}
	if len(result.Changes) != 1 || result.Changes[0].Host != "chatgpt.com" {
		t.Errorf("Changes = %+v", result.Changes)
	}
	if result.Changes[0].NewPrompt {
		t.Error("allow-listed host still prompts")
	}
}

func TestSimulatePermissiveSilencesUnblocked(t *testing.T) {
	logPath := writeDecisionLog(t, []audit.Entry{
		{Kind: audit.KindDomainDetected, Host: "chatgpt.com", URL: "https://chatgpt.com/", Risk: 40},
	})
	policyPath := writePolicy(t, func(doc *policy.Document) {
		doc.SelectedProfileID = "permissive"
	})

	result, err := Simulate(logPath, policyPath)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewlySilent != 1 {
		t.Errorf("NewlySilent = %d, want 1", result.NewlySilent)
	}
}

func TestSimulateGatedEntryStartsPrompting(t *testing.T) {
	logPath := writeDecisionLog(t, []audit.Entry{
		{Kind: audit.KindUIDetectedSuppressed, Host: "chatgpt.com", URL: "https://chatgpt.com/", Risk: 40, Cause: "gating"},
	})
	policyPath := writePolicy(t, nil) // balanced prompts where permissive gated

	result, err := Simulate(logPath, policyPath)
	if err != nil {
		t.Fatal(err)
	}
	if result.NewlyPrompting != 1 {
		t.Errorf("NewlyPrompting = %d, want 1", result.NewlyPrompting)
	}
}

func TestSimulateSkipsTimingSuppressions(t *testing.T) {
	logPath := writeDecisionLog(t, []audit.Entry{
		{Kind: audit.KindUIDetectedSuppressed, Host: "chatgpt.com", URL: "https://chatgpt.com/", Cause: consent.CauseCooldown},
		{Kind: audit.KindUIDetectedSuppressed, Host: "chatgpt.com", URL: "https://chatgpt.com/", Cause: consent.CauseConsent},
	})
	result, err := Simulate(logPath, writePolicy(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	if result.TotalTriggers != 0 {
		t.Errorf("TotalTriggers = %d, want 0 (timing suppressions skipped)", result.TotalTriggers)
	}
}

func TestSimulateNoChanges(t *testing.T) {
	logPath := writeDecisionLog(t, []audit.Entry{
		{Kind: audit.KindDomainDetected, Host: "chatgpt.com", URL: "https://chatgpt.com/", Risk: 40},
	})
	result, err := Simulate(logPath, writePolicy(t, nil))
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed != 0 || len(result.Changes) != 0 {
		t.Errorf("result = %+v, want no changes", result)
	}
	text := FormatText(result)
	if !strings.Contains(text, "No changes detected") {
		t.Errorf("FormatText = %q", text)
	}
}

func TestSimulateRiskShift(t *testing.T) {
	logPath := writeDecisionLog(t, []audit.Entry{
		{Kind: audit.KindDomainDetected, Host: "chatgpt.com", URL: "https://chatgpt.com/", Risk: 40},
	})
	policyPath := writePolicy(t, func(doc *policy.Document) {
		for i := range doc.Profiles {
			if doc.Profiles[i].ID == "balanced" {
				doc.Profiles[i].Weights.AIDomain = 90
			}
		}
	})
	result, err := Simulate(logPath, policyPath)
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed != 1 {
		t.Fatalf("Changed = %d, want 1", result.Changed)
	}
	c := result.Changes[0]
	if c.OldRisk != 40 || c.NewRisk != 90 || !c.OldPrompt || !c.NewPrompt {
		t.Errorf("change = %+v", c)
	}

	text := FormatText(result)
	if !strings.Contains(text, "CHANGED") || !strings.Contains(text, "chatgpt.com") {
		t.Errorf("FormatText = %q", text)
	}
	if _, err := FormatJSON(result); err != nil {
		t.Errorf("FormatJSON: %v", err)
	}
}

func TestSimulateRejectsInvalidPolicy(t *testing.T) {
	logPath := writeDecisionLog(t, nil)
	badPath := filepath.Join(t.TempDir(), "policy.json")
	raw := []byte(`{"profiles":[{"id":"strict","mode":"strict","track_prompts":"full"}],"selected_profile_id":"ghost"}`)
	if err := os.WriteFile(badPath, raw, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Simulate(logPath, badPath); err == nil {
		t.Error("expected validation error")
	}
}
