package scenario

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tabwarden/tabwarden/internal/engine"
	"github.com/tabwarden/tabwarden/internal/policy"
)

// Run evaluates all cases in a scenario against the given policy
// document. Cases are independent: each one is assessed as a fresh
// trigger with no consent or cooldown state.
func Run(s *Scenario, doc *policy.Document) *RunResult {
	result := &RunResult{
		Name:  s.Name,
		Total: len(s.Cases),
	}

	for i, c := range s.Cases {
		cr := CaseResult{
			Index:    i + 1,
			URL:      c.URL,
			Expected: strings.ToLower(strings.TrimSpace(c.Expect)),
		}

		a, err := engine.Assess(doc, c.URL, c.Signals, c.Sensitive)
		if err != nil {
			cr.Actual = "invalid"
		} else {
			cr.Host = a.Host
			cr.Risk = a.Risk
			cr.Actual = verdict(a)
		}

		if cr.Actual == cr.Expected {
			cr.Passed = true
			result.Passed++
		} else {
			result.Failed++
		}

		result.Cases = append(result.Cases, cr)
	}

	return result
}

func verdict(a engine.Assessment) string {
	switch {
	case !a.WouldPrompt:
		return ExpectSilent
	case a.PINRequired:
		return ExpectPIN
	default:
		return ExpectPrompt
	}
}

// LoadAndRun loads a scenario YAML file and a policy document, then runs.
func LoadAndRun(path, policyPath string) (*RunResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario %s: %w", path, err)
	}

	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}

	doc, err := policy.Load(policyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}

	result := Run(&s, doc)
	result.File = path

	return result, nil
}
