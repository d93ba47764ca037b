package scenario

import "github.com/tabwarden/tabwarden/internal/model"

// Expected verdicts a case may assert.
const (
	ExpectSilent = "silent"
	ExpectPrompt = "prompt"
	ExpectPIN    = "pin"
)

// Case is one expectation within a scenario: a URL plus optional
// detector findings, and the verdict the policy must produce for it.
type Case struct {
	URL       string                `yaml:"url"`
	Signals   []string              `yaml:"signals,omitempty"`
	Sensitive model.SensitiveFields `yaml:"sensitive,omitempty"`
	Expect    string                `yaml:"expect"`
}

// Scenario is a named collection of policy test cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index    int    `json:"index"`
	Passed   bool   `json:"passed"`
	URL      string `json:"url"`
	Host     string `json:"host"`
	Risk     int    `json:"risk"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
