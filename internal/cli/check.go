package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/engine"
	"github.com/tabwarden/tabwarden/internal/model"
	"github.com/tabwarden/tabwarden/internal/policy"
	"github.com/tabwarden/tabwarden/internal/scenario"
)

var (
	checkPolicy  string
	checkCases   string
	checkSignals []string
	checkFormat  string
)

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkPolicy, "policy", "", "Path to policy.json (default from config)")
	checkCmd.Flags().StringVar(&checkCases, "cases", "", "Glob pattern for scenario YAML files")
	checkCmd.Flags().StringSliceVar(&checkSignals, "signals", nil, "UI signal ids to include (comma separated)")
	checkCmd.Flags().StringVarP(&checkFormat, "format", "f", "text", "Output format (text|json)")
}

var checkCmd = &cobra.Command{
	Use:   "check [url]",
	Short: "Evaluate a URL or scenario files against the policy",
	Long: "Classifies and scores a URL exactly as the daemon would and reports\n" +
		"whether a consent prompt would open. With --cases, runs every test\n" +
		"case in the matching scenario YAML files instead.\n\n" +
		"Exit code 0 when the navigation stays silent (or all cases pass),\n" +
		"1 otherwise. Use in CI to gate policy document changes.",
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	path := checkPolicy
	if path == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		path = cfg.PolicyPath
	}

	if checkCases != "" {
		return runCheckCases(path)
	}
	if len(args) != 1 {
		return fmt.Errorf("provide a URL to check, or --cases with a scenario glob")
	}

	doc, err := policy.Load(path)
	if err != nil {
		return err
	}

	a, err := engine.Assess(doc, args[0], checkSignals, model.SensitiveFields{})
	if err != nil {
		return err
	}

	switch checkFormat {
	case "json":
		out, err := json.MarshalIndent(a, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		active, _ := doc.Active()
		verdict := "silent"
		if a.WouldPrompt {
			verdict = "prompt"
			if a.PINRequired {
				verdict = "prompt (pin required)"
			}
		}
		fmt.Printf("host:      %s\n", a.Host)
		fmt.Printf("profile:   %s\n", active.ID)
		fmt.Printf("risk:      %d\n", a.Risk)
		fmt.Printf("allowed:   %v\n", a.Allowed)
		fmt.Printf("blocked:   %v\n", a.Blocked)
		fmt.Printf("ai_domain: %v\n", a.AIDomain)
		fmt.Printf("verdict:   %s\n", verdict)
	}

	if a.WouldPrompt {
		os.Exit(1)
	}
	return nil
}

func runCheckCases(policyPath string) error {
	matches, err := filepath.Glob(checkCases)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no scenario files match pattern: %s", checkCases)
	}

	var results []*scenario.RunResult
	for _, path := range matches {
		r, err := scenario.LoadAndRun(path, policyPath)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}

	switch checkFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(scenario.FormatText(results))
	}

	// Exit 1 if any scenario has failures
	for _, r := range results {
		if r.Failed > 0 {
			os.Exit(1)
		}
	}

	return nil
}
