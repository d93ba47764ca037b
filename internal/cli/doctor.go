package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/policy"
)

func init() {
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check installation health and diagnose configuration issues",
	RunE:  runDoctor,
}

type checkResult struct {
	label  string
	ok     bool
	detail string
	fix    string
}

func runDoctor(cmd *cobra.Command, args []string) error {
	var checks []checkResult

	// 1. Binary location and version.
	execPath, _ := os.Executable()
	if execPath != "" {
		checks = append(checks, checkResult{
			label:  "tabwarden binary",
			ok:     true,
			detail: fmt.Sprintf("%s (v%s)", execPath, version),
		})
	} else {
		checks = append(checks, checkResult{
			label:  "tabwarden binary",
			ok:     false,
			detail: "cannot determine executable path",
		})
	}

	// 2. Configuration.
	cfg, err := config.Load(cfgPath)
	if err != nil {
		checks = append(checks, checkResult{
			label:  "config.yaml",
			ok:     false,
			detail: err.Error(),
			fix:    "tabwarden init --force",
		})
		printChecks(checks)
		return fmt.Errorf("doctor found issues")
	}
	checks = append(checks, checkResult{
		label:  "config.yaml",
		ok:     true,
		detail: fmt.Sprintf("log_store=%s listen=%s", cfg.LogStore, cfg.ListenAddr),
	})

	// 3. Policy document.
	if doc, err := policy.Load(cfg.PolicyPath); err != nil {
		checks = append(checks, checkResult{
			label:  "policy.json",
			ok:     false,
			detail: err.Error(),
			fix:    "tabwarden init",
		})
	} else {
		active, _ := doc.Active()
		detail := fmt.Sprintf("%d profiles, %s selected", len(doc.Profiles), active.ID)
		if doc.AdminPIN == "" {
			detail += ", no PIN"
		}
		checks = append(checks, checkResult{
			label:  "policy.json",
			ok:     true,
			detail: detail,
		})
	}

	// 4. Decision log chain (JSONL store only).
	if cfg.LogStore == config.LogStoreJSONL {
		if _, err := os.Stat(cfg.LogPath); err == nil {
			result := audit.Verify(cfg.LogPath)
			if result.Valid {
				checks = append(checks, checkResult{
					label:  "decision log",
					ok:     true,
					detail: fmt.Sprintf("%d entries, chain intact", result.Lines),
				})
			} else {
				checks = append(checks, checkResult{
					label:  "decision log",
					ok:     false,
					detail: fmt.Sprintf("chain broken at line %d", result.ErrorLine),
					fix:    "tabwarden audit verify " + cfg.LogPath,
				})
			}
		} else {
			checks = append(checks, checkResult{
				label:  "decision log",
				ok:     true,
				detail: "not created yet",
			})
		}
	}

	printChecks(checks)

	for _, c := range checks {
		if !c.ok {
			fmt.Println()
			fmt.Println("Some checks failed. Run the suggested commands to fix.")
			return fmt.Errorf("doctor found issues")
		}
	}

	fmt.Println()
	fmt.Println("All checks passed.")
	return nil
}

func printChecks(checks []checkResult) {
	for _, c := range checks {
		mark := "\u2713" // ✓
		if !c.ok {
			mark = "\u2717" // ✗
		}
		line := fmt.Sprintf("%s %-18s %s", mark, c.label+":", c.detail)
		if !c.ok && c.fix != "" {
			line += fmt.Sprintf("  ->  %s", c.fix)
		}
		fmt.Println(line)
	}
}
