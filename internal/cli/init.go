package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/policy"
	"github.com/tabwarden/tabwarden/internal/systemd"
)

var (
	initDir     string
	initForce   bool
	initSystemd bool
)

func init() {
	initCmd.Flags().StringVar(&initDir, "dir", "", "Target directory (default ~/.tabwarden)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initSystemd, "systemd", false, "Also install a systemd user unit")
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap tabwarden configuration",
	Long: "Creates the state directory with a starter config.yaml and the default\n" +
		"policy document (three profiles, balanced selected, no PIN).\n\n" +
		"With --systemd, also writes a user service unit so the daemon starts\n" +
		"with the session. Existing files are left alone unless --force is given.",
	RunE: runInit,
}

func runInit(cmd *cobra.Command, args []string) error {
	dir := initDir
	if dir == "" {
		dir = config.DefaultDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	var created []string

	configPath := filepath.Join(dir, "config.yaml")
	if wrote, err := writeIfMissing(configPath, config.DefaultYAML()); err != nil {
		return err
	} else if wrote {
		created = append(created, configPath)
	}

	policyPath := filepath.Join(dir, "policy.json")
	policyContent, err := defaultPolicyJSON()
	if err != nil {
		return fmt.Errorf("generate default policy: %w", err)
	}
	if wrote, err := writeIfMissing(policyPath, policyContent); err != nil {
		return err
	} else if wrote {
		created = append(created, policyPath)
	}

	var unitPath string
	if initSystemd {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("resolve executable: %w", err)
		}
		unitDir, err := systemd.UserUnitDir()
		if err != nil {
			return err
		}
		unitPath, err = systemd.Install(unitDir, exe)
		if err != nil {
			return err
		}
		created = append(created, unitPath)
	}

	fmt.Println("tabwarden init complete.")
	fmt.Println()
	if len(created) > 0 {
		fmt.Println("Created:")
		for _, path := range created {
			fmt.Printf("  %s\n", path)
		}
		fmt.Println()
	} else {
		fmt.Println("All files already exist (use --force to overwrite).")
		fmt.Println()
	}

	fmt.Println("Verify:")
	fmt.Println("  tabwarden doctor")
	fmt.Println()
	if unitPath != "" {
		fmt.Println("Enable the service:")
		fmt.Println("  systemctl --user daemon-reload")
		fmt.Println("  systemctl --user enable --now tabwarden")
	} else {
		fmt.Println("Start the daemon:")
		fmt.Println("  tabwarden serve")
	}

	return nil
}

// writeIfMissing writes content to path if it doesn't exist or --force
// is set. Returns true if the file was written.
func writeIfMissing(path, content string) (bool, error) {
	if !initForce {
		if _, err := os.Stat(path); err == nil {
			return false, nil
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return true, nil
}

// defaultPolicyJSON renders the built-in policy document.
func defaultPolicyJSON() (string, error) {
	data, err := json.MarshalIndent(policy.DefaultDocument(), "", "  ")
	if err != nil {
		return "", err
	}
	return string(data) + "\n", nil
}
