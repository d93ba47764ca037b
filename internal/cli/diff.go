package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/policy"
	"github.com/tabwarden/tabwarden/internal/policydiff"
)

var diffFormat string

func init() {
	rootCmd.AddCommand(diffCmd)
	diffCmd.Flags().StringVarP(&diffFormat, "format", "f", "text", "Output format (text|json)")
}

var diffCmd = &cobra.Command{
	Use:   "diff <old.json> <new.json>",
	Short: "Compare two policy documents and show changes",
	Long: "Loads two policy documents and shows what changed in human-readable\n" +
		"terms: profile thresholds, weights, PIN requirements, domain lists\n" +
		"added/removed. The admin PIN is never printed by value.",
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func runDiff(cmd *cobra.Command, args []string) error {
	oldDoc, err := policy.Load(args[0])
	if err != nil {
		return fmt.Errorf("load old policy: %w", err)
	}

	newDoc, err := policy.Load(args[1])
	if err != nil {
		return fmt.Errorf("load new policy: %w", err)
	}

	result := policydiff.Diff(oldDoc, newDoc)
	result.OldPath = args[0]
	result.NewPath = args[1]

	switch diffFormat {
	case "json":
		out, err := policydiff.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(policydiff.FormatText(result))
	}

	return nil
}
