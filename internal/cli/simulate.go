package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/sim"
)

var (
	simLog    string
	simPolicy string
	simFormat string
)

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().StringVar(&simLog, "log", "", "Path to recorded decision log (required)")
	simulateCmd.Flags().StringVar(&simPolicy, "policy", "", "Path to candidate policy.json (required)")
	simulateCmd.Flags().StringVarP(&simFormat, "format", "f", "text", "Output format (text|json)")
	simulateCmd.MarkFlagRequired("log")
	simulateCmd.MarkFlagRequired("policy")
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a decision log against a candidate policy and show diffs",
	Long: "Reads recorded prompt triggers, re-evaluates each against an alternate\n" +
		"policy document, and shows which prompts would change.\n\n" +
		"Use this to preview a policy edit before rolling it out.",
	RunE: runSimulate,
}

func runSimulate(cmd *cobra.Command, args []string) error {
	result, err := sim.Simulate(simLog, simPolicy)
	if err != nil {
		return err
	}

	switch simFormat {
	case "json":
		out, err := sim.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(sim.FormatText(result))
	}

	return nil
}
