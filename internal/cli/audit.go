package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/config"
)

var (
	tailLines      int
	timelineLog    string
	timelineFrom   string
	timelineTo     string
	timelineFormat string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditTimelineCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTimelineCmd.Flags().StringVarP(&timelineLog, "log", "l", "", "Path to decision log (default from config)")
	auditTimelineCmd.Flags().StringVar(&timelineFrom, "from", "", "Start time filter (RFC3339)")
	auditTimelineCmd.Flags().StringVar(&timelineTo, "to", "", "End time filter (RFC3339)")
	auditTimelineCmd.Flags().StringVarP(&timelineFormat, "format", "f", "text", "Output format (text|json)")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Decision log operations",
	Long:  "Commands for verifying and inspecting the hash-chained decision log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a decision log",
	Long: "Walks the JSONL decision log and validates that every entry's prev_hash\n" +
		"matches the SHA-256 of the previous line. Exits 0 if valid, 1 if tampered.",
	Args: cobra.ExactArgs(1),
	RunE: runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent decision log entries",
	Long:  "Reads the last N entries from the JSONL decision log and pretty-prints them.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

var auditTimelineCmd = &cobra.Command{
	Use:   "timeline <tab-id>",
	Short: "Show one tab's decision history as a timeline",
	Long: "Reads the decision log, filters by tab id and optional time range,\n" +
		"and renders a human-readable timeline with summary counts.",
	Args: cobra.ExactArgs(1),
	RunE: runAuditTimeline,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Printf("OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open decision log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read decision log: %w", err)
	}

	start := len(lines) - tailLines
	if start < 0 {
		start = 0
	}

	for _, line := range lines[start:] {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			fmt.Println(line)
			continue
		}
		out, _ := json.MarshalIndent(entry, "", "  ")
		fmt.Println(string(out))
	}

	return nil
}

func runAuditTimeline(cmd *cobra.Command, args []string) error {
	path := timelineLog
	if path == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		path = cfg.LogPath
	}

	filter := audit.TimelineFilter{TabID: args[0]}

	if timelineFrom != "" {
		from, err := time.Parse(time.RFC3339, timelineFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", timelineFrom, err)
		}
		filter.From = from
	}
	if timelineTo != "" {
		to, err := time.Parse(time.RFC3339, timelineTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", timelineTo, err)
		}
		filter.To = to
	}

	result, err := audit.BuildTimeline(path, filter)
	if err != nil {
		return err
	}

	switch timelineFormat {
	case "json":
		out, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(audit.FormatTimeline(result))
	}

	return nil
}
