package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/config"
)

var (
	exportLog   string
	exportDB    string
	exportKinds []string
	exportFrom  string
	exportTo    string
)

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVar(&exportLog, "log", "", "Path to JSONL decision log (default from config)")
	exportCmd.Flags().StringVar(&exportDB, "db", "", "Path to SQLite decision log")
	exportCmd.Flags().StringSliceVar(&exportKinds, "kind", nil, "Entry kinds to include (repeatable)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Earliest timestamp, RFC3339")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Latest timestamp, RFC3339")
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export decision log entries as JSON",
	Long: "Reads the decision log from either store, applies kind and time\n" +
		"filters, and writes a JSON array to stdout for external analysis.",
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{Kinds: exportKinds}
	var err error
	if filter.From, err = parseExportTime(exportFrom); err != nil {
		return err
	}
	if filter.To, err = parseExportTime(exportTo); err != nil {
		return err
	}

	entries, err := readEntries(filter)
	if err != nil {
		return err
	}

	out, err := audit.ExportJSON(entries)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	fmt.Fprintf(os.Stderr, "%d entries exported\n", len(entries))
	return nil
}

func readEntries(filter audit.Filter) ([]audit.Entry, error) {
	if exportDB != "" {
		s, err := audit.OpenSQLite(exportDB)
		if err != nil {
			return nil, err
		}
		defer s.Close()
		return s.Export(filter)
	}
	path := exportLog
	if path == "" {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		if cfg.LogStore == config.LogStoreSQLite {
			s, err := audit.OpenSQLite(cfg.SQLitePath)
			if err != nil {
				return nil, err
			}
			defer s.Close()
			return s.Export(filter)
		}
		path = cfg.LogPath
	}
	return audit.ReadAll(path, filter)
}

func parseExportTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", v, err)
	}
	return t, nil
}
