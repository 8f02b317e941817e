package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var (
	logsConfigPath string
	logsLimit      int
	logsJSON       bool
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show recent execution log entries",
	Long: `Show persisted execution log entries, most recent first.

Examples:
  kinga logs
  kinga logs --limit 5
  kinga logs --json`,
	RunE: runLogs,
}

var clearLogsCmd = &cobra.Command{
	Use:   "clear-logs",
	Short: "Delete the execution log",
	RunE:  runClearLogs,
}

func init() {
	logsCmd.Flags().StringVar(&logsConfigPath, "config", "", "path to config file (or KINGA_CONFIG env)")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 100, "maximum entries to show (0 = all)")
	logsCmd.Flags().BoolVar(&logsJSON, "json", false, "print entries as JSON")

	clearLogsCmd.Flags().StringVar(&logsConfigPath, "config", "", "path to config file (or KINGA_CONFIG env)")
}

func runLogs(cmd *cobra.Command, _ []string) error {
	sc, err := initSharedFromFlags(cmd)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	result, err := sc.Sandbox.ExecutionLogs(logsLimit)
	if err != nil {
		return fmt.Errorf("reading execution logs: %w", err)
	}

	if logsJSON {
		out, err := json.MarshalIndent(result.Entries, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding entries: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	if len(result.Entries) == 0 {
		fmt.Println("No execution log entries.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tPROCESS\tCOMMAND\tEXIT\tDURATION\tSTATUS")
	for _, e := range result.Entries {
		status := "ok"
		switch {
		case e.TimedOut:
			status = "timeout"
		case e.Killed:
			status = "killed"
		case !e.Success:
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%dms\t%s\n",
			e.Timestamp.Format(time.RFC3339),
			e.ProcessID,
			e.Command,
			e.ExitCode,
			e.DurationMs,
			status,
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if result.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "warning: skipped %d malformed log lines\n", result.Skipped)
	}
	return nil
}

func runClearLogs(cmd *cobra.Command, _ []string) error {
	sc, err := initSharedFromFlags(cmd)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	if err := sc.Sandbox.ClearExecutionLogs(); err != nil {
		return fmt.Errorf("clearing execution logs: %w", err)
	}
	fmt.Println("Execution log cleared.")
	return nil
}

// initSharedFromFlags builds shared components for the read-only commands.
func initSharedFromFlags(cmd *cobra.Command) (*SharedComponents, error) {
	cfg, err := loadConfig(logsConfigPath, cmd.Flags().Changed("config"))
	if err != nil {
		return nil, err
	}
	return initShared(cfg, newLogger(false))
}
