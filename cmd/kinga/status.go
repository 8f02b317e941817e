package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jkaninda/kinga/internal/security"
)

var (
	statusConfigPath string
	statusJSON       bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the effective sandbox configuration",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "path to config file (or KINGA_CONFIG env)")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print status as JSON")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(statusConfigPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, newLogger(false))
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	status := sc.Sandbox.Status()

	if statusJSON {
		out, err := json.MarshalIndent(status, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding status: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Active processes:  %d / %d\n", status.ActiveProcesses, status.MaxConcurrent)
	fmt.Printf("Default timeout:   %ds\n", status.TimeoutSeconds)
	fmt.Printf("Output cap:        %d bytes per stream\n", status.MaxOutputBytes)
	fmt.Printf("Logs directory:    %s\n", status.LogsDir)
	fmt.Printf("Work directory:    %s\n", cfg.Sandbox.WorkDir)
	blocked := security.BlockedCommands()
	fmt.Printf("Blocked commands:  %d (%s, ...)\n", len(blocked), strings.Join(blocked[:3], ", "))
	return nil
}
