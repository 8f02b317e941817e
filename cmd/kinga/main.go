// Kinga — secure sandboxed command execution engine.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kinga",
	Short: "Kinga — secure sandboxed command execution engine.",
	Long: `Kinga runs untrusted shell commands inside a supervised sandbox.
Every command is validated against a security policy before it is spawned,
executed in its own process group with timeout and output limits, and
recorded in a structured execution log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(runCmd, logsCmd, clearLogsCmd, statusCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
