package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/kinga/internal/sandbox"
)

// Exit codes for the run command.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitPolicyDenied = 2
	ExitUnavailable  = 3
)

var (
	runConfigPath string
	runVerbose    bool
	runTimeout    int
	runWorkDir    string
	runEnv        []string
	runUnsafe     bool
	runMaxOutput  int
	runJSON       bool
)

var runCmd = &cobra.Command{
	Use:   "run -- <command> [args...]",
	Short: "Run a command inside the sandbox",
	Long: `Run a single command inside the sandbox. The command is validated
against the security policy, executed in its own process group with a
timeout and output limits, and recorded in the execution log.

Output is streamed to stdout/stderr as it arrives. The sandbox exit code
mirrors the command's own exit code.

Examples:
  kinga run -- echo "hello"
  kinga run --timeout 5 -- sleep 60
  kinga run --workdir /tmp --env FOO=bar -- printenv FOO
  kinga run --json -- ls -la

Exit codes:
  0  command succeeded
  1  command failed (its exit code when non-zero)
  2  rejected by security policy
  3  sandbox at capacity or command could not be spawned`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "path to config file (or KINGA_CONFIG env)")
	runCmd.Flags().BoolVarP(&runVerbose, "verbose", "v", false, "enable debug logging")
	runCmd.Flags().IntVar(&runTimeout, "timeout", 0, "timeout in seconds (0 = sandbox default)")
	runCmd.Flags().StringVar(&runWorkDir, "workdir", "", "working directory (default: sandbox work dir)")
	runCmd.Flags().StringArrayVar(&runEnv, "env", nil, "extra environment variable, KEY=VALUE (repeatable)")
	runCmd.Flags().BoolVar(&runUnsafe, "unsafe", false, "bypass command validation")
	runCmd.Flags().IntVar(&runMaxOutput, "max-output", 0, "per-stream output cap in bytes (0 = sandbox default)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full execution record as JSON instead of streaming")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := newLogger(runVerbose)

	cfg, err := loadConfig(runConfigPath, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	env, err := parseEnvFlags(runEnv)
	if err != nil {
		return err
	}

	req := sandbox.Request{
		Command:        args[0],
		Args:           args[1:],
		Timeout:        time.Duration(runTimeout) * time.Second,
		WorkDir:        runWorkDir,
		Env:            env,
		MaxOutputBytes: runMaxOutput,
		AllowUnsafe:    runUnsafe,
	}

	// Stream output as it arrives unless the caller wants the record instead.
	var sink sandbox.Sink
	if !runJSON {
		sink = sandbox.SinkFunc(func(c sandbox.Chunk) {
			if c.Stream == sandbox.StreamStderr {
				_, _ = os.Stderr.Write(c.Content)
				return
			}
			_, _ = os.Stdout.Write(c.Content)
		})
	}

	// Signal-aware context: Ctrl-C kills the sandboxed process group.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rec, err := sc.Runner.RunCommand(ctx, req, sink)
	if err != nil {
		sc.Cleanup()
		var policyErr *sandbox.PolicyError
		var capErr *sandbox.CapacityError
		switch {
		case errors.As(err, &policyErr):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitPolicyDenied)
		case errors.As(err, &capErr):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitUnavailable)
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(ExitUnavailable)
		}
	}

	if runJSON {
		out, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		fmt.Println(string(out))
	}

	if rec.TimedOut {
		fmt.Fprintf(os.Stderr, "kinga: command timed out after %s\n", rec.Duration.Round(time.Millisecond))
	} else if rec.Killed {
		fmt.Fprintln(os.Stderr, "kinga: command was killed")
	}

	sc.Cleanup()
	if rec.Success {
		os.Exit(ExitSuccess)
	}
	if rec.ExitCode > 0 {
		os.Exit(rec.ExitCode)
	}
	os.Exit(ExitFailure)
	return nil
}

// parseEnvFlags converts repeated KEY=VALUE flags into a map.
func parseEnvFlags(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env value %q: expected KEY=VALUE", p)
		}
		env[k] = v
	}
	return env, nil
}
