// Package sandbox is the secure command-execution engine: it validates a
// requested command against policy, enforces a concurrency cap, spawns and
// supervises the process, streams its output, and audit-logs every attempt.
// All external commands run through this package — never directly on the
// host.
package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jkaninda/kinga/internal/auditlog"
	"github.com/jkaninda/kinga/internal/config"
	"github.com/jkaninda/kinga/internal/security"
)

// Runner is the execution surface of the engine. Satisfied by *Sandbox and
// by the observability decorator that wraps it.
type Runner interface {
	RunCommand(ctx context.Context, req Request, sink Sink) (*Record, error)
}

// Sandbox composes the validator, supervisor, output collector, and audit
// log behind the engine's only public surface. Construct with New and inject
// it; there is no shared global instance.
type Sandbox struct {
	mu  sync.RWMutex
	cfg config.SandboxConfig

	sup    *supervisor
	audit  *auditlog.Logger
	logger *slog.Logger
}

// New creates a Sandbox from a normalized config.
func New(cfg config.SandboxConfig, logger *slog.Logger) *Sandbox {
	return &Sandbox{
		cfg:    cfg,
		sup:    newSupervisor(logger),
		audit:  auditlog.New(cfg.LogsDir, logger),
		logger: logger,
	}
}

// RunCommand validates, admits, spawns, and supervises one command to
// completion. Policy, capacity, and spawn failures are returned as typed
// errors before any process exists. A non-zero exit or a timeout is not an
// error: it is encoded in the returned Record, which callers inspect to
// decide what to do next.
//
// sink, when non-nil, receives every output chunk as it arrives. Canceling
// ctx kills the process through the same escalation path as Kill.
func (s *Sandbox) RunCommand(ctx context.Context, req Request, sink Sink) (*Record, error) {
	if req.Command == "" {
		return nil, &SpawnError{Command: "", Err: fmt.Errorf("empty command")}
	}

	verdict := security.Validate(req.Command, req.Args, req.AllowUnsafe)
	if !verdict.Safe {
		s.logger.Warn("command rejected",
			slog.String("command", req.Command),
			slog.String("rule", verdict.Rule),
			slog.String("reason", verdict.Reason),
		)
		return nil, &PolicyError{Rule: verdict.Rule, Reason: verdict.Reason}
	}

	// Config is read fresh per operation; UpdateConfig takes effect on the
	// next call.
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	spec := spawnSpec{
		id:      newProcessID(),
		command: req.Command,
		args:    req.Args,
		timeout: cfg.Timeout(),
		workDir: cfg.WorkDir,
	}
	if req.Timeout > 0 {
		spec.timeout = req.Timeout
	}
	if req.WorkDir != "" {
		spec.workDir = req.WorkDir
	}
	maxOutput := cfg.MaxOutputBytes
	if req.MaxOutputBytes > 0 {
		maxOutput = req.MaxOutputBytes
	}

	if err := os.MkdirAll(spec.workDir, 0750); err != nil {
		return nil, &SpawnError{Command: req.Command, Err: fmt.Errorf("creating working directory %s: %w", spec.workDir, err)}
	}
	spec.env = buildEnv(req.Env, spec.id)

	col := newCollector(spec.id, maxOutput, sink)
	rec, err := s.sup.run(spec, col, cfg.MaxConcurrent, ctx.Done())
	if err != nil {
		return nil, err
	}

	// Logging failures never fail the execution; they are operator-visible
	// warnings only.
	if appendErr := s.audit.Append(recordToEntry(rec)); appendErr != nil {
		s.logger.Warn("writing execution log failed",
			slog.String("process_id", rec.ProcessID),
			slog.String("error", appendErr.Error()),
		)
	}
	return rec, nil
}

// Kill starts kill escalation for one process: graceful signal now, forced
// kill after the grace period. Idempotent — killing a finished or
// already-killed process returns false.
func (s *Sandbox) Kill(processID string) bool {
	return s.sup.signalKill(processID, false)
}

// KillAll starts kill escalation for every active process.
func (s *Sandbox) KillAll() {
	s.sup.killAll()
}

// Status returns a snapshot of the engine's registry and configuration.
func (s *Sandbox) Status() Status {
	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	ids := s.sup.activeIDs()
	return Status{
		ActiveProcesses: len(ids),
		MaxConcurrent:   cfg.MaxConcurrent,
		TimeoutSeconds:  cfg.TimeoutSeconds,
		MaxOutputBytes:  cfg.MaxOutputBytes,
		LogsDir:         cfg.LogsDir,
		ProcessIDs:      ids,
	}
}

// ExecutionLogs returns at most limit persisted entries, most recent first,
// along with the count of malformed lines skipped while reading.
func (s *Sandbox) ExecutionLogs(limit int) (auditlog.QueryResult, error) {
	return s.audit.Query(limit)
}

// ClearExecutionLogs deletes the execution log file.
func (s *Sandbox) ClearExecutionLogs() error {
	return s.audit.Clear()
}

// UpdateConfig applies a partial configuration change. Only non-nil fields
// are touched. A logs-directory change re-points the audit log and ensures
// the new directory exists.
func (s *Sandbox) UpdateConfig(u ConfigUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	if u.MaxConcurrent != nil {
		next.MaxConcurrent = *u.MaxConcurrent
	}
	if u.TimeoutSeconds != nil {
		next.TimeoutSeconds = *u.TimeoutSeconds
	}
	if u.MaxOutputBytes != nil {
		next.MaxOutputBytes = *u.MaxOutputBytes
	}
	if u.LogsDir != nil {
		next.LogsDir = *u.LogsDir
	}
	if u.WorkDir != nil {
		next.WorkDir = *u.WorkDir
	}

	probe := config.Config{Sandbox: next}
	if err := probe.Normalize(); err != nil {
		return fmt.Errorf("invalid config update: %w", err)
	}
	next = probe.Sandbox

	if next.LogsDir != s.cfg.LogsDir {
		if err := os.MkdirAll(next.LogsDir, 0750); err != nil {
			return fmt.Errorf("creating logs directory %s: %w", next.LogsDir, err)
		}
		s.audit.SetDir(next.LogsDir)
	}

	s.cfg = next
	s.logger.Info("sandbox config updated",
		slog.Int("max_concurrent", next.MaxConcurrent),
		slog.Int("timeout_seconds", next.TimeoutSeconds),
		slog.Int("max_output_bytes", next.MaxOutputBytes),
		slog.String("logs_dir", next.LogsDir),
	)
	return nil
}

// newProcessID generates a registry key unique within process lifetime.
func newProcessID() string {
	return fmt.Sprintf("p-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// buildEnv merges the parent environment, caller overrides, and the sandbox
// markers spawned commands can use to detect they are supervised.
func buildEnv(extra map[string]string, processID string) []string {
	env := os.Environ()
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	env = append(env,
		"KINGA_SANDBOX=1",
		"KINGA_PROCESS_ID="+processID,
	)
	return env
}

func recordToEntry(rec *Record) auditlog.Entry {
	return auditlog.Entry{
		Timestamp:    rec.Timestamp,
		ProcessID:    rec.ProcessID,
		Command:      rec.Command,
		Args:         rec.Args,
		WorkDir:      rec.WorkDir,
		ExitCode:     rec.ExitCode,
		DurationMs:   rec.Duration.Milliseconds(),
		Success:      rec.Success,
		Killed:       rec.Killed,
		TimedOut:     rec.TimedOut,
		OutputLength: len(rec.Stdout),
		ErrorLength:  len(rec.Stderr),
	}
}
