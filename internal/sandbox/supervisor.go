package sandbox

import (
	"errors"
	"log/slog"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"
)

// GracePeriod is the delay between the graceful termination signal and the
// forced kill during escalation.
const GracePeriod = 5 * time.Second

// supervisor owns the live registry of running processes and enforces the
// concurrency cap. All registry mutation happens under one mutex; admission
// (cap check + registration) is atomic, so concurrent spawns racing the last
// slot cannot both succeed.
type supervisor struct {
	mu     sync.Mutex
	procs  map[string]*process
	logger *slog.Logger
}

type process struct {
	id         string
	cmd        *exec.Cmd
	started    bool // pid is valid; set under the supervisor mutex after Start
	pid        int
	killed     bool
	timedOut   bool
	graceTimer *time.Timer
	done       chan struct{} // closed after the process has exited
}

func newSupervisor(logger *slog.Logger) *supervisor {
	return &supervisor{
		procs:  make(map[string]*process),
		logger: logger,
	}
}

// spawnSpec is a Request with every default resolved by the facade.
type spawnSpec struct {
	id      string
	command string
	args    []string
	timeout time.Duration
	workDir string
	env     []string
}

// run admits, spawns, and supervises one process to completion. It returns a
// finalized Record, or a CapacityError/SpawnError before any process exists.
// Closing cancel kills the process through the normal escalation path.
func (s *supervisor) run(spec spawnSpec, col *collector, maxActive int, cancel <-chan struct{}) (*Record, error) {
	cmd := exec.Command(spec.command, spec.args...)
	cmd.Dir = spec.workDir
	cmd.Env = spec.env
	cmd.Stdout = col.stdoutWriter()
	cmd.Stderr = col.stderrWriter()
	// The child runs in its own process group so kill escalation reaches
	// everything it forked.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &process{id: spec.id, cmd: cmd, done: make(chan struct{})}

	// Admission: cap check and registration are one critical section.
	s.mu.Lock()
	if len(s.procs) >= maxActive {
		active := len(s.procs)
		s.mu.Unlock()
		col.finalize()
		return nil, &CapacityError{Active: active, Max: maxActive}
	}
	s.procs[spec.id] = p
	s.mu.Unlock()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		s.remove(spec.id)
		col.finalize()
		return nil, &SpawnError{Command: spec.command, Err: err}
	}

	// Publish the pid under the mutex: cmd.Process is written by Start
	// without synchronization, so signalKill must never read it directly.
	s.mu.Lock()
	p.started = true
	p.pid = cmd.Process.Pid
	s.mu.Unlock()

	s.logger.Info("process started",
		slog.String("process_id", spec.id),
		slog.String("command", spec.command),
		slog.Int("pid", cmd.Process.Pid),
		slog.Duration("timeout", spec.timeout),
	)

	// Timeout races process exit; the loser's effect is idempotent.
	timeoutTimer := time.AfterFunc(spec.timeout, func() {
		s.signalKill(spec.id, true)
	})

	if cancel != nil {
		go func() {
			select {
			case <-cancel:
				s.signalKill(spec.id, false)
			case <-p.done:
			}
		}()
	}

	waitErr := cmd.Wait()
	timeoutTimer.Stop()

	stdout, stderr := col.finalize()

	s.mu.Lock()
	killed, timedOut := p.killed, p.timedOut
	if p.graceTimer != nil {
		p.graceTimer.Stop()
	}
	delete(s.procs, spec.id)
	close(p.done)
	s.mu.Unlock()

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			// Wait itself failed; treat like a signal death.
			exitCode = -1
		}
	}

	rec := &Record{
		ProcessID: spec.id,
		Command:   spec.command,
		Args:      spec.args,
		Success:   exitCode == 0 && !killed && !timedOut,
		ExitCode:  exitCode,
		Stdout:    stdout,
		Stderr:    stderr,
		Duration:  time.Since(start),
		Timestamp: start,
		Killed:    killed,
		TimedOut:  timedOut,
		WorkDir:   spec.workDir,
	}

	s.logger.Info("process finished",
		slog.String("process_id", spec.id),
		slog.Int("exit_code", exitCode),
		slog.Bool("killed", killed),
		slog.Bool("timed_out", timedOut),
		slog.Duration("duration", rec.Duration),
	)
	return rec, nil
}

// signalKill starts kill escalation for one process: SIGTERM to the process
// group now, SIGKILL after the grace period if it is still registered.
// Returns false for unknown, not-yet-started, or already-killed processes.
// Caller kills and timeout kills share this path.
func (s *supervisor) signalKill(id string, timedOut bool) bool {
	s.mu.Lock()
	p, ok := s.procs[id]
	if !ok || !p.started || p.killed {
		s.mu.Unlock()
		return false
	}
	p.killed = true
	if timedOut {
		p.timedOut = true
	}
	pid := p.pid
	p.graceTimer = time.AfterFunc(GracePeriod, func() {
		s.forceKill(id, pid)
	})
	s.mu.Unlock()

	// Negative pid signals the whole process group.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Warn("graceful kill failed",
			slog.String("process_id", id),
			slog.Int("pid", pid),
			slog.String("error", err.Error()),
		)
	}
	return true
}

// forceKill fires after the grace period. The registry entry is removed only
// on actual exit, so presence means the process ignored SIGTERM.
func (s *supervisor) forceKill(id string, pid int) {
	s.mu.Lock()
	_, stillRunning := s.procs[id]
	s.mu.Unlock()
	if !stillRunning {
		return
	}

	s.logger.Warn("process ignored graceful signal, forcing kill",
		slog.String("process_id", id),
		slog.Int("pid", pid),
	)
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		s.logger.Error("forced kill failed",
			slog.String("process_id", id),
			slog.Int("pid", pid),
			slog.String("error", err.Error()),
		)
	}
}

func (s *supervisor) remove(id string) {
	s.mu.Lock()
	if p, ok := s.procs[id]; ok {
		close(p.done)
		delete(s.procs, id)
	}
	s.mu.Unlock()
}

func (s *supervisor) killAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.signalKill(id, false)
	}
}

func (s *supervisor) activeIDs() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.procs))
	for id := range s.procs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	sort.Strings(ids)
	return ids
}
