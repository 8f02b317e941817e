package sandbox

import (
	"encoding/json"
	"fmt"
	"time"
)

// Request describes one command execution. It is consumed at call time and
// never persisted.
type Request struct {
	// Command is the program to execute. Arguments are passed as a discrete
	// array and never joined into a shell string.
	Command string

	// Args are the program arguments, in order.
	Args []string

	// Timeout overrides the sandbox default. Zero = use default.
	Timeout time.Duration

	// WorkDir overrides the working directory. Empty = sandbox work dir.
	WorkDir string

	// Env adds environment variables on top of the parent environment.
	Env map[string]string

	// MaxOutputBytes overrides the per-stream output cap. Zero = use default.
	MaxOutputBytes int

	// AllowUnsafe bypasses command validation. The caller accepts full
	// responsibility for what runs.
	AllowUnsafe bool
}

// Record is the immutable, terminal description of one completed execution.
// Non-zero exits and timeouts are encoded here, never as errors.
type Record struct {
	ProcessID string        `json:"process_id"`
	Command   string        `json:"command"`
	Args      []string      `json:"args"`
	Success   bool          `json:"success"`
	ExitCode  int           `json:"exit_code"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr"`
	Duration  time.Duration `json:"-"`
	Timestamp time.Time     `json:"timestamp"`
	Killed    bool          `json:"killed"`
	TimedOut  bool          `json:"timed_out"`
	WorkDir   string        `json:"working_directory"`
}

// MarshalJSON emits Duration as whole milliseconds, matching the field name
// and the persisted auditlog.Entry.
func (r Record) MarshalJSON() ([]byte, error) {
	type alias Record
	return json.Marshal(struct {
		alias
		DurationMs int64 `json:"execution_time_ms"`
	}{alias(r), r.Duration.Milliseconds()})
}

// Stream identifies which standard stream a chunk came from.
type Stream string

const (
	StreamStdout Stream = "stdout"
	StreamStderr Stream = "stderr"
)

// Chunk is one piece of process output, delivered per-chunk (not per-line)
// in arrival order for its stream. Ordering between stdout and stderr
// chunks is not guaranteed relative to each other.
type Chunk struct {
	ProcessID string
	Stream    Stream
	Content   []byte
}

// Sink receives output chunks as they arrive. Consume is called from a
// single forwarder goroutine per execution; it must not block forever.
type Sink interface {
	Consume(Chunk)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Chunk)

// Consume calls f(c).
func (f SinkFunc) Consume(c Chunk) { f(c) }

// Status is a point-in-time snapshot of the engine.
type Status struct {
	ActiveProcesses int      `json:"active_processes"`
	MaxConcurrent   int      `json:"max_concurrent"`
	TimeoutSeconds  int      `json:"timeout_seconds"`
	MaxOutputBytes  int      `json:"max_output_bytes"`
	LogsDir         string   `json:"logs_dir"`
	ProcessIDs      []string `json:"process_ids"`
}

// ConfigUpdate is a partial configuration change. Nil fields are untouched.
type ConfigUpdate struct {
	MaxConcurrent  *int
	TimeoutSeconds *int
	MaxOutputBytes *int
	LogsDir        *string
	WorkDir        *string
}

// PolicyError reports a command rejected by the validator. No process is
// spawned when this is returned.
type PolicyError struct {
	Rule   string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("command rejected by sandbox policy (%s): %s", e.Rule, e.Reason)
}

// CapacityError reports admission denied because the active-process cap is
// saturated. Requests are rejected, never queued.
type CapacityError struct {
	Active int
	Max    int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("concurrency limit reached: %d of %d processes active", e.Active, e.Max)
}

// SpawnError reports that the OS could not start the process. It is distinct
// from a non-zero exit, which is a normal Record outcome.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawning %q: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }
