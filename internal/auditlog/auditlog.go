// Package auditlog persists one record per completed execution attempt as
// append-only JSONL. Each entry is a single JSON line followed by a newline.
// Thread-safe: multiple goroutines can append concurrently.
package auditlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// SchemaVersion is stamped into every appended entry.
const SchemaVersion = 1

const fileName = "execution.log"

// Entry is the persisted projection of an execution record. Full stdout and
// stderr are dropped; only their lengths are kept.
type Entry struct {
	SchemaVersion int       `json:"schema_version"`
	Timestamp     time.Time `json:"timestamp"`
	ProcessID     string    `json:"process_id"`
	Command       string    `json:"command"`
	Args          []string  `json:"args"`
	WorkDir       string    `json:"working_directory"`
	ExitCode      int       `json:"exit_code"`
	DurationMs    int64     `json:"execution_time_ms"`
	Success       bool      `json:"success"`
	Killed        bool      `json:"killed"`
	TimedOut      bool      `json:"timed_out"`
	OutputLength  int       `json:"output_length"`
	ErrorLength   int       `json:"error_length"`
}

// QueryResult carries the entries plus the number of malformed lines that
// were skipped while reading.
type QueryResult struct {
	Entries []Entry
	Skipped int
}

// Logger appends execution entries to <dir>/execution.log.
type Logger struct {
	mu     sync.Mutex
	dir    string
	logger *slog.Logger
}

// New creates a Logger writing under dir. The directory is created lazily on
// first append, so construction never touches the filesystem.
func New(dir string, logger *slog.Logger) *Logger {
	return &Logger{dir: dir, logger: logger}
}

// SetDir switches the log directory. Subsequent appends and queries use the
// new location; existing entries are not migrated.
func (l *Logger) SetDir(dir string) {
	l.mu.Lock()
	l.dir = dir
	l.mu.Unlock()
}

func (l *Logger) path() string {
	return filepath.Join(l.dir, fileName)
}

// Append serializes the entry as one JSON line and appends it to the log.
// The directory is created if absent. Marshal happens outside the lock;
// only the file write is serialized.
func (l *Logger) Append(entry Entry) error {
	entry.SchemaVersion = SchemaVersion

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling execution entry: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(l.dir, 0750); err != nil {
		return fmt.Errorf("creating logs directory %s: %w", l.dir, err)
	}

	f, err := os.OpenFile(l.path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("opening execution log %s: %w", l.path(), err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("writing execution entry: %w", err)
	}
	return nil
}

// Query reads the whole log, parses line by line, and returns at most limit
// entries sorted by timestamp descending. Lines that fail to parse are
// skipped, counted, and reported via the result and an operator warning;
// they never abort the read.
func (l *Logger) Query(limit int) (QueryResult, error) {
	l.mu.Lock()
	path := l.path()
	l.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return QueryResult{}, nil
		}
		return QueryResult{}, fmt.Errorf("opening execution log %s: %w", path, err)
	}
	defer f.Close()

	var res QueryResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			res.Skipped++
			continue
		}
		res.Entries = append(res.Entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return QueryResult{}, fmt.Errorf("reading execution log %s: %w", path, err)
	}

	if res.Skipped > 0 && l.logger != nil {
		l.logger.Warn("skipped malformed execution log lines",
			slog.String("path", path),
			slog.Int("skipped", res.Skipped),
		)
	}

	sort.SliceStable(res.Entries, func(i, j int) bool {
		return res.Entries[i].Timestamp.After(res.Entries[j].Timestamp)
	})
	if limit > 0 && len(res.Entries) > limit {
		res.Entries = res.Entries[:limit]
	}
	return res, nil
}

// Clear deletes the log file if present. The next Append recreates it.
func (l *Logger) Clear() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	err := os.Remove(l.path())
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing execution log %s: %w", l.path(), err)
	}
	return nil
}
