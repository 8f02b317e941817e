package sandbox

import (
	"bytes"
	"sync"
)

// TruncationMarker is appended to a stream's accumulated output when it
// exceeded the configured cap.
const TruncationMarker = "(output truncated)"

// collector accumulates stdout/stderr for one execution and forwards each
// chunk to the caller's sink as it arrives. Accumulation is capped per
// stream; forwarding is not — the sink sees every chunk in arrival order.
//
// Chunks flow through a buffered channel drained by a single forwarder
// goroutine, so the sink never runs on the pipe-reader goroutine and
// per-stream ordering is preserved. After finalize returns, no further
// chunk is delivered.
type collector struct {
	processID string

	mu     sync.Mutex
	stdout streamBuffer
	stderr streamBuffer
	closed bool

	ch   chan Chunk
	done chan struct{}
}

func newCollector(processID string, limit int, sink Sink) *collector {
	c := &collector{
		processID: processID,
		stdout:    streamBuffer{limit: limit},
		stderr:    streamBuffer{limit: limit},
		done:      make(chan struct{}),
	}
	if sink != nil {
		c.ch = make(chan Chunk, 64)
		go func() {
			defer close(c.done)
			for chunk := range c.ch {
				sink.Consume(chunk)
			}
		}()
	} else {
		close(c.done)
	}
	return c
}

// stdoutWriter and stderrWriter are handed to os/exec as the process's
// standard streams.
func (c *collector) stdoutWriter() *streamWriter {
	return &streamWriter{c: c, stream: StreamStdout, buf: &c.stdout}
}

func (c *collector) stderrWriter() *streamWriter {
	return &streamWriter{c: c, stream: StreamStderr, buf: &c.stderr}
}

// finalize stops forwarding and returns the accumulated (possibly truncated)
// stdout and stderr. Safe to call once; chunks arriving after finalize began
// are dropped.
func (c *collector) finalize() (stdout, stderr string) {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		if c.ch != nil {
			close(c.ch)
		}
	}
	stdout = c.stdout.final()
	stderr = c.stderr.final()
	c.mu.Unlock()

	// Wait for the forwarder to drain so no sink call races the caller's
	// use of the finalized record.
	<-c.done
	return stdout, stderr
}

// streamWriter implements io.Writer for one stream of one execution.
type streamWriter struct {
	c      *collector
	stream Stream
	buf    *streamBuffer
}

func (w *streamWriter) Write(p []byte) (int, error) {
	c := w.c
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return len(p), nil
	}
	w.buf.write(p)
	if c.ch != nil {
		// os/exec may reuse p after Write returns; the chunk owns a copy.
		content := make([]byte, len(p))
		copy(content, p)
		c.ch <- Chunk{ProcessID: c.processID, Stream: w.stream, Content: content}
	}
	c.mu.Unlock()
	return len(p), nil
}

// streamBuffer accumulates at most limit bytes and remembers whether more
// arrived. The final string is deterministic given total output size,
// regardless of chunk boundaries.
type streamBuffer struct {
	limit     int
	buf       bytes.Buffer
	truncated bool
}

func (s *streamBuffer) write(p []byte) {
	if len(p) == 0 {
		return
	}
	room := s.limit - s.buf.Len()
	if room <= 0 {
		s.truncated = true
		return
	}
	if len(p) > room {
		p = p[:room]
		s.truncated = true
	}
	s.buf.Write(p)
}

func (s *streamBuffer) final() string {
	if s.truncated {
		return s.buf.String() + TruncationMarker
	}
	return s.buf.String()
}
