// File: logging/sink.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Append-only log destination with optional asynchronous delivery.

package logging

import (
	"io"
	"sync"
	"sync/atomic"
)

// Sink forwards log records to an underlying writer. With a queue it hands
// records to one writer goroutine; a full queue degrades to a direct write
// so callers are never parked behind the writer.
type Sink struct {
	out io.Writer
	mu  sync.Mutex

	gate   sync.RWMutex
	closed bool
	queue  chan []byte
	done   chan struct{}

	direct atomic.Uint64
}

// NewSink wraps out. A queueSize of zero or less makes every write
// synchronous.
func NewSink(out io.Writer, queueSize int) *Sink {
	s := &Sink{out: out}
	if queueSize > 0 {
		s.queue = make(chan []byte, queueSize)
		s.done = make(chan struct{})
		go s.drain()
	}
	return s
}

// Async reports whether the sink has a writer goroutine.
func (s *Sink) Async() bool { return s.queue != nil }

// Overflows returns how many records bypassed a full queue.
func (s *Sink) Overflows() uint64 { return s.direct.Load() }

// Write implements io.Writer. The record is copied before queuing.
func (s *Sink) Write(p []byte) (int, error) {
	s.gate.RLock()
	defer s.gate.RUnlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	if s.queue != nil {
		rec := make([]byte, len(p))
		copy(rec, p)
		select {
		case s.queue <- rec:
			return len(p), nil
		default:
			s.direct.Add(1)
		}
	}
	return s.write(p)
}

func (s *Sink) write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Write(p)
}

func (s *Sink) drain() {
	defer close(s.done)
	for rec := range s.queue {
		_, _ = s.write(rec)
	}
}

// Close flushes queued records and closes the underlying writer when it
// is an io.Closer other than a standard stream.
func (s *Sink) Close() error {
	s.gate.Lock()
	if s.closed {
		s.gate.Unlock()
		return nil
	}
	s.closed = true
	if s.queue != nil {
		close(s.queue)
	}
	s.gate.Unlock()
	if s.done != nil {
		<-s.done
	}
	if c, ok := s.out.(io.Closer); ok && !isStdStream(s.out) {
		return c.Close()
	}
	return nil
}
