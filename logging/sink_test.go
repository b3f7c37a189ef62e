package logging

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// slowWriter blocks every write until release is closed.
type slowWriter struct {
	lockedBuffer
	release chan struct{}
}

func (w *slowWriter) Write(p []byte) (int, error) {
	<-w.release
	return w.lockedBuffer.Write(p)
}

func TestSyncSinkWritesThrough(t *testing.T) {
	var out lockedBuffer
	s := NewSink(&out, 0)
	if s.Async() {
		t.Fatal("zero queue produced an async sink")
	}
	fmt.Fprint(s, "one\n")
	if out.String() != "one\n" {
		t.Fatalf("got %q", out.String())
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Write([]byte("late")); err == nil {
		t.Fatal("write after close succeeded")
	}
}

func TestAsyncSinkFlushesOnClose(t *testing.T) {
	var out lockedBuffer
	s := NewSink(&out, 64)
	buf := []byte("record-0\n")
	for i := 0; i < 50; i++ {
		copy(buf, fmt.Sprintf("record-%d\n", i%10))
		if _, err := s.Write(buf); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(out.String(), "\n"); got != 50 {
		t.Fatalf("flushed %d records, want 50", got)
	}
	if !strings.HasPrefix(out.String(), "record-0\nrecord-1\n") {
		t.Fatalf("records reused caller buffer: %q", out.String()[:20])
	}
}

func TestAsyncSinkFullQueueFallsBackToDirectWrite(t *testing.T) {
	w := &slowWriter{release: make(chan struct{})}
	s := NewSink(w, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4; i++ {
			s.Write([]byte("x\n"))
		}
	}()
	time.Sleep(50 * time.Millisecond)
	close(w.release)
	<-done
	s.Close()
	if s.Overflows() == 0 {
		t.Fatal("expected at least one direct write past the full queue")
	}
	if got := strings.Count(w.String(), "\n"); got != 4 {
		t.Fatalf("wrote %d records, want 4", got)
	}
}

func TestRollingFileRollsOnDayAndLines(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	clock := func() time.Time { return day }
	r, err := openRolling(filepath.Join(dir, "ServerLog"), 2, clock)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	first := r.Path()
	if filepath.Base(first) != "2026_03_01_ServerLog" {
		t.Fatalf("unexpected name %s", first)
	}
	fmt.Fprint(r, "a\nb\n")
	fmt.Fprint(r, "c\n")
	if filepath.Base(r.Path()) != "2026_03_01_ServerLog.1" {
		t.Fatalf("line limit did not roll: %s", r.Path())
	}
	day = day.Add(2 * time.Minute)
	fmt.Fprint(r, "d\n")
	if filepath.Base(r.Path()) != "2026_03_02_ServerLog" {
		t.Fatalf("day change did not roll: %s", r.Path())
	}
	data, err := os.ReadFile(first)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Fatalf("first file holds %q", data)
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, _, err := New(context.Background(), Options{Level: "shouting"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "server.log")
	logger, sink, err := New(context.Background(), Options{Level: "info", File: path, QueueSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	Subsystem(logger, "test").Info("logging.test.event", "n", 1)
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*_server.log"))
	if len(matches) != 1 {
		t.Fatalf("expected one log file, got %v", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(data), "logging.test.event") {
		t.Fatalf("log file missing event: %q", data)
	}
}
