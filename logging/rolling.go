// File: logging/rolling.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Date-prefixed log file that starts a new file on day change or once a
// line limit is reached.

package logging

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const dayLayout = "2006_01_02"

// RollingFile writes to <dir>/<day>_<name>, then <dir>/<day>_<name>.<n>
// after every MaxLines lines within the same day.
type RollingFile struct {
	dir      string
	name     string
	maxLines int
	now      func() time.Time

	mu    sync.Mutex
	f     *os.File
	day   string
	part  int
	lines int
}

// OpenRollingFile opens the file for today under path's directory.
// maxLines <= 0 disables line based rolling.
func OpenRollingFile(path string, maxLines int) (*RollingFile, error) {
	return openRolling(path, maxLines, time.Now)
}

func openRolling(path string, maxLines int, now func() time.Time) (*RollingFile, error) {
	dir, name := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	if name == "" {
		return nil, fmt.Errorf("rolling log: empty file name in %q", path)
	}
	r := &RollingFile{dir: dir, name: name, maxLines: maxLines, now: now}
	if err := r.rotate(now().Format(dayLayout), 0); err != nil {
		return nil, err
	}
	return r, nil
}

// Path returns the file currently written to.
func (r *RollingFile) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path(r.day, r.part)
}

func (r *RollingFile) path(day string, part int) string {
	base := day + "_" + r.name
	if part > 0 {
		base = fmt.Sprintf("%s.%d", base, part)
	}
	return filepath.Join(r.dir, base)
}

func (r *RollingFile) rotate(day string, part int) error {
	f, err := os.OpenFile(r.path(day, part), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("rolling log: open: %w", err)
	}
	if r.f != nil {
		_ = r.f.Close()
	}
	r.f, r.day, r.part, r.lines = f, day, part, 0
	return nil
}

// Write implements io.Writer.
func (r *RollingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return 0, os.ErrClosed
	}
	today := r.now().Format(dayLayout)
	switch {
	case today != r.day:
		if err := r.rotate(today, 0); err != nil {
			return 0, err
		}
	case r.maxLines > 0 && r.lines >= r.maxLines:
		if err := r.rotate(today, r.part+1); err != nil {
			return 0, err
		}
	}
	n, err := r.f.Write(p)
	r.lines += bytes.Count(p[:n], []byte{'\n'})
	return n, err
}

// Close closes the current file.
func (r *RollingFile) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	return err
}
