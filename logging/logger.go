// File: logging/logger.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package logging builds the process logger: pslog over a Sink that writes
// either to stderr or to a rolling file, synchronously or through a
// bounded queue.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"

	"pkt.systems/pslog"
)

// EnvPrefix is the environment prefix pslog reads overrides from.
const EnvPrefix = "HIOLOAD_LOG_"

// Options selects the log destination and delivery mode.
type Options struct {
	Level     string
	Console   bool
	File      string
	MaxLines  int
	QueueSize int
}

// DefaultOptions returns info level structured logs on stderr delivered
// through an eight record queue.
func DefaultOptions() Options {
	return Options{
		Level:     "info",
		MaxLines:  800000,
		QueueSize: 8,
	}
}

// New returns the logger and the sink behind it. Close the sink on exit to
// flush queued records.
func New(ctx context.Context, opts Options) (pslog.Logger, *Sink, error) {
	level := pslog.InfoLevel
	if opts.Level != "" {
		l, ok := pslog.ParseLevel(opts.Level)
		if !ok {
			return nil, nil, fmt.Errorf("logging: unknown level %q", opts.Level)
		}
		level = l
	}
	var out io.Writer = os.Stderr
	if opts.File != "" {
		rf, err := OpenRollingFile(opts.File, opts.MaxLines)
		if err != nil {
			return nil, nil, err
		}
		out = rf
	}
	sink := NewSink(out, opts.QueueSize)
	mode := pslog.ModeStructured
	if opts.Console {
		mode = pslog.ModeConsole
	}
	logger := pslog.LoggerFromEnv(ctx,
		pslog.WithEnvPrefix(EnvPrefix),
		pslog.WithEnvOptions(pslog.Options{Mode: mode, MinLevel: level, NoColor: opts.File != ""}),
		pslog.WithEnvWriter(sink),
	)
	return logger, sink, nil
}

// Subsystem tags l with the owning component, tolerating a nil logger.
func Subsystem(l pslog.Logger, name string) pslog.Logger {
	if l == nil {
		l = pslog.NoopLogger()
	}
	return l.With("sys", name)
}

func isStdStream(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (f == os.Stdout || f == os.Stderr)
}
