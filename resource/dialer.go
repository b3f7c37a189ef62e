// File: resource/dialer.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Handle factories: a TCP dialer for a real endpoint and an in-process
// dialer used when no endpoint is configured.

package resource

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
)

// Dialer opens one handle for the given pool slot.
type Dialer interface {
	Dial(ctx context.Context, cfg Config, slot int) (Handle, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, cfg Config, slot int) (Handle, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, cfg Config, slot int) (Handle, error) {
	return f(ctx, cfg, slot)
}

// TCPDialer keeps one TCP connection per handle to Endpoint:Port.
type TCPDialer struct {
	Timeout time.Duration
}

// Dial connects to the configured endpoint.
func (d TCPDialer) Dial(ctx context.Context, cfg Config, slot int) (Handle, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	addr := net.JoinHostPort(cfg.Endpoint, strconv.Itoa(cfg.Port))
	nd := net.Dialer{Timeout: timeout}
	c, err := nd.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s slot %d: %w", addr, slot, err)
	}
	return &tcpHandle{id: xid.New().String(), db: cfg.Database, conn: c}, nil
}

type tcpHandle struct {
	id   string
	db   string
	conn net.Conn
}

func (h *tcpHandle) ID() string   { return h.db + "/" + h.id }
func (h *tcpHandle) Close() error { return h.conn.Close() }

// MemoryDialer produces in-process handles that hold no socket.
type MemoryDialer struct{}

// Dial always succeeds.
func (MemoryDialer) Dial(_ context.Context, cfg Config, slot int) (Handle, error) {
	return &MemoryHandle{id: fmt.Sprintf("%s/mem-%d", cfg.Database, slot)}, nil
}

// MemoryHandle is the handle type produced by MemoryDialer.
type MemoryHandle struct {
	id     string
	closed atomic.Bool
}

// ID returns the handle name.
func (h *MemoryHandle) ID() string { return h.id }

// Close marks the handle closed.
func (h *MemoryHandle) Close() error {
	h.closed.Store(true)
	return nil
}

// Closed reports whether Close was called.
func (h *MemoryHandle) Closed() bool { return h.closed.Load() }
