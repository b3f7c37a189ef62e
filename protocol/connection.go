// File: protocol/connection.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Conn carries one client socket through repeated request/response cycles.

package protocol

import (
	"context"
	"sync/atomic"

	"github.com/rs/xid"
	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/resource"
	"github.com/momentics/hioload-httpd/timer"
)

// Conn is the per-socket state. See the package comment for ownership.
type Conn struct {
	fd    int
	id    xid.ID
	peer  string
	opts  *Options
	owner atomic.Int32
	timer timer.Handle

	readBuf   []byte
	readLen   int
	parsedLen int
	lineStart int

	writeBuf []byte
	writeLen int

	state         State
	method        Method
	target        string
	version       string
	host          string
	contentLength int
	linger        bool
	hasBody       bool
	body          []byte

	realPath string
	file     []byte
	fileSize int64

	iov         [2][]byte
	iovCount    int
	bytesToSend int
	bytesSent   int
	broken      bool
	status      int

	handle resource.Handle
}

// NewConn wraps an accepted, non-blocking socket. opts must already be
// normalized.
func NewConn(fd int, peer string, opts *Options) *Conn {
	c := &Conn{
		fd:       fd,
		id:       xid.New(),
		peer:     peer,
		opts:     opts,
		readBuf:  make([]byte, opts.ReadBufferSize),
		writeBuf: make([]byte, opts.WriteBufferSize),
	}
	c.Reset()
	return c
}

// Fd returns the socket descriptor, -1 once closed.
func (c *Conn) Fd() int { return c.fd }

// ID identifies the connection in logs.
func (c *Conn) ID() string { return c.id.String() }

// Peer returns the remote address.
func (c *Conn) Peer() string { return c.peer }

// Timer returns the connection's timer handle.
func (c *Conn) Timer() timer.Handle { return c.timer }

// SetTimer records the connection's timer handle.
func (c *Conn) SetTimer(h timer.Handle) { c.timer = h }

// Owner reports the current holder.
func (c *Conn) Owner() Owner { return Owner(c.owner.Load()) }

// SetOwner records a hand-off that cannot race with another holder.
func (c *Conn) SetOwner(o Owner) { c.owner.Store(int32(o)) }

// Handoff moves ownership from one holder to the next and reports false
// when from was not the current holder.
func (c *Conn) Handoff(from, to Owner) bool {
	return c.owner.CompareAndSwap(int32(from), int32(to))
}

// Status is the code of the last response built, 0 before the first.
func (c *Conn) Status() int { return c.status }

// Method returns the parsed method of the current request.
func (c *Conn) Method() Method { return c.method }

// Target returns the parsed target of the current request.
func (c *Conn) Target() string { return c.target }

// Host returns the Host header value without port.
func (c *Conn) Host() string { return c.host }

// KeepAlive reports whether the client asked for keep-alive.
func (c *Conn) KeepAlive() bool { return c.linger }

// ResponseSize returns the bytes queued for the current response.
func (c *Conn) ResponseSize() int { return c.bytesToSend + c.bytesSent }

// Reset prepares the connection for the next request on the same socket.
func (c *Conn) Reset() {
	c.unmap()
	clear(c.readBuf[:c.readLen])
	c.readLen, c.parsedLen, c.lineStart = 0, 0, 0
	c.writeLen = 0
	c.state = StateRequestLine
	c.method = MethodGet
	c.target, c.version, c.host = "", "", ""
	c.contentLength = 0
	c.linger = false
	c.hasBody = false
	c.body = nil
	c.realPath = ""
	c.fileSize = 0
	c.iov = [2][]byte{}
	c.iovCount = 0
	c.bytesToSend, c.bytesSent = 0, 0
	c.broken = false
}

// Process parses what Read buffered and, once a request is complete,
// builds its response. It returns the readiness to re-arm: read while the
// request is incomplete, write otherwise. Only the owning worker calls it.
func (c *Conn) Process(ctx context.Context, h resource.Handle) Interest {
	c.handle = h
	defer func() { c.handle = nil }()

	outcome := c.processRead(ctx)
	if outcome == NoRequest {
		return InterestRead
	}
	if !c.processWrite(outcome) {
		c.opts.Logger.Warn("protocol.response.overflow", "conn", c.ID(), "outcome", outcome.String())
		c.Abort()
	}
	return InterestWrite
}

// Abort discards the response in progress; the next Write fails so the
// owner closes the connection.
func (c *Conn) Abort() {
	c.broken = true
	c.unmap()
}

// Close releases the mapping and the socket. Safe to call twice.
func (c *Conn) Close() error {
	c.unmap()
	if c.fd < 0 {
		return nil
	}
	err := unix.Close(c.fd)
	c.fd = -1
	return err
}

func (c *Conn) unmap() {
	if c.file == nil {
		return
	}
	if err := c.opts.Mapper.Unmap(c.file); err != nil {
		c.opts.Logger.Warn("protocol.munmap.failed", "conn", c.ID(), "path", c.realPath, "error", err)
	}
	c.file = nil
}
