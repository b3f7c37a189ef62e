//go:build linux

// File: protocol/io_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Non-blocking socket I/O for edge-triggered readiness.

package protocol

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-httpd/api"
)

// ErrBroken is returned by Write when the response could not be built.
var ErrBroken = errors.New("response could not be assembled")

// Read drains the socket into the read buffer until it would block.
// Peer close, a full buffer and socket errors are reported as transport
// errors; the caller closes the connection.
func (c *Conn) Read() error {
	if c.readLen >= len(c.readBuf) {
		return api.NewError(api.KindTransport, "read", api.ErrBufferFull)
	}
	for c.readLen < len(c.readBuf) {
		n, err := unix.Read(c.fd, c.readBuf[c.readLen:])
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return nil
		case err != nil:
			return api.NewError(api.KindTransport, "read", err)
		case n == 0:
			return api.NewError(api.KindTransport, "read", api.ErrPeerClosed)
		}
		c.readLen += n
	}
	return nil
}

// Write sends the pending iovecs. It returns InterestWrite when the socket
// would block, InterestRead after a kept-alive response has been reset,
// and InterestClose when the response is done and the client did not ask
// to linger.
func (c *Conn) Write() (Interest, error) {
	if c.broken {
		c.unmap()
		return InterestClose, api.NewError(api.KindProtocol, "write", ErrBroken)
	}
	if c.bytesToSend == 0 {
		c.Reset()
		return InterestRead, nil
	}
	for {
		n, err := unix.Writev(c.fd, c.pending())
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EAGAIN:
			return InterestWrite, nil
		case err != nil:
			c.unmap()
			return InterestClose, api.NewError(api.KindTransport, "writev", err)
		}
		c.bytesSent += n
		c.bytesToSend -= n
		if c.bytesToSend <= 0 {
			c.unmap()
			if c.linger {
				c.Reset()
				return InterestRead, nil
			}
			return InterestClose, nil
		}
	}
}

// pending returns the unsent parts of the iovecs, skipping empty ones.
func (c *Conn) pending() [][]byte {
	hdr := len(c.iov[0])
	if c.bytesSent < hdr {
		if c.iovCount == 2 {
			return [][]byte{c.iov[0][c.bytesSent:], c.iov[1]}
		}
		return [][]byte{c.iov[0][c.bytesSent:]}
	}
	return [][]byte{c.iov[1][c.bytesSent-hdr:]}
}
