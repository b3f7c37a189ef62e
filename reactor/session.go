//go:build linux

// File: reactor/session.go
// Author: momentics <momentics@gmail.com>
//
// session binds a Conn to the reactor and is the job queued for workers.

package reactor

import (
	"context"
	"fmt"
	"time"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/resource"
)

type session struct {
	r    *Reactor
	conn *protocol.Conn

	// reactor goroutine only
	closed bool
}

// Run processes buffered input on a worker and hands the socket back to the
// reactor by re-arming it for the interest Process returned.
func (s *session) Run(ctx context.Context, h resource.Handle) {
	c := s.conn
	if !c.Handoff(protocol.OwnerQueued, protocol.OwnerWorker) {
		s.r.logger.Error("reactor.ownership.violation", "conn", c.ID(), "owner", c.Owner().String(), "want", protocol.OwnerQueued.String())
		return
	}
	in := s.process(ctx, h)

	fd := c.Fd()
	c.SetOwner(protocol.OwnerArming)
	if err := s.r.poller.arm(fd, in); err != nil {
		// left to the idle sweep
		s.r.logger.Warn("reactor.rearm.failed", "conn", c.ID(), "error", err)
	}
	// The reactor may already have claimed the socket.
	c.Handoff(protocol.OwnerArming, protocol.OwnerReactor)
}

func (s *session) process(ctx context.Context, h resource.Handle) (in protocol.Interest) {
	defer func() {
		if p := recover(); p != nil {
			err := api.NewError(api.KindInfrastructure, "process", fmt.Errorf("panic: %v", p))
			s.r.logger.Error("reactor.session.panic", "conn", s.conn.ID(), "error", err)
			s.conn.Abort()
			in = protocol.InterestWrite
		}
	}()
	return s.conn.Process(ctx, h)
}

// expire runs from the timer sweep on the reactor goroutine. A connection
// held by a worker is given another slot instead of being closed under it.
func (s *session) expire() {
	if s.closed {
		return
	}
	c := s.conn
	if c.Owner() != protocol.OwnerReactor {
		c.SetTimer(s.r.timers.Add(time.Now().Add(s.r.cfg.TimeSlot), s.expire))
		return
	}
	s.r.evict(s, api.KindTimeout, fmt.Errorf("idle for %s", s.r.cfg.IdleTimeout()))
}
