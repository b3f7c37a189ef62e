//go:build linux

// File: reactor/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Single-goroutine event loop over epoll.

package reactor

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"
	"pkt.systems/pslog"

	"github.com/momentics/hioload-httpd/api"
	"github.com/momentics/hioload-httpd/internal/concurrency"
	"github.com/momentics/hioload-httpd/protocol"
	"github.com/momentics/hioload-httpd/timer"
)

const busyMessage = "Internal server busy"

// retryInterval bounds the wait, in milliseconds, while requests are parked
// behind a full worker queue.
const retryInterval = 5

// Config holds the reactor parameters.
type Config struct {
	Host      string
	Port      int
	Backlog   int
	TimeSlot  time.Duration
	MaxConns  int
	MaxEvents int
	// Pin binds the loop thread to CPU.
	Pin bool
	CPU int
}

// DefaultConfig returns the stock limits: a 10s tick, 65536 connections
// and 10000 events per wait.
func DefaultConfig() Config {
	return Config{
		Backlog:   unix.SOMAXCONN,
		TimeSlot:  10 * time.Second,
		MaxConns:  65536,
		MaxEvents: 10000,
	}
}

// IdleTimeout is the inactivity budget after which a connection is evicted.
func (c Config) IdleTimeout() time.Duration { return 3 * c.TimeSlot }

// Dispatcher accepts complete reads for processing; *concurrency.WorkerPool
// implements it.
type Dispatcher interface {
	Append(job concurrency.Job) bool
}

// Observer receives reactor events for metrics.
type Observer interface {
	Accepted()
	Rejected()
	Backpressure()
	Responded(status, bytes int)
	Closed(kind api.Kind)
}

type nopObserver struct{}

func (nopObserver) Accepted()          {}
func (nopObserver) Rejected()          {}
func (nopObserver) Backpressure()      {}
func (nopObserver) Responded(int, int) {}
func (nopObserver) Closed(api.Kind)    {}

// Reactor owns the listener, epoll, and all connections it is holding.
type Reactor struct {
	cfg      Config
	opts     *protocol.Options
	workers  Dispatcher
	logger   pslog.Logger
	observer Observer

	poller *poller
	sig    *notifier
	lfd    int
	port   int

	timers   *timer.Registry
	sessions map[int]*session
	deferred []*session
	tickDue  bool
	stopping bool

	live      atomic.Int64
	running   atomic.Bool
	closeOnce sync.Once
}

// New binds the listener and prepares epoll. opts is normalized in place.
func New(cfg Config, opts *protocol.Options, workers Dispatcher, logger pslog.Logger, observer Observer) (*Reactor, error) {
	def := DefaultConfig()
	if cfg.TimeSlot <= 0 {
		cfg.TimeSlot = def.TimeSlot
	}
	if cfg.MaxConns <= 0 {
		cfg.MaxConns = def.MaxConns
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = def.MaxEvents
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = def.Backlog
	}
	if workers == nil {
		return nil, fmt.Errorf("reactor: nil dispatcher")
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if observer == nil {
		observer = nopObserver{}
	}
	opts.Normalize()

	r := &Reactor{
		cfg:      cfg,
		opts:     opts,
		workers:  workers,
		logger:   logger.With("sys", "reactor"),
		observer: observer,
		timers:   timer.New(),
		sessions: make(map[int]*session),
		lfd:      -1,
	}
	var err error
	if r.poller, err = newPoller(); err != nil {
		return nil, err
	}
	if r.sig, err = newNotifier(); err != nil {
		r.poller.close()
		return nil, err
	}
	if r.lfd, r.port, err = listen(cfg.Host, cfg.Port, cfg.Backlog); err != nil {
		r.sig.close()
		r.poller.close()
		return nil, err
	}
	if err = r.poller.addListener(r.lfd); err == nil {
		err = r.poller.addSignal(r.sig.rfd)
	}
	if err != nil {
		unix.Close(r.lfd)
		r.sig.close()
		r.poller.close()
		return nil, err
	}
	return r, nil
}

// Port returns the bound port.
func (r *Reactor) Port() int { return r.port }

// Live returns the number of open client connections.
func (r *Reactor) Live() int { return int(r.live.Load()) }

// Stop asks the loop to exit. Safe from any goroutine.
func (r *Reactor) Stop() {
	r.sig.send(stopByte)
}

// Run drives the loop until Stop or ctx is done. Connections stay open
// after Run returns so workers can be joined first; call Close then.
func (r *Reactor) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return errors.New("reactor: already running")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if r.cfg.Pin {
		prev, err := concurrency.PinCurrentThread(r.cfg.CPU)
		if err != nil {
			r.running.Store(false)
			return err
		}
		// PinCurrentThread takes its own lock on the thread.
		defer runtime.UnlockOSThread()
		defer concurrency.UnpinCurrentThread(prev)
	}
	stopWatch := context.AfterFunc(ctx, r.Stop)
	defer stopWatch()

	r.sig.arm(r.cfg.TimeSlot)
	r.logger.Info("reactor.started", "port", r.port, "tick", r.cfg.TimeSlot, "idle_timeout", r.cfg.IdleTimeout())

	events := make([]unix.EpollEvent, r.cfg.MaxEvents)
	for !r.stopping {
		timeout := -1
		if len(r.deferred) > 0 {
			timeout = retryInterval
		}
		n, err := r.poller.wait(events, timeout)
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			switch fd {
			case r.lfd:
				r.acceptAll()
			case r.sig.rfd:
				r.readSignals()
			default:
				r.dispatch(fd, events[i].Events)
			}
		}
		r.retryDeferred()
		if r.tickDue {
			r.tickDue = false
			if evicted := r.timers.Sweep(time.Now()); evicted > 0 {
				r.logger.Debug("reactor.sweep", "evicted", evicted, "live", r.Live())
			}
			r.sig.arm(r.cfg.TimeSlot)
		}
	}
	r.logger.Info("reactor.stopped", "live", r.Live())
	return nil
}

// Close closes every connection, the listener and epoll. Call it after the
// worker pool has been closed.
func (r *Reactor) Close() error {
	r.closeOnce.Do(func() {
		for _, s := range r.sessions {
			r.evict(s, api.KindNone, errors.New("shutdown"))
		}
		r.deferred = nil
		unix.Close(r.lfd)
		r.sig.close()
		r.poller.close()
	})
	return nil
}

func (r *Reactor) readSignals() {
	tick, stop, err := r.sig.drain()
	if err != nil {
		r.logger.Warn("reactor.signal.read_failed", "error", err)
	}
	if tick {
		r.tickDue = true
	}
	if stop {
		r.stopping = true
	}
}

func (r *Reactor) acceptAll() {
	for {
		fd, sa, err := unix.Accept4(r.lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EINTR, unix.ECONNABORTED:
				continue
			}
			r.logger.Error("reactor.accept.failed", "error", err)
			return
		}
		if r.Live() >= r.cfg.MaxConns {
			_, _ = unix.Write(fd, []byte(busyMessage))
			unix.Close(fd)
			r.observer.Rejected()
			r.logger.Warn("reactor.accept.busy", "live", r.Live(), "max", r.cfg.MaxConns)
			continue
		}
		c := protocol.NewConn(fd, sockaddrString(sa), r.opts)
		if err := r.poller.add(fd, protocol.InterestRead); err != nil {
			r.logger.Error("reactor.register.failed", "conn", c.ID(), "error", err)
			c.Close()
			continue
		}
		s := &session{r: r, conn: c}
		r.sessions[fd] = s
		c.SetTimer(r.timers.Add(time.Now().Add(r.cfg.IdleTimeout()), s.expire))
		r.live.Add(1)
		r.observer.Accepted()
		r.logger.Debug("reactor.accept", "conn", c.ID(), "peer", c.Peer(), "fd", fd)
	}
}

func (r *Reactor) dispatch(fd int, events uint32) {
	s, ok := r.sessions[fd]
	if !ok {
		return
	}
	c := s.conn
	if !r.claim(c) {
		r.logger.Error("reactor.ownership.violation", "conn", c.ID(), "owner", c.Owner().String())
		return
	}
	switch {
	case events&(unix.EPOLLHUP|unix.EPOLLERR) != 0:
		r.evict(s, api.KindTransport, errors.New("hangup"))
	case events&unix.EPOLLIN != 0:
		if err := c.Read(); err != nil {
			r.evict(s, api.KindOf(err), err)
			return
		}
		r.touch(s)
		r.enqueue(s)
	case events&unix.EPOLLOUT != 0:
		r.writable(s)
	case events&unix.EPOLLRDHUP != 0:
		r.evict(s, api.KindTransport, api.ErrPeerClosed)
	}
}

// claim makes the reactor the owner, taking over from a worker that has
// re-armed the socket but not yet recorded the hand-back.
func (r *Reactor) claim(c *protocol.Conn) bool {
	switch c.Owner() {
	case protocol.OwnerReactor:
		return true
	case protocol.OwnerArming:
		return c.Handoff(protocol.OwnerArming, protocol.OwnerReactor) || c.Owner() == protocol.OwnerReactor
	default:
		return false
	}
}

func (r *Reactor) writable(s *session) {
	c := s.conn
	size := c.ResponseSize()
	in, err := c.Write()
	if err != nil {
		r.evict(s, api.KindOf(err), err)
		return
	}
	if in != protocol.InterestWrite && size > 0 {
		r.observer.Responded(c.Status(), size)
		r.logger.Debug("reactor.response", "conn", c.ID(), "status", c.Status(), "size", humanize.Bytes(uint64(size)))
	}
	if in == protocol.InterestClose {
		r.evict(s, api.KindNone, nil)
		return
	}
	r.touch(s)
	if err := r.poller.arm(c.Fd(), in); err != nil {
		r.evict(s, api.KindTransport, err)
	}
}

// enqueue hands a connection with fresh input to the worker pool, or
// parks it for retry when the queue is full.
func (r *Reactor) enqueue(s *session) {
	c := s.conn
	c.SetOwner(protocol.OwnerQueued)
	if r.workers.Append(s) {
		return
	}
	c.SetOwner(protocol.OwnerReactor)
	r.deferred = append(r.deferred, s)
	r.observer.Backpressure()
	r.logger.Warn("reactor.queue.full", "conn", c.ID(), "deferred", len(r.deferred))
}

// retryDeferred re-offers parked connections in arrival order, stopping at
// the first refusal.
func (r *Reactor) retryDeferred() {
	i := 0
	for ; i < len(r.deferred); i++ {
		s := r.deferred[i]
		if s.closed {
			continue
		}
		s.conn.SetOwner(protocol.OwnerQueued)
		if !r.workers.Append(s) {
			s.conn.SetOwner(protocol.OwnerReactor)
			break
		}
	}
	if i == 0 {
		return
	}
	rest := copy(r.deferred, r.deferred[i:])
	clear(r.deferred[rest:])
	r.deferred = r.deferred[:rest]
}

func (r *Reactor) touch(s *session) {
	r.timers.Adjust(s.conn.Timer(), time.Now().Add(r.cfg.IdleTimeout()))
}

// evict closes a reactor-owned connection and drops its timer.
func (r *Reactor) evict(s *session, kind api.Kind, cause error) {
	if s.closed {
		return
	}
	s.closed = true
	c := s.conn
	fd := c.Fd()
	r.timers.Remove(c.Timer())
	delete(r.sessions, fd)
	if err := r.poller.del(fd); err != nil {
		r.logger.Debug("reactor.unregister.failed", "conn", c.ID(), "error", err)
	}
	if err := c.Close(); err != nil {
		r.logger.Debug("reactor.close.failed", "conn", c.ID(), "error", err)
	}
	r.live.Add(-1)
	r.observer.Closed(kind)
	if kind == api.KindNone {
		r.logger.Debug("reactor.conn.closed", "conn", c.ID(), "peer", c.Peer())
		return
	}
	r.logger.Debug("reactor.conn.evicted", "conn", c.ID(), "peer", c.Peer(), "reason", kind.String(), "error", cause)
}
