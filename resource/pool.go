// File: resource/pool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded handle pool with counting-semaphore admission.

package resource

import (
	"context"
	"fmt"
	"sync"

	"github.com/eapache/queue"
	"golang.org/x/sync/semaphore"
	"pkt.systems/pslog"
)

// Handle is one open connection to the external resource.
type Handle interface {
	ID() string
	Close() error
}

// Config carries the connection parameters and the requested capacity.
type Config struct {
	Endpoint string
	User     string
	Password string
	Database string
	Port     int
	Capacity int
}

// DefaultConfig mirrors the stock deployment: eight handles on port 3306.
func DefaultConfig() Config {
	return Config{
		Endpoint: "",
		Database: "webserver",
		Port:     3306,
		Capacity: 8,
	}
}

// Pool hands out handles to at most Capacity concurrent holders.
// Free()+InUse() == Capacity() holds whenever the mutex is not held.
type Pool struct {
	cfg    Config
	logger pslog.Logger
	sem    *semaphore.Weighted

	mu       sync.Mutex
	free     *queue.Queue
	leased   map[Handle]struct{}
	capacity int
	closed   bool
}

// New opens up to cfg.Capacity handles through d. Handles that fail to
// open are logged and skipped; the pool keeps the reduced capacity for
// its whole life. ErrNoCapacity is returned when nothing opened.
func New(ctx context.Context, cfg Config, d Dialer, logger pslog.Logger) (*Pool, error) {
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	if d == nil {
		return nil, fmt.Errorf("resource pool: nil dialer")
	}
	logger = logger.With("sys", "resource.pool")
	p := &Pool{
		cfg:    cfg,
		logger: logger,
		free:   queue.New(),
		leased: make(map[Handle]struct{}),
	}
	for slot := 0; slot < cfg.Capacity; slot++ {
		h, err := d.Dial(ctx, cfg, slot)
		if err != nil {
			logger.Warn("resource.dial.failed", "slot", slot, "endpoint", cfg.Endpoint, "error", err)
			continue
		}
		p.free.Add(h)
	}
	p.capacity = p.free.Length()
	if p.capacity == 0 {
		return nil, fmt.Errorf("resource pool %q: %w", cfg.Endpoint, ErrNoCapacity)
	}
	if p.capacity < cfg.Capacity {
		logger.Warn("resource.pool.degraded", "requested", cfg.Capacity, "capacity", p.capacity)
	}
	p.sem = semaphore.NewWeighted(int64(p.capacity))
	logger.Info("resource.pool.ready", "capacity", p.capacity, "database", cfg.Database)
	return p, nil
}

// Acquire blocks until a handle is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (Handle, error) {
	if p == nil || p.sem == nil {
		return nil, ErrNotInitialized
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return nil, ErrNotInitialized
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if p.closed || p.free.Length() == 0 {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, ErrNotInitialized
	}
	h := p.free.Remove().(Handle)
	p.leased[h] = struct{}{}
	p.mu.Unlock()
	return h, nil
}

// TryAcquire takes a handle only when one is immediately free.
func (p *Pool) TryAcquire() (Handle, bool) {
	if p == nil || p.sem == nil || !p.sem.TryAcquire(1) {
		return nil, false
	}
	p.mu.Lock()
	if p.closed || p.free.Length() == 0 {
		p.mu.Unlock()
		p.sem.Release(1)
		return nil, false
	}
	h := p.free.Remove().(Handle)
	p.leased[h] = struct{}{}
	p.mu.Unlock()
	return h, true
}

// Release returns h to the pool. A nil handle is ignored, and a handle
// released after Teardown is closed instead of pooled.
func (p *Pool) Release(h Handle) {
	if p == nil || h == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if err := h.Close(); err != nil {
			p.logger.Debug("resource.handle.close_failed", "handle", h.ID(), "error", err)
		}
		return
	}
	if _, ok := p.leased[h]; !ok {
		p.mu.Unlock()
		p.logger.Warn("resource.release.unknown", "handle", h.ID())
		return
	}
	delete(p.leased, h)
	p.free.Add(h)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Free reports the number of idle handles.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free.Length()
}

// InUse reports the number of leased handles.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.leased)
}

// Capacity reports the effective capacity fixed at construction.
func (p *Pool) Capacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.capacity
}

// Teardown closes every pooled handle and resets the counts to zero.
// Handles still leased are closed when they come back.
func (p *Pool) Teardown() {
	if p == nil {
		return
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	var handles []Handle
	for p.free.Length() > 0 {
		handles = append(handles, p.free.Remove().(Handle))
	}
	outstanding := len(p.leased)
	p.leased = make(map[Handle]struct{})
	p.capacity = 0
	p.mu.Unlock()

	for _, h := range handles {
		if err := h.Close(); err != nil {
			p.logger.Debug("resource.handle.close_failed", "handle", h.ID(), "error", err)
		}
	}
	p.logger.Info("resource.pool.teardown", "closed", len(handles), "outstanding", outstanding)
}
