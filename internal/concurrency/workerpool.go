// File: internal/concurrency/workerpool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// WorkerPool: counting semaphore plus mutex-guarded FIFO.

package concurrency

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"pkt.systems/pslog"

	"github.com/momentics/hioload-httpd/resource"
)

// Job is one queued unit of work.
type Job interface {
	Run(ctx context.Context, h resource.Handle)
}

// JobFunc adapts a function to Job.
type JobFunc func(ctx context.Context, h resource.Handle)

// Run calls f.
func (f JobFunc) Run(ctx context.Context, h resource.Handle) { f(ctx, h) }

// Leaser hands out scoped resource handles; *resource.Pool implements it.
type Leaser interface {
	Lease(ctx context.Context) (*resource.Lease, error)
}

// Config sizes the pool.
type Config struct {
	Workers     int
	MaxRequests int
}

// DefaultConfig returns eight workers and a thousand queued requests.
func DefaultConfig() Config {
	return Config{Workers: 8, MaxRequests: 1000}
}

// WorkerPool runs queued jobs on a fixed set of goroutines.
type WorkerPool struct {
	cfg    Config
	leaser Leaser
	logger pslog.Logger

	mu    sync.Mutex
	queue *queue.Queue
	sem   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	closed atomic.Bool
	wg     sync.WaitGroup

	processed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
	busy      atomic.Int64
}

// NewWorkerPool starts cfg.Workers goroutines. leaser may be nil, in which
// case jobs run without a handle.
func NewWorkerPool(cfg Config, leaser Leaser, logger pslog.Logger) (*WorkerPool, error) {
	if cfg.Workers <= 0 {
		return nil, ErrInvalidWorkerCount
	}
	if cfg.MaxRequests <= 0 {
		return nil, ErrInvalidQueueSize
	}
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		cfg:    cfg,
		leaser: leaser,
		logger: logger.With("sys", "worker.pool"),
		queue:  queue.New(),
		// tokens never exceed queued jobs, so sends cannot block
		sem:    make(chan struct{}, cfg.MaxRequests),
		ctx:    ctx,
		cancel: cancel,
		stopCh: make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	p.logger.Info("worker.pool.started", "workers", cfg.Workers, "max_requests", cfg.MaxRequests)
	return p, nil
}

// Append queues job without blocking. It returns false when the queue is
// full or the pool is closed; the caller keeps ownership of job then.
func (p *WorkerPool) Append(job Job) bool {
	if p.closed.Load() {
		return false
	}
	p.mu.Lock()
	if p.queue.Length() >= p.cfg.MaxRequests {
		p.mu.Unlock()
		p.rejected.Add(1)
		return false
	}
	p.queue.Add(job)
	p.mu.Unlock()
	p.sem <- struct{}{}
	return true
}

// Len returns the number of queued jobs.
func (p *WorkerPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Length()
}

// Capacity returns the queue bound.
func (p *WorkerPool) Capacity() int { return p.cfg.MaxRequests }

// Workers returns the number of worker goroutines.
func (p *WorkerPool) Workers() int { return p.cfg.Workers }

// Busy returns the number of workers currently running a job.
func (p *WorkerPool) Busy() int { return int(p.busy.Load()) }

// Stats returns basic pool counters.
func (p *WorkerPool) Stats() map[string]int64 {
	return map[string]int64{
		"queued":    int64(p.Len()),
		"busy":      p.busy.Load(),
		"processed": p.processed.Load(),
		"rejected":  p.rejected.Load(),
		"panics":    p.panics.Load(),
		"workers":   int64(p.cfg.Workers),
	}
}

// Close stops the workers and waits for them to exit. Jobs still queued
// are dropped; a job already running finishes, with a cancelled context.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.stopCh)
	p.cancel()
	p.wg.Wait()
	p.mu.Lock()
	dropped := p.queue.Length()
	for p.queue.Length() > 0 {
		p.queue.Remove()
	}
	p.mu.Unlock()
	p.logger.Info("worker.pool.stopped", "processed", p.processed.Load(), "dropped", dropped)
}

func (p *WorkerPool) run(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.sem:
		}
		p.mu.Lock()
		if p.queue.Length() == 0 {
			p.mu.Unlock()
			continue
		}
		job := p.queue.Remove().(Job)
		p.mu.Unlock()
		p.execute(id, job)
	}
}

// execute runs job under a scoped lease, surviving panics.
func (p *WorkerPool) execute(id int, job Job) {
	p.busy.Add(1)
	defer p.busy.Add(-1)

	var lease *resource.Lease
	if p.leaser != nil {
		l, err := p.leaser.Lease(p.ctx)
		if err != nil {
			p.logger.Warn("worker.lease.failed", "worker", id, "error", err)
		} else {
			lease = l
		}
	}
	defer lease.Release()
	defer func() {
		if r := recover(); r != nil {
			p.panics.Add(1)
			p.logger.Error("worker.job.panic", "worker", id, "panic", r)
		}
	}()
	job.Run(p.ctx, lease.Handle())
	p.processed.Add(1)
}
