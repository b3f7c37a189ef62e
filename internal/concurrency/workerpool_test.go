package concurrency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/momentics/hioload-httpd/resource"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}

func newResources(t *testing.T, capacity int) *resource.Pool {
	t.Helper()
	cfg := resource.DefaultConfig()
	cfg.Capacity = capacity
	p, err := resource.New(context.Background(), cfg, resource.MemoryDialer{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(p.Teardown)
	return p
}

func TestInvalidConfig(t *testing.T) {
	if _, err := NewWorkerPool(Config{Workers: 0, MaxRequests: 1}, nil, nil); !errors.Is(err, ErrInvalidWorkerCount) {
		t.Fatalf("got %v", err)
	}
	if _, err := NewWorkerPool(Config{Workers: 1, MaxRequests: 0}, nil, nil); !errors.Is(err, ErrInvalidQueueSize) {
		t.Fatalf("got %v", err)
	}
}

func TestAppendBackpressure(t *testing.T) {
	p, err := NewWorkerPool(Config{Workers: 1, MaxRequests: 3}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	gate := make(chan struct{})
	var mu sync.Mutex
	var order []int
	job := func(n int) Job {
		return JobFunc(func(context.Context, resource.Handle) {
			if n == 0 {
				<-gate
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
		})
	}

	if !p.Append(job(0)) {
		t.Fatal("first append failed")
	}
	waitFor(t, func() bool { return p.Busy() == 1 })
	for n := 1; n <= 3; n++ {
		if !p.Append(job(n)) {
			t.Fatalf("append %d failed below capacity", n)
		}
	}
	if p.Append(job(99)) {
		t.Fatal("append beyond capacity succeeded")
	}
	if p.Len() != 3 {
		t.Fatalf("queue length %d after rejected append, want 3", p.Len())
	}
	if got := p.Stats()["rejected"]; got != 1 {
		t.Fatalf("rejected = %d", got)
	}
	close(gate)
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 4
	})
	for i, n := range order {
		if n != i {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
}

func TestJobsRunWithLeasedHandles(t *testing.T) {
	res := newResources(t, 2)
	p, err := NewWorkerPool(Config{Workers: 4, MaxRequests: 100}, res, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	var holders, peak, done, missing atomic.Int32
	for i := 0; i < 50; i++ {
		ok := p.Append(JobFunc(func(_ context.Context, h resource.Handle) {
			if h == nil {
				missing.Add(1)
			}
			n := holders.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			holders.Add(-1)
			done.Add(1)
		}))
		if !ok {
			t.Fatalf("append %d rejected", i)
		}
	}
	waitFor(t, func() bool { return done.Load() == 50 })
	if missing.Load() != 0 {
		t.Fatalf("%d jobs ran without a handle", missing.Load())
	}
	if peak.Load() > 2 {
		t.Fatalf("%d concurrent holders with two handles", peak.Load())
	}
	waitFor(t, func() bool { return res.Free() == 2 })
}

// Workers parked on an empty queue must observe Close; a stop flag alone
// would leave them blocked on the semaphore forever.
func TestCloseJoinsWorkersBlockedOnEmptyQueue(t *testing.T) {
	p, err := NewWorkerPool(Config{Workers: 4, MaxRequests: 8}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	closed := make(chan struct{})
	go func() {
		p.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not join idle workers")
	}
	if p.Append(JobFunc(func(context.Context, resource.Handle) {})) {
		t.Fatal("append accepted after Close")
	}
	p.Close()
}

func TestCloseCancelsRunningJob(t *testing.T) {
	res := newResources(t, 1)
	p, _ := NewWorkerPool(Config{Workers: 1, MaxRequests: 4}, res, nil)
	started := make(chan struct{})
	p.Append(JobFunc(func(ctx context.Context, _ resource.Handle) {
		close(started)
		<-ctx.Done()
	}))
	<-started
	p.Close()
	if res.Free() != 1 {
		t.Fatalf("handle not returned after Close, free = %d", res.Free())
	}
}

func TestPanickingJobReleasesHandle(t *testing.T) {
	res := newResources(t, 1)
	p, _ := NewWorkerPool(Config{Workers: 1, MaxRequests: 4}, res, nil)
	defer p.Close()
	p.Append(JobFunc(func(context.Context, resource.Handle) { panic("boom") }))
	ran := make(chan struct{})
	p.Append(JobFunc(func(_ context.Context, h resource.Handle) {
		if h != nil {
			close(ran)
		}
	}))
	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive panic")
	}
	if got := p.Stats()["panics"]; got != 1 {
		t.Fatalf("panics = %d", got)
	}
}
