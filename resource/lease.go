// File: resource/lease.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Scoped acquisition: a Lease is released on every exit path via defer.

package resource

import (
	"context"
	"sync"
)

// Lease holds one handle until Release.
type Lease struct {
	pool   *Pool
	handle Handle
	once   sync.Once
}

// Lease acquires a handle wrapped for deferred release.
func (p *Pool) Lease(ctx context.Context) (*Lease, error) {
	h, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &Lease{pool: p, handle: h}, nil
}

// Handle returns the leased handle, nil on a nil Lease.
func (l *Lease) Handle() Handle {
	if l == nil {
		return nil
	}
	return l.handle
}

// Release gives the handle back. Only the first call has an effect.
func (l *Lease) Release() {
	if l == nil {
		return
	}
	l.once.Do(func() {
		l.pool.Release(l.handle)
	})
}

// Do runs fn with a leased handle and releases it however fn returns.
func (p *Pool) Do(ctx context.Context, fn func(Handle) error) error {
	l, err := p.Lease(ctx)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn(l.Handle())
}
