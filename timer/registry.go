// File: timer/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Package timer keeps per-connection idle deadlines in a list sorted by
// expiry. Entries live in an arena and are addressed by generation-checked
// handles, so a handle kept by a closed connection can never reach a slot
// reused by a newer one. The registry is owned by a single goroutine and
// takes no locks.

package timer

import "time"

const none = -1

// Handle addresses one registry entry. The zero Handle is never valid.
type Handle struct {
	idx int
	gen uint32
}

// Valid reports whether h was ever issued by a registry.
func (h Handle) Valid() bool { return h.gen != 0 }

type entry struct {
	expiry time.Time
	evict  func()
	prev   int
	next   int
	gen    uint32
	live   bool
}

// Registry is a doubly linked list of entries ascending by expiry.
type Registry struct {
	entries []entry
	free    []int
	head    int
	tail    int
	n       int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{head: none, tail: none}
}

// Len returns the number of live entries.
func (r *Registry) Len() int { return r.n }

// Add inserts an entry that runs evict once expiry has passed.
func (r *Registry) Add(expiry time.Time, evict func()) Handle {
	idx := r.alloc()
	e := &r.entries[idx]
	e.expiry = expiry
	e.evict = evict
	e.live = true
	r.insert(idx, r.head)
	r.n++
	return Handle{idx: idx, gen: e.gen}
}

// Remove unlinks h without running its action. It reports false for a
// stale or unknown handle.
func (r *Registry) Remove(h Handle) bool {
	if !r.valid(h) {
		return false
	}
	r.unlink(h.idx)
	r.release(h.idx)
	r.n--
	return true
}

// Adjust moves h to a later expiry. The common case of a deadline that
// still sorts before its successor costs nothing; otherwise the entry is
// re-inserted scanning forward from its old successor. An earlier expiry
// is accepted but pays for a scan from the head.
func (r *Registry) Adjust(h Handle, expiry time.Time) bool {
	if !r.valid(h) {
		return false
	}
	e := &r.entries[h.idx]
	old := e.expiry
	e.expiry = expiry
	if expiry.Before(old) {
		r.unlink(h.idx)
		r.insert(h.idx, r.head)
		return true
	}
	next := e.next
	if next == none || !expiry.After(r.entries[next].expiry) {
		return true
	}
	r.unlink(h.idx)
	r.insert(h.idx, next)
	return true
}

// Expiry returns the deadline of h.
func (r *Registry) Expiry(h Handle) (time.Time, bool) {
	if !r.valid(h) {
		return time.Time{}, false
	}
	return r.entries[h.idx].expiry, true
}

// Next returns the earliest deadline, false when empty.
func (r *Registry) Next() (time.Time, bool) {
	if r.head == none {
		return time.Time{}, false
	}
	return r.entries[r.head].expiry, true
}

// Sweep removes every entry whose expiry is not after now, in order, and
// runs its action after unlinking it. Actions may add new entries. It
// returns the number of entries removed.
func (r *Registry) Sweep(now time.Time) int {
	count := 0
	for r.head != none && !r.entries[r.head].expiry.After(now) {
		idx := r.head
		evict := r.entries[idx].evict
		r.unlink(idx)
		r.release(idx)
		r.n--
		count++
		if evict != nil {
			evict()
		}
	}
	return count
}

func (r *Registry) valid(h Handle) bool {
	return h.gen != 0 && h.idx >= 0 && h.idx < len(r.entries) &&
		r.entries[h.idx].live && r.entries[h.idx].gen == h.gen
}

func (r *Registry) alloc() int {
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		r.entries[idx].gen++
		return idx
	}
	r.entries = append(r.entries, entry{gen: 1, prev: none, next: none})
	return len(r.entries) - 1
}

func (r *Registry) release(idx int) {
	e := &r.entries[idx]
	e.live = false
	e.evict = nil
	e.prev, e.next = none, none
	r.free = append(r.free, idx)
}

// insert links idx before the first entry after from whose expiry is
// strictly greater, appending at the tail when there is none.
func (r *Registry) insert(idx, from int) {
	e := &r.entries[idx]
	switch {
	case r.head == none:
		e.prev, e.next = none, none
		r.head, r.tail = idx, idx
		return
	case e.expiry.Before(r.entries[r.head].expiry):
		e.prev, e.next = none, r.head
		r.entries[r.head].prev = idx
		r.head = idx
		return
	case !e.expiry.Before(r.entries[r.tail].expiry):
		e.prev, e.next = r.tail, none
		r.entries[r.tail].next = idx
		r.tail = idx
		return
	}
	cur := from
	if cur == none {
		cur = r.head
	}
	for cur != none && !r.entries[cur].expiry.After(e.expiry) {
		cur = r.entries[cur].next
	}
	// the tail check above guarantees cur != none here
	prev := r.entries[cur].prev
	e.prev, e.next = prev, cur
	r.entries[cur].prev = idx
	if prev == none {
		r.head = idx
	} else {
		r.entries[prev].next = idx
	}
}

func (r *Registry) unlink(idx int) {
	e := &r.entries[idx]
	if e.prev == none {
		r.head = e.next
	} else {
		r.entries[e.prev].next = e.next
	}
	if e.next == none {
		r.tail = e.prev
	} else {
		r.entries[e.next].prev = e.prev
	}
	e.prev, e.next = none, none
}
