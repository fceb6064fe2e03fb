package fifo

import "sync"

// Ring keeps the most recent values pushed to it, up to a fixed capacity.
// It is safe for concurrent use.
type Ring[T any] struct {
	mu sync.Mutex
	// disabled is set for rings that keep nothing.
	disabled bool
	q        Queue[T]
}

// NewRing returns a ring holding at most capacity values. A capacity of zero
// or less keeps nothing.
func NewRing[T any](capacity int) *Ring[T] {
	return &Ring[T]{disabled: capacity <= 0, q: MakeQueue[T](capacity)}
}

// Push appends v, evicting the oldest value when the ring is full. It returns
// the evicted value, if any.
func (r *Ring[T]) Push(v T) (evicted T, ok bool) {
	if r.disabled {
		return v, true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.PushBack(v)
}

func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.Len()
}

// Snapshot returns the retained values, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.q.AppendTo(make([]T, 0, r.q.Len()))
}
