package authstate

import (
	"context"
	"sync"
	"sync/atomic"
)

// Listener observes published snapshots. Snapshots are values; a listener
// cannot mutate store state through them.
type Listener func(Snapshot)

// Registration is the owned handle for a listener. Release is idempotent.
type Registration struct {
	store    *Store
	id       uint64
	fn       Listener
	released atomic.Bool
	once     sync.Once
}

func (r *Registration) active() bool {
	return r != nil && !r.released.Load()
}

// Release deregisters the listener. A publish already in progress may still
// deliver to it once if Release races with it from another goroutine.
func (r *Registration) Release() {
	if r == nil {
		return
	}
	r.once.Do(func() {
		r.released.Store(true)
		if r.store != nil {
			r.store.removeListener(r.id)
		}
	})
}

// OnChange registers fn to run synchronously after every publish, in
// registration order. Listeners may be registered before Initialize so the
// first resolved state is not missed.
func (s *Store) OnChange(fn Listener) *Registration {
	if fn == nil {
		fn = func(Snapshot) {}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextListener++
	r := &Registration{store: s, id: s.nextListener, fn: fn}
	if s.closed {
		r.released.Store(true)
		return r
	}
	s.listeners = append(s.listeners, r)
	s.metrics.Inc(MetricListenerRegistered)
	return r
}

// Watch is OnChange scoped to ctx: the registration is released when ctx ends.
func (s *Store) Watch(ctx context.Context, fn Listener) *Registration {
	r := s.OnChange(fn)
	if ctx != nil && ctx.Done() != nil {
		context.AfterFunc(ctx, r.Release)
	}
	return r
}

// removeListener copies on write; commit may be iterating an older slice.
func (s *Store) removeListener(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]*Registration, 0, len(s.listeners))
	for _, r := range s.listeners {
		if r.id != id {
			next = append(next, r)
		}
	}
	if len(next) != len(s.listeners) {
		s.metrics.Inc(MetricListenerReleased)
	}
	s.listeners = next
}
