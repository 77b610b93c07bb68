package authstate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	internalaudit "github.com/MrEthical07/authstate/internal/audit"
	"github.com/MrEthical07/authstate/logging"
)

// Store is the single source of truth for the session. It is safe for
// concurrent use once built; construct it with [New] and [Builder.Build].
type Store struct {
	id       string
	cfg      Config
	provider Provider
	profiles ProfileRepository
	logger   logging.Logger
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	now      func() time.Time

	state atomic.Pointer[Snapshot]

	// publishMu serializes mutate+notify so listeners see publishes in order.
	// Lock order: publishMu, then mu.
	publishMu sync.Mutex

	mu           sync.Mutex
	initialized  bool
	closed       bool
	sub          Subscription
	stopScope    func() bool
	baseCtx      context.Context
	dispatched   uint64
	applied      uint64
	resolvedOnce bool
	version      uint64
	listeners    []*Registration
	nextListener uint64

	inflight  sync.WaitGroup
	closeOnce sync.Once
}

// ID returns the store's instance identifier, attached to every report.
func (s *Store) ID() string {
	return s.id
}

// Initialize opens the single subscription to the provider's event stream.
// A second call returns ErrAlreadyInitialized and leaves the first
// subscription untouched. The subscription is released by Close, or when ctx
// is done, whichever happens first. ctx cancellation does not abort in-flight
// create-or-fetch calls.
func (s *Store) Initialize(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	if s.initialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.initialized = true
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	// Subscribe outside the lock: providers may deliver the initial event
	// synchronously from inside Subscribe.
	sub, err := s.provider.Subscribe(s.handleEvent)
	if err != nil {
		s.mu.Lock()
		s.initialized = false
		s.mu.Unlock()
		return fmt.Errorf("subscribe to auth events: %w", err)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return ErrStoreClosed
	}
	s.sub = sub
	if ctx.Done() != nil {
		s.stopScope = context.AfterFunc(ctx, func() { _ = s.Close() })
	}
	s.mu.Unlock()

	s.logger.Debug("authstate: subscription opened", "store_id", s.id)
	return nil
}

// Close ends the store scope: the subscription is released exactly once and
// results of in-flight fetches are discarded. Later calls are no-ops.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		sub := s.sub
		s.sub = nil
		stop := s.stopScope
		s.stopScope = nil
		s.mu.Unlock()

		if stop != nil {
			stop()
		}
		if sub != nil {
			sub.Unsubscribe()
		}
		s.audit.Close()
		s.logger.Debug("authstate: store closed", "store_id", s.id)
	})
	return nil
}

// State returns the current snapshot. It never blocks and has no side effects.
func (s *Store) State() Snapshot {
	return *s.state.Load()
}

// SignOut re-enters the loading phase and asks the provider to end the
// session. The provider's next event settles the state to signed-out and
// resolved. A provider failure is reported and returned as *SignOutError; the
// state then stays pending until some event arrives.
func (s *Store) SignOut(ctx context.Context) error {
	if err := s.checkActive(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	s.metrics.Inc(MetricSignOutRequested)

	s.commit(func(cur Snapshot) (Snapshot, bool) {
		// Invalidate every fetch dispatched before this point and re-arm the
		// one-shot resolve.
		s.dispatched++
		s.applied = s.dispatched
		s.resolvedOnce = false
		return cur.withLoading(LoadingPending), true
	})

	if err := s.provider.SignOut(ctx); err != nil {
		serr := &SignOutError{Err: err}
		s.metrics.Inc(MetricSignOutFailure)
		s.logger.Warn("authstate: sign-out failed", "store_id", s.id, "error", err)
		s.report(ctx, auditEventSignOut, "", "", serr)
		return serr
	}

	s.report(ctx, auditEventSignOut, "", "", nil)
	return nil
}

// UpdateProfile merges patch into the current profile locally, without a
// backend round-trip. It is a no-op when no profile is present.
func (s *Store) UpdateProfile(patch ProfilePatch) error {
	if err := s.checkActive(); err != nil {
		return err
	}
	if err := patch.validate(); err != nil {
		return err
	}
	if patch.Empty() {
		return nil
	}

	_, applied := s.commit(func(cur Snapshot) (Snapshot, bool) {
		p, ok := cur.Profile()
		if !ok {
			return cur, false
		}
		return cur.withProfile(patch.Apply(p)), true
	})
	if applied {
		s.metrics.Inc(MetricProfilePatchApplied)
	} else {
		s.metrics.Inc(MetricProfilePatchIgnored)
	}
	return nil
}

// UpdateCredits sets the local credit balance.
func (s *Store) UpdateCredits(credits int64) error {
	return s.UpdateProfile(ProfilePatch{Credits: &credits})
}

// RefreshProfile re-runs create-or-fetch for the current identity, e.g. after
// a ProfileFetchError. It is a no-op when signed out. The result is dropped if
// a newer event or a sign-out is applied while the fetch is in flight.
func (s *Store) RefreshProfile(ctx context.Context) error {
	if err := s.checkActive(); err != nil {
		return err
	}
	id, ok := s.State().Identity()
	if !ok {
		return nil
	}

	seq, ok := s.dispatch()
	if !ok {
		return ErrStoreClosed
	}
	if ctx == nil {
		ctx = s.fetchContext()
	}

	profile, err := s.createOrFetch(ctx, id)
	s.apply(seq, result{identity: &id, profile: profile, err: err, kind: "refresh"}, false)
	return err
}

// Wait blocks until every create-or-fetch started by a stream event has been
// applied or discarded. It is meant for shutdown paths and tests.
func (s *Store) Wait() {
	s.inflight.Wait()
}

// MetricsSnapshot returns a copy of the store's counters.
func (s *Store) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

// AuditDropped returns the number of reports dropped by backpressure.
func (s *Store) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

func (s *Store) checkActive() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrStoreClosed
	case !s.initialized:
		return ErrNotInitialized
	}
	return nil
}

// commit applies mutate to the current snapshot and, when it reports a
// change, publishes the result to every active listener before returning.
// mutate runs with s.mu held and may update the sequencing fields.
func (s *Store) commit(mutate func(cur Snapshot) (Snapshot, bool)) (Snapshot, bool) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	s.mu.Lock()
	cur := *s.state.Load()
	if s.closed {
		s.mu.Unlock()
		return cur, false
	}
	next, changed := mutate(cur)
	if !changed {
		s.mu.Unlock()
		return cur, false
	}
	s.version++
	next.version = s.version
	s.state.Store(&next)
	listeners := s.listeners
	s.mu.Unlock()

	for _, r := range listeners {
		if r.active() {
			r.fn(next)
		}
	}
	return next, true
}
