package authstate

import (
	"context"
	"fmt"
	"time"
)

type result struct {
	identity *Identity
	profile  Profile
	err      error
	kind     string
	event    EventKind
}

// handleEvent is the provider callback. The sequence number is assigned
// before it returns, so sequence order is delivery order; the create-or-fetch
// then runs on its own goroutine and the provider is never blocked by it.
// Only apply touches shared state.
func (s *Store) handleEvent(ev AuthEvent) {
	s.metrics.Inc(MetricEventReceived)

	seq, ok := s.dispatch()
	if !ok {
		s.metrics.Inc(MetricEventDiscardedClosed)
		return
	}

	s.logger.Debug("authstate: auth event",
		"store_id", s.id,
		"event_id", ev.ID,
		"kind", string(ev.Kind),
		"seq", seq,
		"has_identity", ev.HasIdentity(),
	)

	if !ev.HasIdentity() {
		s.metrics.Inc(MetricSignedOutObserved)
		s.apply(seq, result{kind: "event", event: ev.Kind}, true)
		return
	}

	id := *ev.Identity
	s.metrics.Inc(MetricSignedInObserved)
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		profile, err := s.createOrFetch(s.fetchContext(), id)
		s.apply(seq, result{identity: &id, profile: profile, err: err, kind: "event", event: ev.Kind}, true)
	}()
}

// dispatch assigns the next sequence number, or reports false when the store
// is not accepting work.
func (s *Store) dispatch() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.initialized {
		return 0, false
	}
	s.dispatched++
	return s.dispatched, true
}

func (s *Store) fetchContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// createOrFetch asks the backend for id's profile, seeding defaults that are
// used only when no record exists. Failures come back as *ProfileFetchError
// and are reported here.
func (s *Store) createOrFetch(ctx context.Context, id Identity) (Profile, error) {
	start := time.Now()
	defaults := s.cfg.Profile.defaultsFor(id, s.now())

	p, err := s.profiles.CreateOrFetch(ctx, id.ID, defaults)
	s.metrics.Observe(MetricProfileFetchLatency, time.Since(start))

	if err == nil && p.ID != "" && p.ID != id.ID {
		err = fmt.Errorf("backend returned profile %q", p.ID)
	}
	if err == nil {
		if p.ID == "" {
			p.ID = id.ID
		}
		err = p.Validate()
	}
	if err != nil {
		ferr := &ProfileFetchError{IdentityID: id.ID, Err: err}
		s.metrics.Inc(MetricProfileFetchFailure)
		s.logger.Error("authstate: profile create-or-fetch failed", "store_id", s.id, "identity_id", id.ID, "error", err)
		s.report(ctx, auditEventProfileFetch, id.ID, "", ferr)
		return Profile{}, ferr
	}

	s.metrics.Inc(MetricProfileFetchSuccess)
	s.logger.Debug("authstate: profile ready", "store_id", s.id, "identity_id", id.ID, "credits", p.Credits)
	return p, nil
}

// apply writes res into the shared state unless a newer event or a sign-out
// has been applied since seq was dispatched. resolve marks this as a stream
// event eligible to flip the one-shot loading flag.
func (s *Store) apply(seq uint64, res result, resolve bool) {
	var stale, kept, resolvedNow bool

	_, published := s.commit(func(cur Snapshot) (Snapshot, bool) {
		if seq < s.applied {
			stale = true
			return cur, false
		}
		if !resolve {
			// refreshes only land on the identity they were issued for
			curID, ok := cur.Identity()
			if !ok || res.identity == nil || curID.ID != res.identity.ID {
				stale = true
				return cur, false
			}
			// a failed retry never downgrades a profile we already hold
			if res.err != nil && cur.Status() == StatusAuthenticatedReady {
				kept = true
				return cur, false
			}
		}
		if resolve {
			// refreshes never make older in-flight events stale
			s.applied = seq
		}

		var next Snapshot
		switch {
		case res.identity == nil:
			next = unauthenticated(cur.Loading())
		case res.err != nil:
			next = pendingProfile(*res.identity, cur.Loading(), res.err)
		default:
			next = ready(*res.identity, res.profile, cur.Loading())
		}

		if resolve && !s.resolvedOnce {
			s.resolvedOnce = true
			resolvedNow = true
			next = next.withLoading(LoadingResolved)
		}
		return next, true
	})

	switch {
	case kept:
	case stale:
		s.metrics.Inc(MetricEventStale)
		s.logger.Debug("authstate: dropped stale result", "store_id", s.id, "seq", seq, "kind", res.kind)
	case !published:
		s.metrics.Inc(MetricEventDiscardedClosed)
	default:
		s.metrics.Inc(MetricEventApplied)
		if resolvedNow {
			s.metrics.Inc(MetricInitialLoadResolved)
			s.logger.Info("authstate: initial auth state resolved", "store_id", s.id, "authenticated", res.identity != nil)
		}
	}
}
