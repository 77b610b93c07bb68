package authstate

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeProvider struct {
	mu           sync.Mutex
	handler      EventHandler
	subscribes   int
	unsubscribes int
	subscribeErr error
	signOutErr   error
	onSignOut    func()
	initial      *AuthEvent
}

type fakeSubscription struct {
	p    *fakeProvider
	once sync.Once
}

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() {
		s.p.mu.Lock()
		s.p.unsubscribes++
		s.p.mu.Unlock()
	})
}

func (p *fakeProvider) Subscribe(h EventHandler) (Subscription, error) {
	p.mu.Lock()
	if p.subscribeErr != nil {
		p.mu.Unlock()
		return nil, p.subscribeErr
	}
	p.subscribes++
	p.handler = h
	initial := p.initial
	p.mu.Unlock()

	if initial != nil {
		h(*initial)
	}
	return &fakeSubscription{p: p}, nil
}

func (p *fakeProvider) SignOut(context.Context) error {
	p.mu.Lock()
	err := p.signOutErr
	hook := p.onSignOut
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook()
	}
	return nil
}

// emit delivers ev through the subscribed handler, even after Unsubscribe.
func (p *fakeProvider) emit(ev AuthEvent) {
	p.mu.Lock()
	h := p.handler
	p.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (p *fakeProvider) counts() (int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscribes, p.unsubscribes
}

// gatedProfiles is an in-memory backend whose calls can be held per identity.
type gatedProfiles struct {
	mu      sync.Mutex
	records map[string]Profile
	gates   map[string]chan struct{}
	errs    map[string]error
	calls   int
}

func newGatedProfiles() *gatedProfiles {
	return &gatedProfiles{
		records: make(map[string]Profile),
		gates:   make(map[string]chan struct{}),
		errs:    make(map[string]error),
	}
}

func (g *gatedProfiles) CreateOrFetch(ctx context.Context, id string, defaults Profile) (Profile, error) {
	g.mu.Lock()
	g.calls++
	gate := g.gates[id]
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Profile{}, ctx.Err()
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.errs[id]; err != nil {
		return Profile{}, err
	}
	if p, ok := g.records[id]; ok {
		return p, nil
	}
	g.records[id] = defaults
	return defaults, nil
}

// hold blocks create-or-fetch for id until the returned func is called.
func (g *gatedProfiles) hold(id string) func() {
	ch := make(chan struct{})
	g.mu.Lock()
	g.gates[id] = ch
	g.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

func (g *gatedProfiles) fail(id string, err error) {
	g.mu.Lock()
	g.errs[id] = err
	g.mu.Unlock()
}

func (g *gatedProfiles) put(p Profile) {
	g.mu.Lock()
	g.records[p.ID] = p
	g.mu.Unlock()
}

func (g *gatedProfiles) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func newTestStore(t *testing.T, p Provider, repo ProfileRepository, configure ...func(*Builder)) *Store {
	t.Helper()
	b := New().WithProvider(p).WithProfiles(repo).WithMetricsEnabled(true)
	for _, fn := range configure {
		fn(b)
	}
	s, err := b.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func initStore(t *testing.T, s *Store) {
	t.Helper()
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
}

func signedIn(id string) AuthEvent {
	return AuthEvent{ID: "ev-" + id, Kind: EventSignedIn, Identity: &Identity{ID: id, Email: id + "@example.com"}, At: time.Now()}
}

func signedOut() AuthEvent {
	return AuthEvent{ID: "ev-out", Kind: EventSignedOut, At: time.Now()}
}

func waitFor(t *testing.T, s *Store, what string, cond func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		snap := s.State()
		if cond(snap) {
			return snap
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s; last state %s/%s", what, snap.Status(), snap.Loading())
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func readyFor(id string) func(Snapshot) bool {
	return func(s Snapshot) bool {
		got, ok := s.Identity()
		_, hasProfile := s.Profile()
		return ok && got.ID == id && hasProfile
	}
}

// checkInvariants asserts the structural guarantees every snapshot must hold.
func checkInvariants(t *testing.T, s Snapshot) {
	t.Helper()
	id, hasID := s.Identity()
	p, hasProfile := s.Profile()
	if hasProfile && !hasID {
		t.Fatal("profile present without identity")
	}
	if hasProfile && p.ID != id.ID {
		t.Fatalf("profile %q does not match identity %q", p.ID, id.ID)
	}
}
