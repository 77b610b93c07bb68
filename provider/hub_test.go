package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authstate"
)

type recorder struct {
	mu     sync.Mutex
	events []authstate.AuthEvent
	ch     chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 64)}
}

func (r *recorder) handle(ev authstate.AuthEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) waitN(t *testing.T, n int) []authstate.AuthEvent {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ch:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]authstate.AuthEvent, len(r.events))
	copy(out, r.events)
	return out
}

func TestHubSubscribeDeliversInitialSession(t *testing.T) {
	hub := NewHub(HubConfig{})
	defer hub.Close()

	rec := newRecorder()
	sub, err := hub.Subscribe(rec.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	events := rec.waitN(t, 1)
	if events[0].Kind != authstate.EventInitialSession {
		t.Fatalf("expected initial_session, got %s", events[0].Kind)
	}
	if events[0].HasIdentity() {
		t.Fatal("expected no identity on initial session of a fresh hub")
	}
	if events[0].ID == "" {
		t.Fatal("expected event id")
	}
}

func TestHubInitialSessionCarriesCurrentIdentity(t *testing.T) {
	hub := NewHub(HubConfig{})
	defer hub.Close()

	if err := hub.SignIn(context.Background(), authstate.Identity{ID: "u-1", Email: "a@example.com"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	rec := newRecorder()
	sub, err := hub.Subscribe(rec.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	events := rec.waitN(t, 1)
	if !events[0].HasIdentity() || events[0].Identity.ID != "u-1" {
		t.Fatalf("expected initial session for u-1, got %+v", events[0])
	}
}

func TestHubDeliversInOrder(t *testing.T) {
	hub := NewHub(HubConfig{})
	defer hub.Close()

	rec := newRecorder()
	sub, err := hub.Subscribe(rec.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()

	ctx := context.Background()
	_ = hub.SignIn(ctx, authstate.Identity{ID: "u-1"})
	_ = hub.SignIn(ctx, authstate.Identity{ID: "u-2"})
	_ = hub.SignOut(ctx)

	events := rec.waitN(t, 4)
	want := []authstate.EventKind{
		authstate.EventInitialSession,
		authstate.EventSignedIn,
		authstate.EventSignedIn,
		authstate.EventSignedOut,
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Fatalf("event %d: expected %s, got %s", i, k, events[i].Kind)
		}
	}
	if events[2].Identity.ID != "u-2" {
		t.Fatalf("expected u-2 on third event, got %+v", events[2].Identity)
	}
	if _, ok := hub.Current(); ok {
		t.Fatal("expected no current identity after sign-out")
	}
}

func TestHubUnsubscribeIdempotent(t *testing.T) {
	hub := NewHub(HubConfig{})
	defer hub.Close()

	rec := newRecorder()
	sub, err := hub.Subscribe(rec.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	rec.waitN(t, 1)

	sub.Unsubscribe()
	sub.Unsubscribe()

	if got := hub.Subscribers(); got != 0 {
		t.Fatalf("expected 0 subscribers, got %d", got)
	}
	if err := hub.SignIn(context.Background(), authstate.Identity{ID: "u-1"}); err != nil {
		t.Fatalf("sign in after unsubscribe: %v", err)
	}

	select {
	case <-rec.ch:
		t.Fatal("expected no delivery after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubSignOutHookFailureEmitsNothing(t *testing.T) {
	boom := errors.New("network down")
	hub := NewHub(HubConfig{SignOut: func(context.Context) error { return boom }})
	defer hub.Close()

	_ = hub.SignIn(context.Background(), authstate.Identity{ID: "u-1"})

	rec := newRecorder()
	sub, err := hub.Subscribe(rec.handle)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	rec.waitN(t, 1)

	if err := hub.SignOut(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if _, ok := hub.Current(); !ok {
		t.Fatal("expected session to survive failed sign-out")
	}

	select {
	case <-rec.ch:
		t.Fatal("expected no event after failed sign-out")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubClosedRejectsUse(t *testing.T) {
	hub := NewHub(HubConfig{})
	hub.Close()

	if _, err := hub.Subscribe(func(authstate.AuthEvent) {}); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed from Subscribe, got %v", err)
	}
	if err := hub.Emit(context.Background(), authstate.EventSignedOut, nil); !errors.Is(err, ErrHubClosed) {
		t.Fatalf("expected ErrHubClosed from Emit, got %v", err)
	}
}
