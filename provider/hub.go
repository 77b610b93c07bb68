package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/authstate"
	"github.com/google/uuid"
)

// ErrHubClosed is returned by Emit and Subscribe after Close.
var ErrHubClosed = errors.New("provider hub closed")

const defaultBuffer = 64

// HubConfig tunes a Hub.
type HubConfig struct {
	// Buffer is the per-subscriber queue length. Emit blocks when a
	// subscriber's queue is full.
	Buffer int
	// SignOut, when set, runs before the hub clears its session. A non-nil
	// error aborts the sign-out and no event is emitted.
	SignOut func(ctx context.Context) error
	// Now overrides the event timestamp source.
	Now func() time.Time
}

// Hub is an in-process auth event stream.
type Hub struct {
	cfg HubConfig

	// emitMu keeps every subscriber's queue in the same order.
	emitMu sync.Mutex

	mu      sync.Mutex
	current *authstate.Identity
	subs    map[string]*subscription
	closed  bool
}

// NewHub creates a hub with no active session.
func NewHub(cfg HubConfig) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Hub{cfg: cfg, subs: make(map[string]*subscription)}
}

type subscription struct {
	id      string
	hub     *Hub
	handler authstate.EventHandler
	events  chan authstate.AuthEvent
	done    chan struct{}
	once    sync.Once
}

// Unsubscribe stops delivery. Safe to call any number of times.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s.id)
		s.hub.mu.Unlock()
		close(s.done)
	})
}

func (s *subscription) run() {
	for {
		select {
		case ev := <-s.events:
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(ev)
		case <-s.done:
			return
		}
	}
}

// Subscribe registers handler and queues an initial_session event carrying
// the hub's current identity (nil when signed out).
func (h *Hub) Subscribe(handler authstate.EventHandler) (authstate.Subscription, error) {
	if handler == nil {
		return nil, errors.New("nil event handler")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &subscription{
		id:      uuid.NewString(),
		hub:     h,
		handler: handler,
		events:  make(chan authstate.AuthEvent, h.cfg.Buffer),
		done:    make(chan struct{}),
	}
	sub.events <- h.eventLocked(authstate.EventInitialSession, h.current)
	h.subs[sub.id] = sub
	go sub.run()

	return sub, nil
}

// SignIn makes id the current session and emits signed_in.
func (h *Hub) SignIn(ctx context.Context, id authstate.Identity) error {
	h.mu.Lock()
	cp := id
	h.current = &cp
	h.mu.Unlock()
	return h.Emit(ctx, authstate.EventSignedIn, &cp)
}

// SignOut implements authstate.Provider. It runs the configured hook, clears
// the current session and emits signed_out.
func (h *Hub) SignOut(ctx context.Context) error {
	if h.cfg.SignOut != nil {
		if err := h.cfg.SignOut(ctx); err != nil {
			return err
		}
	}
	h.mu.Lock()
	h.current = nil
	h.mu.Unlock()
	return h.Emit(ctx, authstate.EventSignedOut, nil)
}

// Emit delivers an event of kind to every subscriber in order. id may be nil
// for "no session" events.
func (h *Hub) Emit(ctx context.Context, kind authstate.EventKind, id *authstate.Identity) error {
	if ctx == nil {
		ctx = context.Background()
	}

	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrHubClosed
	}
	ev := h.eventLocked(kind, id)
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		select {
		case s.events <- ev:
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Current returns the hub's session identity, if any.
func (h *Hub) Current() (authstate.Identity, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return authstate.Identity{}, false
	}
	return *h.current, true
}

// Subscribers returns the number of live subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close unsubscribes everyone and rejects further use.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	subs := make([]*subscription, 0, len(h.subs))
	for _, s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (h *Hub) eventLocked(kind authstate.EventKind, id *authstate.Identity) authstate.AuthEvent {
	ev := authstate.AuthEvent{
		ID:   uuid.NewString(),
		Kind: kind,
		At:   h.cfg.Now().UTC(),
	}
	if id != nil {
		cp := *id
		ev.Identity = &cp
	}
	return ev
}
