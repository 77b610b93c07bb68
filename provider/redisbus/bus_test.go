package redisbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/token"
)

var secret = []byte("0123456789abcdef0123456789abcdef")

type fixture struct {
	bus    *Bus
	issuer *token.Issuer
	rdb    *redis.Client
	mr     *miniredis.Miniredis
}

func newFixture(t *testing.T) (*fixture, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := token.Config{SigningMethod: token.MethodHS256, PrivateKey: secret, TTL: time.Hour}
	verifier, err := token.NewVerifier(cfg)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	issuer, err := token.NewIssuer(cfg)
	if err != nil {
		t.Fatalf("new issuer: %v", err)
	}
	bus, err := New(rdb, verifier, Config{Prefix: "as", Client: "c-1"})
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}
	return &fixture{bus: bus, issuer: issuer, rdb: rdb, mr: mr}, func() {
		rdb.Close()
		mr.Close()
	}
}

func (f *fixture) issue(t *testing.T, id string) (string, string) {
	t.Helper()
	tok, sid, err := f.issuer.Issue(authstate.Identity{ID: id, Email: id + "@example.com"}, "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return tok, sid
}

func collect(t *testing.T, bus *Bus) (<-chan authstate.AuthEvent, authstate.Subscription) {
	t.Helper()
	ch := make(chan authstate.AuthEvent, 16)
	sub, err := bus.Subscribe(func(ev authstate.AuthEvent) { ch <- ev })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return ch, sub
}

func next(t *testing.T, ch <-chan authstate.AuthEvent) authstate.AuthEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return authstate.AuthEvent{}
	}
}

func TestSubscribeInitialSessionWithoutToken(t *testing.T) {
	f, done := newFixture(t)
	defer done()

	ch, sub := collect(t, f.bus)
	defer sub.Unsubscribe()

	ev := next(t, ch)
	if ev.Kind != authstate.EventInitialSession || ev.HasIdentity() {
		t.Fatalf("expected anonymous initial_session, got %+v", ev)
	}
}

func TestSignInThenSignOut(t *testing.T) {
	f, done := newFixture(t)
	defer done()
	ctx := context.Background()

	ch, sub := collect(t, f.bus)
	defer sub.Unsubscribe()
	next(t, ch)

	tok, sid := f.issue(t, "u-1")
	if err := f.bus.SignIn(ctx, tok); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	ev := next(t, ch)
	if ev.Kind != authstate.EventSignedIn || !ev.HasIdentity() || ev.Identity.ID != "u-1" {
		t.Fatalf("expected signed_in for u-1, got %+v", ev)
	}
	if !f.mr.Exists("as:session:" + sid) {
		t.Fatal("expected session marker")
	}

	if err := f.bus.SignOut(ctx); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	ev = next(t, ch)
	if ev.Kind != authstate.EventSignedOut || ev.HasIdentity() {
		t.Fatalf("expected anonymous signed_out, got %+v", ev)
	}
	if f.mr.Exists("as:session:"+sid) || f.mr.Exists("as:client:c-1:token") {
		t.Fatal("expected session and token keys removed")
	}
}

func TestSubscribeInitialSessionFromStoredToken(t *testing.T) {
	f, done := newFixture(t)
	defer done()

	tok, _ := f.issue(t, "u-1")
	if err := f.bus.SignIn(context.Background(), tok); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	ch, sub := collect(t, f.bus)
	defer sub.Unsubscribe()

	ev := next(t, ch)
	if ev.Kind != authstate.EventInitialSession || !ev.HasIdentity() || ev.Identity.ID != "u-1" {
		t.Fatalf("expected initial_session for u-1, got %+v", ev)
	}
}

func TestRevokedSessionResolvesWithoutIdentity(t *testing.T) {
	f, done := newFixture(t)
	defer done()
	ctx := context.Background()

	tok, sid := f.issue(t, "u-1")
	if err := f.bus.SignIn(ctx, tok); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if err := f.bus.Revoke(ctx, sid); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	ch, sub := collect(t, f.bus)
	defer sub.Unsubscribe()

	if ev := next(t, ch); ev.HasIdentity() {
		t.Fatalf("expected revoked session to resolve anonymous, got %+v", ev)
	}
}

func TestForgedEnvelopeIsNotTrusted(t *testing.T) {
	f, done := newFixture(t)
	defer done()

	ch, sub := collect(t, f.bus)
	defer sub.Unsubscribe()
	next(t, ch)

	forged := `{"id":"x","kind":"signed_in","access_token":"not-a-jwt","at":"2026-01-01T00:00:00Z"}`
	if err := f.rdb.Publish(context.Background(), f.bus.Channel(), forged).Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev := next(t, ch)
	if ev.Kind != authstate.EventSignedIn || ev.HasIdentity() {
		t.Fatalf("expected forged token to carry no identity, got %+v", ev)
	}

	if err := f.rdb.Publish(context.Background(), f.bus.Channel(), "{").Err(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case ev := <-ch:
		t.Fatalf("expected malformed envelope to be dropped, got %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSignInRejectsInvalidToken(t *testing.T) {
	f, done := newFixture(t)
	defer done()

	if err := f.bus.SignIn(context.Background(), "garbage"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	f, done := newFixture(t)
	defer done()

	ch, sub := collect(t, f.bus)
	next(t, ch)

	sub.Unsubscribe()
	sub.Unsubscribe()

	select {
	case <-sub.(*subscription).done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivery goroutine to exit")
	}
}

func TestNewValidation(t *testing.T) {
	f, done := newFixture(t)
	defer done()

	if _, err := New(nil, f.bus.verifier, Config{Client: "c"}); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := New(f.rdb, nil, Config{Client: "c"}); err == nil {
		t.Fatal("expected error for nil verifier")
	}
	if _, err := New(f.rdb, f.bus.verifier, Config{}); err == nil {
		t.Fatal("expected error for empty client id")
	}
}

func TestRefreshTokenBudget(t *testing.T) {
	f, cleanup := newFixture(t)
	defer cleanup()

	verifier, err := token.NewVerifier(token.Config{SigningMethod: token.MethodHS256, PrivateKey: secret})
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	bus, err := New(f.rdb, verifier, Config{Prefix: "as", Client: "c-1", MaxRefreshes: 2, RefreshWindow: time.Minute})
	if err != nil {
		t.Fatalf("new bus: %v", err)
	}

	ctx := context.Background()
	tok, sid := f.issue(t, "u-1")
	if err := bus.SignIn(ctx, tok); err != nil {
		t.Fatalf("sign in: %v", err)
	}

	for i := 0; i < 2; i++ {
		refreshed, _, err := f.issuer.Issue(authstate.Identity{ID: "u-1"}, sid)
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if err := bus.RefreshToken(ctx, refreshed); err != nil {
			t.Fatalf("refresh %d: %v", i+1, err)
		}
	}

	refreshed, _, _ := f.issuer.Issue(authstate.Identity{ID: "u-1"}, sid)
	if err := bus.RefreshToken(ctx, refreshed); !errors.Is(err, ErrRefreshLimited) {
		t.Fatalf("expected ErrRefreshLimited, got %v", err)
	}

	// sign-in is never throttled
	if err := bus.SignIn(ctx, refreshed); err != nil {
		t.Fatalf("sign in after budget: %v", err)
	}

	f.mr.FastForward(time.Minute + time.Second)
	if err := bus.RefreshToken(ctx, refreshed); err != nil {
		t.Fatalf("refresh after window: %v", err)
	}
}
