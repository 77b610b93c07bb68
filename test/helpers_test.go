//go:build integration
// +build integration

package test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/profile"
	"github.com/MrEthical07/authstate/provider/redisbus"
	"github.com/MrEthical07/authstate/token"
)

const testSecret = "integration-secret-0123456789abcdef"

type stack struct {
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	issuer   *token.Issuer
	verifier *token.Verifier
	bus      *redisbus.Bus
	profiles *profile.RedisStore
	sink     *authstate.ChannelSink
}

func newStack(t *testing.T) *stack {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := token.Config{
		SigningMethod: token.MethodHS256,
		PrivateKey:    []byte(testSecret),
		Issuer:        "integration",
		TTL:           time.Hour,
	}
	verifier, err := token.NewVerifier(cfg)
	if err != nil {
		t.Fatalf("NewVerifier failed: %v", err)
	}
	issuer, err := token.NewIssuer(cfg)
	if err != nil {
		t.Fatalf("NewIssuer failed: %v", err)
	}
	bus, err := redisbus.New(rdb, verifier, redisbus.Config{Prefix: "it", Client: "web"})
	if err != nil {
		t.Fatalf("redisbus.New failed: %v", err)
	}

	s := &stack{
		mr:       mr,
		rdb:      rdb,
		issuer:   issuer,
		verifier: verifier,
		bus:      bus,
		profiles: profile.NewRedisStore(rdb, "it"),
		sink:     authstate.NewChannelSink(16),
	}
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return s
}

// open builds and initializes a store over the stack. repo overrides the
// profile backend when non-nil.
func (s *stack) open(t *testing.T, repo authstate.ProfileRepository) (*authstate.Store, *authstate.Facade) {
	t.Helper()

	if repo == nil {
		repo = s.profiles
	}
	store, err := authstate.New().
		WithProvider(s.bus).
		WithProfiles(repo).
		WithAuditSink(s.sink).
		WithAuditEnabled(true).
		WithMetricsEnabled(true).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if err := store.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	facade, err := authstate.NewFacade(store)
	if err != nil {
		t.Fatalf("NewFacade failed: %v", err)
	}
	return store, facade
}

func (s *stack) signIn(t *testing.T, id authstate.Identity) string {
	t.Helper()

	access, sid, err := s.issuer.Issue(id, "")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if err := s.bus.SignIn(context.Background(), access); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	return sid
}

func waitUntil(t *testing.T, store *authstate.Store, what string, cond func(authstate.Snapshot) bool) authstate.Snapshot {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := store.State()
		if cond(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	snap := store.State()
	t.Fatalf("timed out waiting for %s: status=%s loading=%s", what, snap.Status(), snap.Loading())
	return snap
}

func readyFor(id string) func(authstate.Snapshot) bool {
	return func(s authstate.Snapshot) bool {
		got, ok := s.Identity()
		return ok && got.ID == id && s.Status() == authstate.StatusAuthenticatedReady && s.Resolved()
	}
}

func signedOutResolved(s authstate.Snapshot) bool {
	return s.Status() == authstate.StatusUnauthenticated && s.Resolved()
}
