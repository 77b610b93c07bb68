package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/provider"
)

type silentProvider struct{}

type noopSubscription struct{}

func (noopSubscription) Unsubscribe() {}

func (silentProvider) Subscribe(authstate.EventHandler) (authstate.Subscription, error) {
	return noopSubscription{}, nil
}

func (silentProvider) SignOut(context.Context) error { return nil }

func seedProfiles(fail bool) authstate.ProfileRepository {
	return authstate.ProfileRepositoryFunc(func(_ context.Context, id string, defaults authstate.Profile) (authstate.Profile, error) {
		if fail {
			return authstate.Profile{}, errors.New("backend down")
		}
		return defaults, nil
	})
}

func newFacade(t *testing.T, p authstate.Provider, profiles authstate.ProfileRepository, init bool) (*authstate.Facade, *authstate.Store) {
	t.Helper()
	store, err := authstate.New().WithProvider(p).WithProfiles(profiles).Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if init {
		if err := store.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}
	facade, err := authstate.NewFacade(store)
	if err != nil {
		t.Fatalf("facade: %v", err)
	}
	return facade, store
}

func waitResolved(t *testing.T, store *authstate.Store) authstate.Snapshot {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if snap := store.State(); snap.Resolved() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("store never resolved")
	return authstate.Snapshot{}
}

func serve(h http.Handler) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/record", nil))
	return rec
}

func okHandler(t *testing.T, seen *authstate.Snapshot) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, ok := SnapshotFromContext(r.Context())
		if !ok {
			t.Error("expected snapshot in context")
		}
		if seen != nil {
			*seen = snap
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestGuardUninitializedStore(t *testing.T) {
	facade, _ := newFacade(t, silentProvider{}, seedProfiles(false), false)

	rec := serve(RequireSession(facade, "")(okHandler(t, nil)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestGuardPendingNeverRedirects(t *testing.T) {
	facade, _ := newFacade(t, silentProvider{}, seedProfiles(false), true)

	rec := serve(RequireSession(facade, "/login")(okHandler(t, nil)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 while loading, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected Retry-After 1, got %q", rec.Header().Get("Retry-After"))
	}
}

func TestGuardRedirectsSignedOut(t *testing.T) {
	hub := provider.NewHub(provider.HubConfig{})
	defer hub.Close()
	facade, store := newFacade(t, hub, seedProfiles(false), true)
	waitResolved(t, store)

	rec := serve(RequireSession(facade, "/login")(okHandler(t, nil)))
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/login" {
		t.Fatalf("expected redirect to /login, got %q", loc)
	}
}

func TestGuardProfileLoading(t *testing.T) {
	hub := provider.NewHub(provider.HubConfig{})
	defer hub.Close()
	if err := hub.SignIn(context.Background(), authstate.Identity{ID: "u-1"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	facade, store := newFacade(t, hub, seedProfiles(true), true)
	if snap := waitResolved(t, store); snap.Status() != authstate.StatusAuthenticatedPendingProfile {
		t.Fatalf("expected pending profile, got %s", snap.Status())
	}

	rec := serve(RequireSession(facade, "/login")(okHandler(t, nil)))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	var seen authstate.Snapshot
	rec = serve(RequireIdentity(facade, "/login")(okHandler(t, &seen)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected identity guard to pass, got %d", rec.Code)
	}
	if _, ok := seen.Profile(); ok {
		t.Fatal("expected no profile on admitted snapshot")
	}
}

func TestGuardReady(t *testing.T) {
	hub := provider.NewHub(provider.HubConfig{})
	defer hub.Close()
	if err := hub.SignIn(context.Background(), authstate.Identity{ID: "u-1", Email: "a@example.com"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
	facade, store := newFacade(t, hub, seedProfiles(false), true)
	waitResolved(t, store)

	var seen authstate.Snapshot
	rec := serve(RequireSession(facade, "/login")(okHandler(t, &seen)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	p, ok := seen.Profile()
	if !ok || p.ID != "u-1" || p.Credits != 25 {
		t.Fatalf("expected seeded profile for u-1, got %+v ok=%v", p, ok)
	}
}

func TestGuardNilFacade(t *testing.T) {
	rec := serve(Guard(nil, Options{})(okHandler(t, nil)))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
