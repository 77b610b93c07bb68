// Package main runs a small HTTP app whose pages follow the session store.
//
// It stands in for the identity provider by issuing HS256 access tokens and
// publishing them on the Redis event bus; the store picks them up like any
// other provider event. Profiles live in Redis.
//
// Environment:
//
//	AUTHSTATE_REDIS_ADDR  Redis address; empty starts an embedded miniredis
//	AUTHSTATE_JWT_SECRET  HS256 secret (at least 32 bytes)
//	AUTHSTATE_LISTEN      listen address, default :8080
//	AUTHSTATE_LOG_LEVEL   debug, info, warn or error
//
// Endpoints:
//
//	POST /login           JSON {"user_id":"...","email":"..."}, 10 per minute per address
//	POST /signout
//	GET  /state           current snapshot as JSON
//	GET  /record          guarded page: profile JSON once ready
//	POST /record/credits  guarded, JSON {"credits":N}
//	POST /profile/refresh retry create-or-fetch
//	GET  /metrics         Prometheus text format
//
// Run:
//
//	go run ./cmd/authstate-demo
//	curl -i -X POST localhost:8080/login -d '{"user_id":"u-1","email":"a@example.com"}'
//	curl -i localhost:8080/record
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/internal/rate"
	"github.com/MrEthical07/authstate/logging"
	"github.com/MrEthical07/authstate/metrics/export/prometheus"
	"github.com/MrEthical07/authstate/middleware"
	"github.com/MrEthical07/authstate/profile"
	"github.com/MrEthical07/authstate/provider/redisbus"
	"github.com/MrEthical07/authstate/token"
)

const devSecret = "authstate-demo-secret-change-me-0000"

type settings struct {
	redisAddr string
	secret    []byte
	listen    string
	logLevel  logging.Level
}

func loadSettings() (settings, error) {
	s := settings{
		redisAddr: os.Getenv("AUTHSTATE_REDIS_ADDR"),
		secret:    []byte(os.Getenv("AUTHSTATE_JWT_SECRET")),
		listen:    os.Getenv("AUTHSTATE_LISTEN"),
		logLevel:  logging.LevelInfo,
	}
	if len(s.secret) == 0 {
		s.secret = []byte(devSecret)
	}
	if len(s.secret) < 32 {
		return s, errors.New("AUTHSTATE_JWT_SECRET must be at least 32 bytes")
	}
	if s.listen == "" {
		s.listen = ":8080"
	}
	if raw := os.Getenv("AUTHSTATE_LOG_LEVEL"); raw != "" {
		s.logLevel = logging.ParseLevel(raw)
	}
	return s, nil
}

func main() {
	cfg, err := loadSettings()
	if err != nil {
		logging.NewDefaultSlogLogger().Error("invalid settings", "error", err)
		os.Exit(2)
	}

	logger := logging.NewSlogLogger(logging.Config{
		Level:     cfg.logLevel,
		Format:    "json",
		Output:    os.Stderr,
		Component: "authstate-demo",
	})

	if err := run(cfg, logger); err != nil {
		logger.Error("demo stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg settings, logger *logging.SlogAdapter) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---------- infrastructure ----------
	addr := cfg.redisAddr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return err
		}
		defer mr.Close()
		addr = mr.Addr()
		logger.Warn("using embedded miniredis", "addr", addr)
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	defer rdb.Close()

	tokenCfg := token.Config{
		SigningMethod: token.MethodHS256,
		PrivateKey:    cfg.secret,
		Issuer:        "authstate-demo",
		Audience:      "authstate-demo",
		TTL:           time.Hour,
		Leeway:        5 * time.Second,
	}
	verifier, err := token.NewVerifier(tokenCfg)
	if err != nil {
		return err
	}
	issuer, err := token.NewIssuer(tokenCfg)
	if err != nil {
		return err
	}

	bus, err := redisbus.New(rdb, verifier, redisbus.Config{
		Prefix:        "as",
		Client:        "demo",
		MaxRefreshes:  30,
		RefreshWindow: time.Minute,
		Logger:        logger.With("subsystem", "redisbus"),
	})
	if err != nil {
		return err
	}
	profiles := profile.NewRedisStore(rdb, "as")
	loginLimiter := rate.New(rdb, rate.Config{Prefix: "as:rl:login", Max: 10, Window: time.Minute})

	// ---------- store + facade ----------
	store, err := authstate.New().
		WithProvider(bus).
		WithProfiles(profiles).
		WithLogger(logger).
		WithAuditSink(authstate.NewJSONWriterSink(os.Stdout)).
		WithAuditEnabled(true).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Initialize(ctx); err != nil {
		return err
	}
	facade, err := authstate.NewFacade(store)
	if err != nil {
		return err
	}

	// ---------- routes ----------
	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/login", loginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", loginHandler(issuer, bus, loginLimiter)).Methods(http.MethodPost)
	r.HandleFunc("/signout", signOutHandler(facade)).Methods(http.MethodPost)
	r.HandleFunc("/state", stateHandler(facade)).Methods(http.MethodGet)
	r.HandleFunc("/profile/refresh", refreshHandler(facade)).Methods(http.MethodPost)
	r.Handle("/metrics", prometheus.NewPrometheusExporter(store).Handler()).Methods(http.MethodGet)

	record := r.PathPrefix("/record").Subrouter()
	record.Use(middleware.RequireSession(facade, "/login"))
	record.HandleFunc("", recordHandler).Methods(http.MethodGet)
	record.HandleFunc("/credits", creditsHandler(facade)).Methods(http.MethodPost)

	srv := &http.Server{
		Addr:              cfg.listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func loginPage(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "sign in with POST /login"})
}

func loginHandler(issuer *token.Issuer, bus *redisbus.Bus, limiter *rate.Limiter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := limiter.Allow(r.Context(), clientAddr(r)); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				w.Header().Set("Retry-After", "60")
				http.Error(w, "too many sign-in attempts", http.StatusTooManyRequests)
				return
			}
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		var body struct {
			UserID string `json:"user_id"`
			Email  string `json:"email"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.UserID == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		access, sid, err := issuer.Issue(authstate.Identity{ID: body.UserID, Email: body.Email}, "")
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := bus.SignIn(r.Context(), access); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"access_token": access, "session_id": sid})
	}
}

func signOutHandler(facade *authstate.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := facade.SignOut(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func stateHandler(facade *authstate.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		snap, err := facade.Session()
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusOK, newStateView(snap))
	}
}

func refreshHandler(facade *authstate.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := facade.RefreshProfile(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		snap, _ := facade.Session()
		writeJSON(w, http.StatusOK, newStateView(snap))
	}
}

func recordHandler(w http.ResponseWriter, r *http.Request) {
	snap, ok := middleware.SnapshotFromContext(r.Context())
	if !ok {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, newStateView(snap))
}

func creditsHandler(facade *authstate.Facade) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Credits int64 `json:"credits"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := facade.UpdateCredits(body.Credits); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, authstate.ErrInvalidPatch) {
				status = http.StatusBadRequest
			}
			http.Error(w, err.Error(), status)
			return
		}
		snap, _ := facade.Session()
		writeJSON(w, http.StatusOK, newStateView(snap))
	}
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

type stateView struct {
	Status   string              `json:"status"`
	Loading  string              `json:"loading"`
	View     string              `json:"view"`
	Version  uint64              `json:"version"`
	Identity *authstate.Identity `json:"identity,omitempty"`
	Profile  *profileView        `json:"profile,omitempty"`
	Error    string              `json:"profile_error,omitempty"`
}

type profileView struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email,omitempty"`
	Credits            int64     `json:"credits"`
	Plan               string    `json:"current_plan"`
	HasPurchasedApp    bool      `json:"has_purchased_app"`
	CloudSyncEnabled   bool      `json:"cloud_sync_enabled"`
	AutoCloudSync      bool      `json:"auto_cloud_sync"`
	DeletionPolicyDays int       `json:"deletion_policy_days"`
	CreatedAt          time.Time `json:"created_at"`
}

func newStateView(snap authstate.Snapshot) stateView {
	out := stateView{
		Status:  snap.Status().String(),
		Loading: snap.Loading().String(),
		View:    authstate.Decide(snap).String(),
		Version: snap.Version(),
	}
	if id, ok := snap.Identity(); ok {
		out.Identity = &id
	}
	if p, ok := snap.Profile(); ok {
		out.Profile = &profileView{
			ID:                 p.ID,
			Email:              p.Email,
			Credits:            p.Credits,
			Plan:               string(p.Plan),
			HasPurchasedApp:    p.HasPurchasedApp,
			CloudSyncEnabled:   p.CloudSyncEnabled,
			AutoCloudSync:      p.AutoCloudSync,
			DeletionPolicyDays: p.DeletionPolicyDays,
			CreatedAt:          p.CreatedAt,
		}
	}
	if err := snap.ProfileErr(); err != nil {
		out.Error = err.Error()
	}
	return out
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
