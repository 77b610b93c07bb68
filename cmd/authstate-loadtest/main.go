// Command authstate-loadtest drives a store with a burst of auth events and
// concurrent profile create-or-fetch calls, then checks that the store
// settled on the last event and never published an inconsistent snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/profile"
	"github.com/MrEthical07/authstate/provider"
)

func main() {
	var (
		identities  = flag.Int("identities", 1000, "number of distinct identities")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "create-or-fetch calls in the profile phase")
		events      = flag.Int("events", 5000, "auth events emitted in the event phase")
		signOutPct  = flag.Int("signout-pct", 20, "share of events that carry no identity")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "as", "profile key prefix")
		timeout     = flag.Duration("settle-timeout", 30*time.Second, "how long to wait for the final state")
	)
	flag.Parse()

	if *identities <= 0 || *concurrency <= 0 || *ops <= 0 || *events <= 0 {
		fmt.Fprintln(os.Stderr, "identities, concurrency, ops, and events must be > 0")
		os.Exit(2)
	}
	if *signOutPct < 0 || *signOutPct > 100 {
		fmt.Fprintln(os.Stderr, "signout-pct must be within [0,100]")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{mr.Addr()}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", mr.Addr())
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	profiles := profile.NewRedisStore(client, *prefix)
	ids := make([]authstate.Identity, *identities)
	for i := range ids {
		ids[i] = authstate.Identity{ID: fmt.Sprintf("user-%d", i), Email: fmt.Sprintf("user-%d@example.com", i)}
	}

	fetchStats := runProfilePhase(ctx, profiles, ids, *ops, *concurrency)
	eventStats, report, err := runEventPhase(ctx, profiles, ids, *events, *concurrency, *signOutPct, *timeout)

	fmt.Println("---- results ----")
	printStats("create-or-fetch", fetchStats)
	printStats("emit", eventStats)
	fmt.Printf("store: published=%d applied=%d stale=%d fetch_ok=%d fetch_err=%d violations=%d\n",
		report.published,
		report.counters[authstate.MetricEventApplied],
		report.counters[authstate.MetricEventStale],
		report.counters[authstate.MetricProfileFetchSuccess],
		report.counters[authstate.MetricProfileFetchFailure],
		report.violations,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FAIL: %v\n", err)
		os.Exit(1)
	}
	if report.violations > 0 {
		fmt.Fprintf(os.Stderr, "FAIL: %d inconsistent snapshots published\n", report.violations)
		os.Exit(1)
	}
	fmt.Println("OK")
}

// runProfilePhase hammers create-or-fetch and checks every identity converged
// on a single record.
func runProfilePhase(ctx context.Context, profiles *profile.RedisStore, ids []authstate.Identity, ops, concurrency int) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
		seen      sync.Map
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				id := ids[r.Intn(len(ids))]
				defaults := seedFor(id, int64(worker))
				t0 := time.Now()
				p, err := profiles.CreateOrFetch(ctx, id.ID, defaults)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else if prev, loaded := seen.LoadOrStore(id.ID, p.Credits); loaded && prev.(int64) != p.Credits {
					// two callers saw different records for the same identity
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type eventReport struct {
	published  int64
	violations int64
	counters   map[authstate.MetricID]uint64
}

// runEventPhase emits random sign-in and sign-out events from concurrent
// workers through one hub, then a final sign-in, and waits for the store to
// settle on it.
func runEventPhase(ctx context.Context, profiles *profile.RedisStore, ids []authstate.Identity, events, concurrency, signOutPct int, timeout time.Duration) (phaseStats, eventReport, error) {
	var report eventReport

	hub := provider.NewHub(provider.HubConfig{Buffer: 1024})
	defer hub.Close()

	store, err := authstate.New().
		WithProvider(hub).
		WithProfiles(profiles).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		return phaseStats{}, report, err
	}
	defer store.Close()

	var lastVersion uint64
	reg := store.OnChange(func(s authstate.Snapshot) {
		atomic.AddInt64(&report.published, 1)
		if !consistent(s) || s.Version() <= lastVersion {
			atomic.AddInt64(&report.violations, 1)
		}
		lastVersion = s.Version()
	})
	defer reg.Release()

	if err := store.Initialize(ctx); err != nil {
		return phaseStats{}, report, err
	}

	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, events)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*104729))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= events {
					return
				}
				var emitErr error
				t0 := time.Now()
				if r.Intn(100) < signOutPct {
					emitErr = hub.Emit(ctx, authstate.EventSignedOut, nil)
				} else {
					id := ids[r.Intn(len(ids))]
					emitErr = hub.Emit(ctx, authstate.EventSignedIn, &id)
				}
				d := time.Since(t0)
				if emitErr != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	stats := computeStats(time.Since(start), latencies, failures)

	final := authstate.Identity{ID: "final-user", Email: "final@example.com"}
	if err := hub.SignIn(ctx, final); err != nil {
		return stats, report, err
	}

	settled := waitSettled(store, final.ID, timeout)
	store.Wait()
	report.counters = store.MetricsSnapshot().Counters
	if !settled {
		return stats, report, fmt.Errorf("store did not settle on %s: status=%s", final.ID, store.State().Status())
	}
	return stats, report, nil
}

func waitSettled(store *authstate.Store, id string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s := store.State()
		if got, ok := s.Identity(); ok && got.ID == id && s.Status() == authstate.StatusAuthenticatedReady && s.Resolved() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func consistent(s authstate.Snapshot) bool {
	id, hasID := s.Identity()
	p, hasProfile := s.Profile()
	switch s.Status() {
	case authstate.StatusUnauthenticated:
		return !hasID && !hasProfile
	case authstate.StatusAuthenticatedPendingProfile:
		return hasID && !hasProfile
	case authstate.StatusAuthenticatedReady:
		return hasID && hasProfile && p.ID == id.ID
	}
	return false
}

func seedFor(id authstate.Identity, credits int64) authstate.Profile {
	return authstate.Profile{
		ID:        id.ID,
		Email:     id.Email,
		Credits:   credits,
		Plan:      authstate.PlanFree,
		CreatedAt: time.Now().UTC(),
	}
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total, failures: failures}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
