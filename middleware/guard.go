package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/MrEthical07/authstate"
)

type snapshotContextKey struct{}

// SnapshotFromContext returns the snapshot a guard admitted the request with.
func SnapshotFromContext(ctx context.Context) (authstate.Snapshot, bool) {
	snap, ok := ctx.Value(snapshotContextKey{}).(authstate.Snapshot)
	return snap, ok
}

// Options tunes a Guard.
type Options struct {
	// LoginPath is the redirect target for signed-out callers. Defaults to
	// "/login".
	LoginPath string
	// RequireProfile makes identity-without-profile answer 202 instead of
	// passing through.
	RequireProfile bool
	// RetryAfter is advertised while loading is pending. Defaults to 1s.
	RetryAfter time.Duration
}

func (o Options) withDefaults() Options {
	if o.LoginPath == "" {
		o.LoginPath = "/login"
	}
	if o.RetryAfter <= 0 {
		o.RetryAfter = time.Second
	}
	return o
}

func Guard(facade *authstate.Facade, opts Options) func(http.Handler) http.Handler {
	opts = opts.withDefaults()
	retryAfter := strconv.Itoa(int((opts.RetryAfter + time.Second - 1) / time.Second))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if facade == nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			snap, err := facade.Session()
			if err != nil {
				http.Error(w, "session unavailable", http.StatusServiceUnavailable)
				return
			}

			switch authstate.Decide(snap) {
			case authstate.ViewLoading:
				w.Header().Set("Retry-After", retryAfter)
				http.Error(w, "loading", http.StatusServiceUnavailable)
				return
			case authstate.ViewRedirect:
				http.Redirect(w, r, opts.LoginPath, http.StatusFound)
				return
			case authstate.ViewProfileLoading:
				if opts.RequireProfile {
					w.Header().Set("Retry-After", retryAfter)
					http.Error(w, "profile loading", http.StatusAccepted)
					return
				}
			}

			ctx := context.WithValue(r.Context(), snapshotContextKey{}, snap)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
