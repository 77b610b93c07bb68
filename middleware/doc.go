// Package middleware adapts the session consumer contract to net/http.
//
// # Guards
//
//   - [Guard]: configurable decision over the current snapshot.
//   - [RequireSession]: identity and profile must both be present.
//   - [RequireIdentity]: identity is enough; the profile may still be loading.
//
// Each guard reads the snapshot once per request through the facade and
// injects it into the request context for the wrapped handler.
//
// # Decisions
//
//	loading pending                   503, Retry-After
//	resolved, no identity             302 to the login path
//	identity, no profile (profile)    202 "profile loading"
//	ready                             next handler
//
// # What this package must NOT do
//
//   - Redirect while the initial determination is still pending.
//   - Mutate session state; guards are read-only consumers.
package middleware
