// Package rate provides a Redis-backed fixed-window counter.
//
// # Window semantics
//
// INCR + conditional EXPIRE on the first hit. Keys are "<prefix>:<key>"; the
// window restarts when the key expires.
//
// # Users
//
//   - provider/redisbus: per-session token refresh budget
//   - cmd/authstate-demo: per-address login budget
package rate
