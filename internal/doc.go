// Package internal holds building blocks that are private to authstate.
//
// # Sub-packages
//
//   - audit: async report dispatch (Dispatcher + Sink implementations)
//   - metrics: lock-free counters and the fetch-latency histogram
//   - rate: Redis-backed fixed-window counters
//
// Nothing here appears in the public authstate API; the root package
// re-exports what callers need through type aliases.
package internal
