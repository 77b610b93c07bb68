// Package audit implements async event dispatching for session-state reports.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full / block-if-full semantics.
//   - [Event]: structured report carrying the store, identity and outcome.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that belongs to the Store's event handler and sign-out path.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on session state.
//   - Import authstate or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
