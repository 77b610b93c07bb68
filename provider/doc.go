// Package provider contains identity-provider stream adapters that satisfy
// [authstate.Provider].
//
// [Hub] is an in-process stream: the application (or a test) pushes sign-in
// and sign-out events into it and every subscriber receives them in order on
// its own delivery goroutine. Like hosted identity providers, a new
// subscription first receives an initial_session event describing the
// current session, which is what resolves a store's loading phase.
//
// Network-backed transports live in sub-packages (see provider/redisbus) and
// are interchangeable from the store's point of view.
package provider
