// Package logging provides the minimal logging interface used by the session
// store and its adapters, plus a log/slog-backed implementation.
//
// The Logger interface defines the standard leveled methods (Debug, Info, Warn,
// Error) taking a message and alternating key/value attributes. This package
// includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping *slog.Logger
//   - NoOpLogger for silent operation (tests, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.Config{Level: logging.LevelDebug, Format: "text"})
//	store, err := authstate.New().WithLogger(logger).WithProvider(p).WithProfiles(repo).Build()
package logging
