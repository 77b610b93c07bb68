// Package authstate keeps a single, race-free view of who the remote identity
// provider currently recognizes, together with the application profile that
// belongs to that identity.
//
// A [Store] subscribes once to the provider's auth-event stream, performs a
// create-or-fetch against the profile backend for every identity it sees, and
// publishes an immutable [Snapshot] to registered listeners. The first event
// after [Store.Initialize] flips the loading phase from pending to resolved
// exactly once, which lets consumers tell "still determining" apart from
// "determined: signed out".
//
// # Architecture boundaries
//
// authstate is the public surface. It exposes [Store], [Facade], [Builder],
// [Config] and value types ([Snapshot], [Identity], [Profile]). Report dispatch
// and metric storage live under internal/ and are never exported directly.
// Concrete providers (provider, provider/redisbus) and profile backends
// (profile) live in sibling packages and depend on this one, never the reverse.
//
// # Concurrency contract
//
//   - [Store.State] is lock-free and never blocks.
//   - Events are applied under mutual exclusion; the create-or-fetch call runs
//     outside the lock and its result is dropped if a newer event or a sign-out
//     was applied in the meantime.
//   - Listeners run synchronously, in registration order, in publish order.
//     A listener must not call Store methods that publish (SignOut,
//     UpdateProfile, RefreshProfile) from within its callback.
//
// # What this package must NOT do
//
//   - Enter credentials, refresh tokens, or coordinate sessions across processes.
//   - Overwrite an existing profile's accumulated state when creating defaults.
//   - Panic on provider or backend failures; those are reported, not thrown.
package authstate
