// Package profile provides create-or-fetch backends for authstate.Store.
//
// RedisStore keeps one compact binary record per identity and performs the
// create-or-fetch in a single Lua script, so concurrent logins for the same
// identity converge on one record. MemoryStore has the same semantics for
// tests and local development. Neither backend ever overwrites an existing
// record with seed defaults.
package profile
