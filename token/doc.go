// Package token verifies provider access tokens and derives the session
// identity from their claims. Events that carry a token are never trusted
// until Verifier.Verify accepts it.
package token
