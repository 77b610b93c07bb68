package authstate

import (
	"errors"
	"fmt"
)

var (
	// ErrMisuse matches every wiring or call-order error returned by the store
	// and the facade. These indicate a programming bug, not a runtime condition.
	ErrMisuse = errors.New("authstate: misuse")

	// ErrNotInitialized is returned when a store operation that needs the
	// subscription runs before Initialize.
	ErrNotInitialized = misuse("store not initialized")
	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = misuse("store already initialized")
	// ErrStoreClosed is returned when the store scope has ended.
	ErrStoreClosed = misuse("store closed")
	// ErrNoStore is returned when a facade is wired without a store.
	ErrNoStore = misuse("facade requires a store")

	// ErrInvalidPatch is returned when a profile patch would break a profile invariant.
	ErrInvalidPatch = errors.New("invalid profile patch")
	// ErrInvalidProfile is returned when a profile violates its invariants.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrProviderRequired is returned by Build without an identity provider.
	ErrProviderRequired = errors.New("identity provider required")
	// ErrProfilesRequired is returned by Build without a profile repository.
	ErrProfilesRequired = errors.New("profile repository required")
)

type misuseError struct {
	msg string
}

func misuse(msg string) error {
	return &misuseError{msg: msg}
}

func (e *misuseError) Error() string {
	return "authstate: " + e.msg
}

func (e *misuseError) Is(target error) bool {
	return target == ErrMisuse
}

// ProfileFetchError reports a failed create-or-fetch for IdentityID. The store
// recovers from it locally: the session stays authenticated with no profile.
type ProfileFetchError struct {
	IdentityID string
	Err        error
}

func (e *ProfileFetchError) Error() string {
	return fmt.Sprintf("profile create-or-fetch for %q failed: %v", e.IdentityID, e.Err)
}

func (e *ProfileFetchError) Unwrap() error {
	return e.Err
}

// SignOutError reports a failed provider sign-out. State is left for the next
// stream event to reconcile.
type SignOutError struct {
	Err error
}

func (e *SignOutError) Error() string {
	return fmt.Sprintf("provider sign-out failed: %v", e.Err)
}

func (e *SignOutError) Unwrap() error {
	return e.Err
}

func errorf(base error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", base, fmt.Sprintf(format, args...))
}
