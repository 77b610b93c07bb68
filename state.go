package authstate

// LoadingState tells consumers whether the initial auth determination is done.
type LoadingState uint8

const (
	LoadingPending LoadingState = iota
	LoadingResolved
)

func (l LoadingState) String() string {
	if l == LoadingResolved {
		return "resolved"
	}
	return "pending"
}

// Status is the tag of the session sum type.
type Status uint8

const (
	// StatusUnauthenticated: no identity, no profile.
	StatusUnauthenticated Status = iota
	// StatusAuthenticatedPendingProfile: identity present, profile absent
	// (create-or-fetch failed or has not been retried yet).
	StatusAuthenticatedPendingProfile
	// StatusAuthenticatedReady: identity and matching profile present.
	StatusAuthenticatedReady
)

func (s Status) String() string {
	switch s {
	case StatusAuthenticatedPendingProfile:
		return "authenticated_pending_profile"
	case StatusAuthenticatedReady:
		return "authenticated_ready"
	default:
		return "unauthenticated"
	}
}

// Snapshot is an immutable view of the session. Its fields are unexported and
// only the constructors below build one, so a profile without an identity, or
// a profile whose id differs from the identity's, cannot be represented.
type Snapshot struct {
	status     Status
	identity   Identity
	profile    Profile
	loading    LoadingState
	version    uint64
	profileErr error
}

func unauthenticated(loading LoadingState) Snapshot {
	return Snapshot{status: StatusUnauthenticated, loading: loading}
}

func pendingProfile(id Identity, loading LoadingState, cause error) Snapshot {
	return Snapshot{status: StatusAuthenticatedPendingProfile, identity: id, loading: loading, profileErr: cause}
}

func ready(id Identity, p Profile, loading LoadingState) Snapshot {
	p.ID = id.ID
	return Snapshot{status: StatusAuthenticatedReady, identity: id, profile: p, loading: loading}
}

func (s Snapshot) withLoading(l LoadingState) Snapshot {
	s.loading = l
	return s
}

func (s Snapshot) withProfile(p Profile) Snapshot {
	if s.status == StatusUnauthenticated {
		return s
	}
	return ready(s.identity, p, s.loading)
}

// Status returns the variant tag.
func (s Snapshot) Status() Status { return s.status }

// Loading returns the loading phase.
func (s Snapshot) Loading() LoadingState { return s.loading }

// Resolved is shorthand for Loading() == LoadingResolved.
func (s Snapshot) Resolved() bool { return s.loading == LoadingResolved }

// Authenticated reports whether an identity is present.
func (s Snapshot) Authenticated() bool { return s.status != StatusUnauthenticated }

// Version is the publish sequence number; 0 is the initial snapshot.
func (s Snapshot) Version() uint64 { return s.version }

// Identity returns the current identity, if any.
func (s Snapshot) Identity() (Identity, bool) {
	if s.status == StatusUnauthenticated {
		return Identity{}, false
	}
	return s.identity, true
}

// Profile returns the current profile, if any.
func (s Snapshot) Profile() (Profile, bool) {
	if s.status != StatusAuthenticatedReady {
		return Profile{}, false
	}
	return s.profile, true
}

// ProfileErr returns the create-or-fetch failure behind a pending-profile
// session, or nil.
func (s Snapshot) ProfileErr() error {
	if s.status != StatusAuthenticatedPendingProfile {
		return nil
	}
	return s.profileErr
}
