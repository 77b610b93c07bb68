package authstate

import (
	"context"
	"time"
)

// Identity is the provider-issued record for the current caller. The store
// holds it read-only and replaces it wholesale on every auth event.
type Identity struct {
	ID    string
	Email string
}

// PlanTier is the billing plan recorded on a profile.
type PlanTier string

const (
	PlanFree         PlanTier = "free"
	PlanFullPurchase PlanTier = "full_app_purchase"
)

// Valid reports whether p is a known tier.
func (p PlanTier) Valid() bool {
	return p == PlanFree || p == PlanFullPurchase
}

// Profile is the application-owned record keyed by Identity.ID.
type Profile struct {
	ID                 string
	Email              string
	Credits            int64
	Plan               PlanTier
	HasPurchasedApp    bool
	CloudSyncEnabled   bool
	AutoCloudSync      bool
	DeletionPolicyDays int
	CreatedAt          time.Time
}

// Validate checks the profile invariants.
func (p Profile) Validate() error {
	switch {
	case p.ID == "":
		return errorf(ErrInvalidProfile, "empty id")
	case p.Credits < 0:
		return errorf(ErrInvalidProfile, "negative credits")
	case p.DeletionPolicyDays < 0:
		return errorf(ErrInvalidProfile, "negative deletion policy days")
	case !p.Plan.Valid():
		return errorf(ErrInvalidProfile, "unknown plan %q", p.Plan)
	}
	return nil
}

// ProfilePatch is a sparse update merged into the current profile without a
// backend round-trip. Nil fields are left untouched.
type ProfilePatch struct {
	Credits            *int64
	Plan               *PlanTier
	HasPurchasedApp    *bool
	CloudSyncEnabled   *bool
	AutoCloudSync      *bool
	DeletionPolicyDays *int
}

// Empty reports whether the patch carries no field.
func (p ProfilePatch) Empty() bool {
	return p.Credits == nil && p.Plan == nil && p.HasPurchasedApp == nil &&
		p.CloudSyncEnabled == nil && p.AutoCloudSync == nil && p.DeletionPolicyDays == nil
}

func (p ProfilePatch) validate() error {
	if p.Credits != nil && *p.Credits < 0 {
		return errorf(ErrInvalidPatch, "credits must be >= 0, got %d", *p.Credits)
	}
	if p.DeletionPolicyDays != nil && *p.DeletionPolicyDays < 0 {
		return errorf(ErrInvalidPatch, "deletion policy days must be >= 0, got %d", *p.DeletionPolicyDays)
	}
	if p.Plan != nil && !p.Plan.Valid() {
		return errorf(ErrInvalidPatch, "unknown plan %q", *p.Plan)
	}
	return nil
}

// Apply returns a copy of base with the patch merged in.
func (p ProfilePatch) Apply(base Profile) Profile {
	out := base
	if p.Credits != nil {
		out.Credits = *p.Credits
	}
	if p.Plan != nil {
		out.Plan = *p.Plan
	}
	if p.HasPurchasedApp != nil {
		out.HasPurchasedApp = *p.HasPurchasedApp
	}
	if p.CloudSyncEnabled != nil {
		out.CloudSyncEnabled = *p.CloudSyncEnabled
	}
	if p.AutoCloudSync != nil {
		out.AutoCloudSync = *p.AutoCloudSync
	}
	if p.DeletionPolicyDays != nil {
		out.DeletionPolicyDays = *p.DeletionPolicyDays
	}
	return out
}

// EventKind classifies a provider auth event.
type EventKind string

const (
	EventInitialSession EventKind = "initial_session"
	EventSignedIn       EventKind = "signed_in"
	EventSignedOut      EventKind = "signed_out"
	EventTokenRefreshed EventKind = "token_refreshed"
	EventUserUpdated    EventKind = "user_updated"
)

// AuthEvent is one delivery from the provider stream. A nil Identity (or one
// with an empty ID) means "no session".
type AuthEvent struct {
	ID       string
	Kind     EventKind
	Identity *Identity
	At       time.Time
}

// HasIdentity reports whether the event carries a usable identity.
func (e AuthEvent) HasIdentity() bool {
	return e.Identity != nil && e.Identity.ID != ""
}

// EventHandler receives provider events. Providers may invoke it from any
// goroutine, including concurrently.
type EventHandler func(AuthEvent)

// Subscription is an open registration on a provider stream. Unsubscribe must
// be safe to call more than once.
type Subscription interface {
	Unsubscribe()
}

// Provider is the identity-provider boundary: an event stream plus sign-out.
type Provider interface {
	Subscribe(handler EventHandler) (Subscription, error)
	SignOut(ctx context.Context) error
}

// ProfileRepository is the profile backend boundary. CreateOrFetch returns the
// stored record for id, creating it from defaults only when none exists.
type ProfileRepository interface {
	CreateOrFetch(ctx context.Context, id string, defaults Profile) (Profile, error)
}

// ProfileRepositoryFunc adapts a function to ProfileRepository.
type ProfileRepositoryFunc func(ctx context.Context, id string, defaults Profile) (Profile, error)

func (f ProfileRepositoryFunc) CreateOrFetch(ctx context.Context, id string, defaults Profile) (Profile, error) {
	return f(ctx, id, defaults)
}
