package authstate

import (
	"errors"
	"time"
)

// Config holds the store's tunables. Build validates it once; afterwards it is
// treated as immutable.
type Config struct {
	Profile ProfileConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
PROFILE CONFIG
====================================
*/

// ProfileConfig is the seed used when the backend has no profile for an
// identity yet. It never overwrites an existing record.
type ProfileConfig struct {
	DefaultCredits            int64
	DefaultPlan               PlanTier
	DefaultHasPurchasedApp    bool
	DefaultCloudSyncEnabled   bool
	DefaultAutoCloudSync      bool
	DefaultDeletionPolicyDays int
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the asynchronous report channel used for
// ProfileFetchError and SignOutError.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables in-process counters and the fetch-latency histogram.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		Profile: ProfileConfig{
			DefaultCredits:            25,
			DefaultPlan:               PlanFree,
			DefaultHasPurchasedApp:    false,
			DefaultCloudSyncEnabled:   false,
			DefaultAutoCloudSync:      false,
			DefaultDeletionPolicyDays: 0,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

// DefaultConfig returns the configuration Build uses when none is supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

// Validate checks the configuration for values the store cannot honor.
func (c *Config) Validate() error {
	// Profile
	if c.Profile.DefaultCredits < 0 {
		return errors.New("Profile DefaultCredits must be >= 0")
	}
	if !c.Profile.DefaultPlan.Valid() {
		return errors.New("Profile DefaultPlan must be free or full_app_purchase")
	}
	if c.Profile.DefaultDeletionPolicyDays < 0 {
		return errors.New("Profile DefaultDeletionPolicyDays must be >= 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

// defaultsFor builds the seed profile for a first sighting of id.
func (c ProfileConfig) defaultsFor(id Identity, now time.Time) Profile {
	return Profile{
		ID:                 id.ID,
		Email:              id.Email,
		Credits:            c.DefaultCredits,
		Plan:               c.DefaultPlan,
		HasPurchasedApp:    c.DefaultHasPurchasedApp,
		CloudSyncEnabled:   c.DefaultCloudSyncEnabled,
		AutoCloudSync:      c.DefaultAutoCloudSync,
		DeletionPolicyDays: c.DefaultDeletionPolicyDays,
		CreatedAt:          now.UTC(),
	}
}
