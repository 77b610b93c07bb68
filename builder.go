package authstate

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/authstate/internal/audit"
	"github.com/MrEthical07/authstate/logging"
	"github.com/google/uuid"
)

// Builder wires a [Store]. It is single-use: the store is constructed once at
// the top of the application and passed to every consumer that needs it.
type Builder struct {
	config Config

	provider Provider
	profiles ProfileRepository

	auditSink AuditSink
	logger    logging.Logger
	now       func() time.Time

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithProvider sets the identity provider whose event stream the store follows.
func (b *Builder) WithProvider(p Provider) *Builder {
	b.provider = p
	return b
}

// WithProfiles sets the profile backend used for create-or-fetch.
func (b *Builder) WithProfiles(repo ProfileRepository) *Builder {
	b.profiles = repo
	return b
}

// WithAuditSink sets where ProfileFetchError and SignOutError reports go.
// Reports are only dispatched when Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. Defaults to logging.NoOpLogger.
func (b *Builder) WithLogger(l logging.Logger) *Builder {
	b.logger = l
	return b
}

// WithClock overrides the time source used for profile seed timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) WithAuditEnabled(enabled bool) *Builder {
	b.config.Audit.Enabled = enabled
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the wiring and returns an uninitialized store. Call
// [Store.Initialize] to open the subscription.
func (b *Builder) Build() (*Store, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.provider == nil {
		return nil, ErrProviderRequired
	}
	if b.profiles == nil {
		return nil, ErrProfilesRequired
	}

	logger := b.logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	now := b.now
	if now == nil {
		now = time.Now
	}

	s := &Store{
		id:       uuid.NewString(),
		cfg:      cfg,
		provider: b.provider,
		profiles: b.profiles,
		logger:   logger,
		now:      now,
		metrics:  NewMetrics(cfg.Metrics),
		audit: internalaudit.NewDispatcher(internalaudit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}
	initial := unauthenticated(LoadingPending)
	s.state.Store(&initial)

	b.built = true

	return s, nil
}
