package redisbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authstate"
	"github.com/MrEthical07/authstate/internal/rate"
	"github.com/MrEthical07/authstate/logging"
	"github.com/MrEthical07/authstate/token"
)

var (
	// ErrRedisUnavailable wraps transport failures from the Redis client.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidToken is returned by SignIn for a token the verifier rejects.
	ErrInvalidToken = errors.New("invalid access token")
	// ErrRefreshLimited is returned by RefreshToken once a session has used
	// its refresh budget for the current window.
	ErrRefreshLimited = errors.New("token refresh rate limited")
)

// Envelope is the wire form of one auth event.
type Envelope struct {
	ID          string              `json:"id"`
	Kind        authstate.EventKind `json:"kind"`
	AccessToken string              `json:"access_token,omitempty"`
	At          time.Time           `json:"at"`
}

// Config scopes a Bus to one client.
type Config struct {
	Prefix string
	Client string
	// OpTimeout bounds the Redis calls made while resolving a delivery.
	OpTimeout time.Duration
	// MaxRefreshes caps RefreshToken calls per session within RefreshWindow.
	// Zero disables the cap.
	MaxRefreshes  int
	RefreshWindow time.Duration
	Logger        logging.Logger
}

// Bus is an authstate.Provider backed by Redis.
type Bus struct {
	redis    redis.UniversalClient
	verifier *token.Verifier
	cfg      Config
	logger   logging.Logger
	refresh  *rate.Limiter
}

// New validates cfg and returns a Bus.
func New(rdb redis.UniversalClient, verifier *token.Verifier, cfg Config) (*Bus, error) {
	if rdb == nil {
		return nil, errors.New("redis client is required")
	}
	if verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if cfg.Client == "" {
		return nil, errors.New("client id is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "as"
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 2 * time.Second
	}
	if cfg.MaxRefreshes < 0 {
		return nil, errors.New("max refreshes must be >= 0")
	}
	if cfg.MaxRefreshes > 0 && cfg.RefreshWindow <= 0 {
		cfg.RefreshWindow = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Bus{
		redis:    rdb,
		verifier: verifier,
		cfg:      cfg,
		logger:   logger,
		refresh: rate.New(rdb, rate.Config{
			Prefix: cfg.Prefix + ":rl:refresh",
			Max:    cfg.MaxRefreshes,
			Window: cfg.RefreshWindow,
		}),
	}, nil
}

func (b *Bus) sessionKey(sid string) string {
	return b.cfg.Prefix + ":session:" + sid
}

func (b *Bus) tokenKey() string {
	return b.cfg.Prefix + ":client:" + b.cfg.Client + ":token"
}

// Channel returns the pub/sub channel name for this client.
func (b *Bus) Channel() string {
	return b.cfg.Prefix + ":client:" + b.cfg.Client + ":events"
}

// SignIn records the session for accessToken and announces it.
func (b *Bus) SignIn(ctx context.Context, accessToken string) error {
	return b.publishToken(ctx, authstate.EventSignedIn, accessToken)
}

// RefreshToken replaces the client's token after the provider rotated it.
func (b *Bus) RefreshToken(ctx context.Context, accessToken string) error {
	return b.publishToken(ctx, authstate.EventTokenRefreshed, accessToken)
}

func (b *Bus) publishToken(ctx context.Context, kind authstate.EventKind, accessToken string) error {
	sess, err := b.verifier.Verify(accessToken)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if kind == authstate.EventTokenRefreshed {
		if err := b.refresh.Allow(ctx, sess.SessionID); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				b.logger.Warn("redisbus: refresh budget spent", "sid", sess.SessionID)
				return ErrRefreshLimited
			}
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("%w: token already expired", ErrInvalidToken)
	}

	pipe := b.redis.TxPipeline()
	pipe.Set(ctx, b.sessionKey(sess.SessionID), sess.Identity.ID, ttl)
	pipe.Set(ctx, b.tokenKey(), accessToken, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return b.publish(ctx, kind, accessToken)
}

// SignOut revokes the client's current session and announces signed_out.
// It succeeds when no session exists.
func (b *Bus) SignOut(ctx context.Context) error {
	raw, err := b.redis.Get(ctx, b.tokenKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	keys := []string{b.tokenKey()}
	if raw != "" {
		if sess, verr := b.verifier.Verify(raw); verr == nil {
			keys = append(keys, b.sessionKey(sess.SessionID))
		}
	}
	if err := b.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return b.publish(ctx, authstate.EventSignedOut, "")
}

// Revoke deletes a session marker. Subscribers that later resolve a token
// for sid see no session.
func (b *Bus) Revoke(ctx context.Context, sid string) error {
	if err := b.redis.Del(ctx, b.sessionKey(sid)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (b *Bus) publish(ctx context.Context, kind authstate.EventKind, accessToken string) error {
	payload, err := json.Marshal(Envelope{
		ID:          uuid.NewString(),
		Kind:        kind,
		AccessToken: accessToken,
		At:          time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := b.redis.Publish(ctx, b.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Subscribe opens the client's channel. The handler first receives an
// initial_session event built from the stored token, then every envelope
// in publish order, all from one goroutine.
func (b *Bus) Subscribe(handler authstate.EventHandler) (authstate.Subscription, error) {
	ctx, cancel := context.WithCancel(context.Background())

	ps := b.redis.Subscribe(ctx, b.Channel())
	if _, err := ps.Receive(ctx); err != nil {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	initial, err := b.redis.Get(ctx, b.tokenKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		cancel()
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sub := &subscription{ps: ps, cancel: cancel, done: make(chan struct{})}
	go b.run(ctx, sub, initial, handler)
	return sub, nil
}

func (b *Bus) run(ctx context.Context, sub *subscription, initial string, handler authstate.EventHandler) {
	defer close(sub.done)

	handler(b.resolve(ctx, Envelope{
		ID:          uuid.NewString(),
		Kind:        authstate.EventInitialSession,
		AccessToken: initial,
		At:          time.Now().UTC(),
	}))

	ch := sub.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("redisbus: dropped malformed envelope", "channel", msg.Channel, "error", err)
				continue
			}
			if ctx.Err() != nil {
				return
			}
			handler(b.resolve(ctx, env))
		}
	}
}

// resolve turns an envelope into an event. A token that fails verification,
// or whose session marker is gone, yields an event without identity.
func (b *Bus) resolve(ctx context.Context, env Envelope) authstate.AuthEvent {
	ev := authstate.AuthEvent{ID: env.ID, Kind: env.Kind, At: env.At}
	if env.AccessToken == "" {
		return ev
	}

	sess, err := b.verifier.Verify(env.AccessToken)
	if err != nil {
		b.logger.Warn("redisbus: rejected access token", "event_id", env.ID, "error", err)
		return ev
	}

	opCtx, cancel := context.WithTimeout(ctx, b.cfg.OpTimeout)
	defer cancel()
	n, err := b.redis.Exists(opCtx, b.sessionKey(sess.SessionID)).Result()
	if err != nil {
		b.logger.Warn("redisbus: session lookup failed", "event_id", env.ID, "error", err)
		return ev
	}
	if n == 0 {
		b.logger.Debug("redisbus: session revoked", "event_id", env.ID, "sid", sess.SessionID)
		return ev
	}

	id := sess.Identity
	ev.Identity = &id
	return ev
}

type subscription struct {
	ps     *redis.PubSub
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
}

// Unsubscribe closes the channel. It does not wait for an in-progress
// handler call.
func (s *subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		_ = s.ps.Close()
	})
}
