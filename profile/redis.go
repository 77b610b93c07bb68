package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/authstate"
)

var (
	// ErrRedisUnavailable wraps transport failures from the Redis client.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound is returned by Get for an identity without a record.
	ErrNotFound = errors.New("profile not found")
)

const createOrFetchScript = `
local created = redis.call("SET", KEYS[1], ARGV[1], "NX")
local data = redis.call("GET", KEYS[1])
if created then
  return {1, data}
end
return {0, data}
`

var createOrFetchLua = redis.NewScript(createOrFetchScript)

// RedisStore is a Redis-backed authstate.ProfileRepository.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewRedisStore returns a store whose keys are "<prefix>:profile:<id>".
func NewRedisStore(rdb redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "as"
	}
	return &RedisStore{redis: rdb, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + ":profile:" + id
}

// CreateOrFetch returns the stored record for id, writing defaults first only
// if no record exists. Both steps run in one script.
//
//	Performance: 1 EVALSHA (SET NX + GET).
func (s *RedisStore) CreateOrFetch(ctx context.Context, id string, defaults authstate.Profile) (authstate.Profile, error) {
	if id == "" {
		return authstate.Profile{}, errors.New("empty profile id")
	}
	defaults.ID = id

	seed, err := Encode(defaults)
	if err != nil {
		return authstate.Profile{}, err
	}

	res, err := createOrFetchLua.Run(ctx, s.redis, []string{s.key(id)}, seed).Slice()
	if err != nil {
		return authstate.Profile{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(res) != 2 {
		return authstate.Profile{}, fmt.Errorf("%w: unexpected script reply", ErrCorrupt)
	}
	data, ok := res[1].(string)
	if !ok {
		return authstate.Profile{}, fmt.Errorf("%w: unexpected script reply", ErrCorrupt)
	}

	return s.decode(id, []byte(data))
}

// Get fetches the record for id without creating it.
//
//	Performance: 1 Redis GET.
func (s *RedisStore) Get(ctx context.Context, id string) (authstate.Profile, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return authstate.Profile{}, ErrNotFound
	}
	if err != nil {
		return authstate.Profile{}, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return s.decode(id, data)
}

// Put overwrites the record for p.ID. Billing and admin paths use it; the
// session store never does.
func (s *RedisStore) Put(ctx context.Context, p authstate.Profile) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(p.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Delete removes the record for id. Deleting a missing record is not an error.
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) decode(id string, data []byte) (authstate.Profile, error) {
	p, err := Decode(data)
	if err != nil {
		return authstate.Profile{}, err
	}
	if p.ID != id {
		return authstate.Profile{}, fmt.Errorf("%w: record for %q stored under %q", ErrCorrupt, p.ID, id)
	}
	return p, nil
}
