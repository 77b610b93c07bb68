package rate

import "errors"

var (
	// ErrRateLimited is returned once a key's window budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps transport failures from the Redis client.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
