package rate

import "errors"

var (
	// ErrRateLimited is returned once a scope exceeds its attempt budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps storage failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
