package rate

import "errors"

var (
	// ErrRateLimited marks a rejected attempt. The caller maps it to a
	// 429 with Retry-After.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps backend failures. The limiter itself
	// fails open on these; the sentinel exists for logging and tests.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
