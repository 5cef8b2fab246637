// Package session tracks server-side login sessions. Signed tokens stay
// stateless; the session id they carry is checked for liveness here,
// which is what makes logout and forced revocation take effect before a
// token's natural expiry.
package session

import (
	"errors"
	"time"
)

var (
	// ErrNotFound means the session does not exist or has expired.
	ErrNotFound = errors.New("session not found")
	// ErrCacheUnavailable wraps Redis failures. Reads fall back to the
	// durable store; writes log a warning and continue.
	ErrCacheUnavailable = errors.New("session cache unavailable")
	// ErrStoreUnavailable wraps durable-store failures. These are not
	// recoverable within a request: the caller cannot confirm session
	// state and must fail closed.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Session is one authenticated login. IP and UserAgent are a snapshot
// taken at creation, informational only.
type Session struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session has passed its expiry at t.
func (s *Session) Expired(t time.Time) bool {
	return !t.Before(s.ExpiresAt)
}
