// Package rate provides Redis-backed fixed-window rate limiting with
// blocking for security-sensitive endpoints.
//
// # Window semantics
//
// Counters are fixed-window: a Lua script increments the counter and
// sets the window expiry as one atomic unit, so a crash between the two
// can never leave an orphaned counter. Once a counter exceeds its
// threshold a block key is written; every attempt inside the block is
// rejected regardless of the counter. Key prefixes:
//   - rl:g: — global, keyed by account id or client IP
//   - rl:s: — strict, keyed by IP+endpoint (login, register)
//
// # Degraded mode
//
// When Redis is unreachable the limiter fails open: blocking all
// traffic would turn a cache outage into a full lockout. Every
// fail-open decision is logged as a degraded-mode warning.
package rate
