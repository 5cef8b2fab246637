package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// incrWindowScript increments the counter and sets the window expiry as
// a single atomic unit. A plain INCR followed by EXPIRE admits a race
// where a crash between the two leaves a counter with no expiry.
const incrWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {count, ttl}
`

var incrWindowLua = redis.NewScript(incrWindowScript)

// strikeScript increments the violation counter with a sliding expiry,
// so repeat offenders are remembered past each individual block.
const strikeScript = `
local count = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[1])
return count
`

var strikeLua = redis.NewScript(strikeScript)

// Config holds one limiter layer's tuning parameters.
type Config struct {
	// Limit is the attempt budget per fixed window.
	Limit int
	// Window is the fixed counting window.
	Window time.Duration
	// BlockFactor scales the block duration applied once the budget is
	// exceeded, as a multiple of Window. The strict login limiter uses 2:
	// a block longer than the window punishes sustained brute force more
	// than the window alone would.
	BlockFactor int
	// Progressive doubles the block duration on each successive
	// violation, capped at MaxBlockFactor times the base block.
	Progressive    bool
	MaxBlockFactor int
}

// Result is one admission decision, carrying what the HTTP layer needs
// for the X-RateLimit-* and Retry-After headers.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
	// Degraded is set when the backend was unreachable and the limiter
	// failed open.
	Degraded bool
}

// Limiter is one keyed, windowed counter layer with blocking.
type Limiter struct {
	redis  redis.UniversalClient
	prefix string
	config Config
	log    zerolog.Logger
	now    func() time.Time
}

// New creates a [Limiter] backed by the given Redis client. prefix
// namespaces this layer's keys.
func New(redisClient redis.UniversalClient, prefix string, cfg Config, log zerolog.Logger) *Limiter {
	if cfg.BlockFactor <= 0 {
		cfg.BlockFactor = 1
	}
	if cfg.MaxBlockFactor <= 0 {
		cfg.MaxBlockFactor = 32
	}
	return &Limiter{
		redis:  redisClient,
		prefix: prefix,
		config: cfg,
		log:    log.With().Str("component", "rate-limiter").Str("layer", prefix).Logger(),
		now:    time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (l *Limiter) WithNow(now func() time.Time) *Limiter {
	l.now = now
	return l
}

func (l *Limiter) counterKey(key string) string { return l.prefix + key }
func (l *Limiter) blockKey(key string) string   { return l.prefix + "block:" + key }
func (l *Limiter) strikeKey(key string) string  { return l.prefix + "strikes:" + key }

// Allow records an attempt for the key and decides admission. On a
// backend outage it fails open and flags the result as degraded.
func (l *Limiter) Allow(ctx context.Context, key string) Result {
	if l.redis == nil {
		return l.failOpen(nil)
	}

	// An active block rejects the attempt regardless of the counter.
	blockTTL, err := l.redis.PTTL(ctx, l.blockKey(key)).Result()
	if err != nil {
		return l.failOpen(err)
	}
	if blockTTL > 0 {
		return Result{
			Allowed:    false,
			Limit:      l.config.Limit,
			Remaining:  0,
			Reset:      l.now().Add(blockTTL),
			RetryAfter: blockTTL,
		}
	}

	res, err := incrWindowLua.Run(ctx, l.redis, []string{l.counterKey(key)}, l.config.Window.Milliseconds()).Result()
	if err != nil {
		return l.failOpen(err)
	}
	count, windowTTL, err := parseIncrReply(res)
	if err != nil {
		return l.failOpen(err)
	}

	reset := l.now().Add(time.Duration(windowTTL) * time.Millisecond)
	if count <= int64(l.config.Limit) {
		return Result{
			Allowed:   true,
			Limit:     l.config.Limit,
			Remaining: l.config.Limit - int(count),
			Reset:     reset,
		}
	}

	block := l.blockDuration(ctx, key)
	if err := l.redis.Set(ctx, l.blockKey(key), 1, block).Err(); err != nil {
		return l.failOpen(err)
	}
	return Result{
		Allowed:    false,
		Limit:      l.config.Limit,
		Remaining:  0,
		Reset:      l.now().Add(block),
		RetryAfter: block,
	}
}

// Reset clears the key's counter, block, and strike history. Called
// after a successful login so legitimate users recover their budget.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if l.redis == nil {
		return nil
	}
	err := l.redis.Del(ctx, l.counterKey(key), l.blockKey(key), l.strikeKey(key)).Err()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// blockDuration computes the block applied to a fresh violation. With
// Progressive enabled each successive violation doubles the block, up
// to MaxBlockFactor times the base.
func (l *Limiter) blockDuration(ctx context.Context, key string) time.Duration {
	base := time.Duration(l.config.BlockFactor) * l.config.Window
	if !l.config.Progressive {
		return base
	}

	maxBlock := time.Duration(l.config.MaxBlockFactor) * base
	strikeTTL := 2 * maxBlock
	strikes, err := strikeLua.Run(ctx, l.redis, []string{l.strikeKey(key)}, strikeTTL.Milliseconds()).Result()
	if err != nil {
		return base
	}
	count, ok := strikes.(int64)
	if !ok {
		return base
	}

	block := base
	for i := int64(1); i < count && block < maxBlock; i++ {
		block *= 2
	}
	if block > maxBlock {
		block = maxBlock
	}
	return block
}

func (l *Limiter) failOpen(err error) Result {
	l.log.Warn().Err(err).Msg("rate limit backend unavailable, failing open")
	return Result{
		Allowed:   true,
		Limit:     l.config.Limit,
		Remaining: l.config.Limit,
		Reset:     l.now().Add(l.config.Window),
		Degraded:  true,
	}
}

func parseIncrReply(res interface{}) (count int64, ttlMillis int64, err error) {
	parts, ok := res.([]interface{})
	if !ok || len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: invalid script response", ErrRedisUnavailable)
	}
	count, ok = parts[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid counter reply", ErrRedisUnavailable)
	}
	ttlMillis, ok = parts[1].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("%w: invalid ttl reply", ErrRedisUnavailable)
	}
	return count, ttlMillis, nil
}
