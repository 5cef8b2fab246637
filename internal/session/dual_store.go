package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DurableStore is the secondary record that survives cache restarts. It
// backs reconciliation, administrative session listing, and forced logout.
type DurableStore interface {
	Insert(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	DeleteAllForAccount(ctx context.Context, accountID string) (int64, error)
	ListByAccount(ctx context.Context, accountID string) ([]*Session, error)
}

// Store is the dual-backed session registry: Redis is the primary read
// path with native TTLs, the durable store is the source of truth.
// Writes go to both; reads prefer the cache and repopulate it on a miss.
// With a nil Redis client the store runs in degraded, durable-only mode
// rather than failing hard.
type Store struct {
	cache   redis.UniversalClient
	durable DurableStore
	prefix  string
	log     zerolog.Logger
	now     func() time.Time
}

func NewStore(cache redis.UniversalClient, durable DurableStore, log zerolog.Logger) *Store {
	return &Store{
		cache:   cache,
		durable: durable,
		prefix:  "sess:",
		log:     log.With().Str("component", "session-store").Logger(),
		now:     time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (s *Store) WithNow(now func() time.Time) *Store {
	s.now = now
	return s
}

// Degraded reports whether the store is running without its cache layer.
func (s *Store) Degraded() bool {
	return s.cache == nil
}

func (s *Store) key(id string) string {
	return s.prefix + id
}

// Put persists the session to the durable store and the cache. A durable
// write failure fails the operation; a cache write failure is downgraded
// to a warning because the cache can be repopulated from the durable
// record on the next read.
func (s *Store) Put(ctx context.Context, sess *Session) error {
	if err := s.durable.Insert(ctx, sess); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if s.cache == nil {
		return nil
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.cache.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("session cache write failed, durable record kept")
	}
	return nil
}

// Get returns the session if it is live. Cache hits are authoritative;
// cache misses and cache outages fall back to the durable store, and a
// durable hit repopulates the cache.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if s.cache != nil {
		data, err := s.cache.Get(ctx, s.key(id)).Bytes()
		switch {
		case err == nil:
			var sess Session
			if decErr := json.Unmarshal(data, &sess); decErr == nil {
				if sess.Expired(s.now()) {
					return nil, ErrNotFound
				}
				return &sess, nil
			}
			// Corrupt cache entry: fall through to the durable record.
			s.log.Warn().Str("session_id", id).Msg("corrupt session cache entry, falling back to durable store")
		case errors.Is(err, redis.Nil):
			// Cache miss, check durable below.
		default:
			s.log.Warn().Err(err).Msg("session cache unavailable, falling back to durable store")
		}
	}

	sess, err := s.durable.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if sess.Expired(s.now()) {
		return nil, ErrNotFound
	}

	s.repopulate(ctx, sess)
	return sess, nil
}

// Exists reports whether the session is live. It shares Get's fallback
// policy; only a durable-store outage is an error.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete revokes the session in both layers. The durable delete is the
// one that matters for revocation; a cache delete failure is a warning
// because the entry expires on its own TTL.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s.cache != nil {
		if err := s.cache.Del(ctx, s.key(id)).Err(); err != nil {
			s.log.Warn().Err(err).Str("session_id", id).Msg("session cache delete failed")
		}
	}
	if err := s.durable.Delete(ctx, id); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// DeleteAllForAccount revokes every session belonging to the account,
// in both layers. Used for forced logout.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	if s.cache != nil {
		sessions, err := s.durable.ListByAccount(ctx, accountID)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		keys := make([]string, 0, len(sessions))
		for _, sess := range sessions {
			keys = append(keys, s.key(sess.ID))
		}
		if len(keys) > 0 {
			if err := s.cache.Del(ctx, keys...).Err(); err != nil {
				s.log.Warn().Err(err).Str("account_id", accountID).Msg("session cache bulk delete failed")
			}
		}
	}

	n, err := s.durable.DeleteAllForAccount(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// ListByAccount returns the account's live sessions from the durable store.
func (s *Store) ListByAccount(ctx context.Context, accountID string) ([]*Session, error) {
	sessions, err := s.durable.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	live := make([]*Session, 0, len(sessions))
	for _, sess := range sessions {
		if !sess.Expired(s.now()) {
			live = append(live, sess)
		}
	}
	return live, nil
}

// Ping reports cache reachability. Durable reachability is checked by
// the pool's own health checks.
func (s *Store) Ping(ctx context.Context) error {
	if s.cache == nil {
		return ErrCacheUnavailable
	}
	if err := s.cache.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

func (s *Store) repopulate(ctx context.Context, sess *Session) {
	if s.cache == nil {
		return
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, s.key(sess.ID), data, ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID).Msg("session cache repopulate failed")
	}
}
