package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationSessions is the SQL DDL for the sessions table. Safe to
// execute multiple times; run at startup as an auto-migration step.
const MigrationSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    account_id UUID NOT NULL,
    ip         TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_account_id ON sessions (account_id);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions (expires_at);
`

// pgRow is a single row returned by QueryRow.
type pgRow interface {
	Scan(dest ...any) error
}

// pgRows is the subset of pgx.Rows needed for listing.
type pgRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// pgConn is the minimal database interface required by PGStore. Both
// *pgxpool.Pool (via the poolConn adapter) and test mocks implement it.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Query(ctx context.Context, sql string, args ...any) (pgRows, error)
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
}

type poolConn struct {
	pool *pgxpool.Pool
}

func (p poolConn) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p poolConn) Query(ctx context.Context, sql string, args ...any) (pgRows, error) {
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (p poolConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := p.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PGStore is the PostgreSQL-backed durable session record.
type PGStore struct {
	db pgConn
}

// NewPGStore creates a store over the pgConn interface; pass a mock in tests.
func NewPGStore(db pgConn) *PGStore {
	return &PGStore{db: db}
}

// NewPGStoreFromPool wraps a pgx pool in the store's connection interface.
func NewPGStoreFromPool(pool *pgxpool.Pool) *PGStore {
	return NewPGStore(poolConn{pool: pool})
}

func (s *PGStore) Insert(ctx context.Context, sess *Session) error {
	const query = `INSERT INTO sessions (id, account_id, ip, user_agent, created_at, expires_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.db.Exec(ctx, query,
		sess.ID, sess.AccountID, sess.IP, sess.UserAgent, sess.CreatedAt, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get returns the session only if it has not expired.
func (s *PGStore) Get(ctx context.Context, id string) (*Session, error) {
	const query = `SELECT id, account_id, ip, user_agent, created_at, expires_at
FROM sessions WHERE id = $1 AND expires_at > now()`

	var sess Session
	err := s.db.QueryRow(ctx, query, id).Scan(
		&sess.ID, &sess.AccountID, &sess.IP, &sess.UserAgent, &sess.CreatedAt, &sess.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

func (s *PGStore) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM sessions WHERE id = $1`

	if _, err := s.db.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *PGStore) DeleteAllForAccount(ctx context.Context, accountID string) (int64, error) {
	const query = `DELETE FROM sessions WHERE account_id = $1`

	n, err := s.db.Exec(ctx, query, accountID)
	if err != nil {
		return 0, fmt.Errorf("delete account sessions: %w", err)
	}
	return n, nil
}

func (s *PGStore) ListByAccount(ctx context.Context, accountID string) ([]*Session, error) {
	const query = `SELECT id, account_id, ip, user_agent, created_at, expires_at
FROM sessions WHERE account_id = $1 AND expires_at > now()
ORDER BY created_at DESC`

	rows, err := s.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.AccountID, &sess.IP, &sess.UserAgent, &sess.CreatedAt, &sess.ExpiresAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// DeleteExpired removes rows whose expiry has passed. Run periodically;
// Redis handles cache expiry natively, the durable table needs sweeping.
func (s *PGStore) DeleteExpired(ctx context.Context) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at <= now()`

	n, err := s.db.Exec(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}
