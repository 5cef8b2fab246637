package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MigrationAccounts is the SQL DDL for the accounts table. It is safe to
// execute multiple times; callers run it at startup as an auto-migration step.
const MigrationAccounts = `
CREATE TABLE IF NOT EXISTS accounts (
    id            UUID PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    role          TEXT NOT NULL,
    first_name    TEXT NOT NULL DEFAULT '',
    last_name     TEXT NOT NULL DEFAULT '',
    phone         TEXT NOT NULL DEFAULT '',
    is_active     BOOLEAN NOT NULL DEFAULT TRUE,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const uniqueViolationCode = "23505"

// pgRow is a single row returned by QueryRow.
type pgRow interface {
	Scan(dest ...any) error
}

// pgConn is the minimal database interface required by PGStore. Both
// *pgxpool.Pool (via the poolConn adapter) and test mocks implement it.
type pgConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgRow
	Exec(ctx context.Context, sql string, args ...any) error
}

type poolConn struct {
	pool *pgxpool.Pool
}

func (p poolConn) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	return p.pool.QueryRow(ctx, sql, args...)
}

func (p poolConn) Exec(ctx context.Context, sql string, args ...any) error {
	_, err := p.pool.Exec(ctx, sql, args...)
	return err
}

// PGStore is the PostgreSQL-backed account store.
type PGStore struct {
	db  pgConn
	now func() time.Time
}

// NewPGStore creates a store over the pgConn interface; pass a mock in tests.
func NewPGStore(db pgConn) *PGStore {
	return &PGStore{db: db, now: time.Now}
}

// NewPGStoreFromPool wraps a pgx pool in the store's connection interface.
func NewPGStoreFromPool(pool *pgxpool.Pool) *PGStore {
	return NewPGStore(poolConn{pool: pool})
}

// Create inserts a new account. The email is stored in normalized form;
// a unique-constraint violation surfaces as ErrDuplicateEmail.
func (s *PGStore) Create(ctx context.Context, acc *Account) error {
	const query = `INSERT INTO accounts
    (id, email, password_hash, role, first_name, last_name, phone, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	now := s.now().UTC()
	acc.Email = NormalizeEmail(acc.Email)
	acc.CreatedAt = now
	acc.UpdatedAt = now

	err := s.db.Exec(ctx, query,
		acc.ID, acc.Email, acc.PasswordHash, string(acc.Role),
		acc.FirstName, acc.LastName, acc.Phone, acc.IsActive,
		acc.CreatedAt, acc.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrDuplicateEmail
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

// FindByEmail looks up an account by normalized email.
func (s *PGStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	const query = `SELECT id, email, password_hash, role, first_name, last_name, phone, is_active, created_at, updated_at
FROM accounts WHERE email = $1`

	return s.scanAccount(s.db.QueryRow(ctx, query, NormalizeEmail(email)))
}

// FindByID looks up an account by id.
func (s *PGStore) FindByID(ctx context.Context, id string) (*Account, error) {
	const query = `SELECT id, email, password_hash, role, first_name, last_name, phone, is_active, created_at, updated_at
FROM accounts WHERE id = $1`

	return s.scanAccount(s.db.QueryRow(ctx, query, id))
}

func (s *PGStore) scanAccount(row pgRow) (*Account, error) {
	var (
		acc  Account
		role string
	)
	err := row.Scan(
		&acc.ID, &acc.Email, &acc.PasswordHash, &role,
		&acc.FirstName, &acc.LastName, &acc.Phone, &acc.IsActive,
		&acc.CreatedAt, &acc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}
	acc.Role = Role(role)
	return &acc, nil
}
