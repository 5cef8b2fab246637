package session

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
)

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i := range dest {
		switch d := dest[i].(type) {
		case *string:
			*d = r.values[i].(string)
		case *time.Time:
			*d = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeRows struct {
	rows []fakeRow
	idx  int
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *fakeRows) Scan(dest ...any) error { return r.rows[r.idx-1].Scan(dest...) }
func (r *fakeRows) Err() error             { return nil }
func (r *fakeRows) Close()                 {}

type fakeConn struct {
	row      fakeRow
	rows     *fakeRows
	affected int64
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	c.lastSQL = sql
	c.lastArgs = args
	return c.row
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (pgRows, error) {
	c.lastSQL = sql
	c.lastArgs = args
	return c.rows, nil
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	c.lastSQL = sql
	c.lastArgs = args
	return c.affected, c.execErr
}

func TestPGGetNotFound(t *testing.T) {
	conn := &fakeConn{row: fakeRow{err: pgx.ErrNoRows}}
	store := NewPGStore(conn)

	_, err := store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestPGGetScansSession(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	conn := &fakeConn{row: fakeRow{values: []any{
		"s1", "acc-1", "203.0.113.7", "portal/1.0", created, created.Add(time.Hour),
	}}}
	store := NewPGStore(conn)

	sess, err := store.Get(context.Background(), "s1")
	require.NoError(t, err)
	require.Equal(t, "acc-1", sess.AccountID)
	require.Equal(t, created.Add(time.Hour), sess.ExpiresAt)
}

func TestPGDeleteAllForAccountReturnsCount(t *testing.T) {
	conn := &fakeConn{affected: 3}
	store := NewPGStore(conn)

	n, err := store.DeleteAllForAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.Equal(t, []any{"acc-1"}, conn.lastArgs)
}

func TestPGListByAccount(t *testing.T) {
	created := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	conn := &fakeConn{rows: &fakeRows{rows: []fakeRow{
		{values: []any{"s1", "acc-1", "", "", created, created.Add(time.Hour)}},
		{values: []any{"s2", "acc-1", "", "", created, created.Add(2 * time.Hour)}},
	}}}
	store := NewPGStore(conn)

	sessions, err := store.ListByAccount(context.Background(), "acc-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.Equal(t, "s1", sessions[0].ID)
	require.Equal(t, "s2", sessions[1].ID)
}
