package account

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
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
		case *bool:
			*d = r.values[i].(bool)
		case *time.Time:
			*d = r.values[i].(time.Time)
		}
	}
	return nil
}

type fakeConn struct {
	row      fakeRow
	execErr  error
	lastSQL  string
	lastArgs []any
}

func (c *fakeConn) QueryRow(ctx context.Context, sql string, args ...any) pgRow {
	c.lastSQL = sql
	c.lastArgs = args
	return c.row
}

func (c *fakeConn) Exec(ctx context.Context, sql string, args ...any) error {
	c.lastSQL = sql
	c.lastArgs = args
	return c.execErr
}

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"doctor", RoleDoctor, true},
		{"DOCTOR", RoleDoctor, true},
		{" nurse ", RoleNurse, true},
		{"Admin", RoleAdmin, true},
		{"patient", RolePatient, true},
		{"surgeon", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		require.Equal(t, tt.ok, ok, "input %q", tt.in)
		if ok {
			require.Equal(t, tt.want, got)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	require.Equal(t, "nurse@hospital.org", NormalizeEmail("  Nurse@Hospital.ORG "))
}

func TestCreateNormalizesEmailAndStamps(t *testing.T) {
	conn := &fakeConn{}
	store := NewPGStore(conn)
	fixed := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	acc := &Account{
		ID:       "3e4c8d1a-0000-0000-0000-000000000001",
		Email:    "Dr.House@Hospital.org",
		Role:     RoleDoctor,
		IsActive: true,
	}
	require.NoError(t, store.Create(context.Background(), acc))
	require.Equal(t, "dr.house@hospital.org", acc.Email)
	require.Equal(t, fixed, acc.CreatedAt)
	require.Equal(t, "dr.house@hospital.org", conn.lastArgs[1])
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	conn := &fakeConn{execErr: &pgconn.PgError{Code: "23505"}}
	store := NewPGStore(conn)

	err := store.Create(context.Background(), &Account{ID: "id", Email: "a@b.c"})
	require.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestFindByEmailNotFound(t *testing.T) {
	conn := &fakeConn{row: fakeRow{err: pgx.ErrNoRows}}
	store := NewPGStore(conn)

	_, err := store.FindByEmail(context.Background(), "ghost@hospital.org")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFindByEmailScansAccount(t *testing.T) {
	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	conn := &fakeConn{row: fakeRow{values: []any{
		"acc-1", "dr.house@hospital.org", "$2a$12$hash", "DOCTOR",
		"Gregory", "House", "+1-555-0100", true, created, created,
	}}}
	store := NewPGStore(conn)

	acc, err := store.FindByEmail(context.Background(), "Dr.House@Hospital.org")
	require.NoError(t, err)
	require.Equal(t, "acc-1", acc.ID)
	require.Equal(t, RoleDoctor, acc.Role)
	require.True(t, acc.IsActive)
	// lookup uses the normalized form
	require.Equal(t, "dr.house@hospital.org", conn.lastArgs[0])
}
