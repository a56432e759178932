package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/canteen-voting/internal/testutil"
)

func TestWithTx_CommitsOnSuccess(t *testing.T) {
	db := testutil.OpenDB(t)

	err := WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
			VALUES ('u1', 'A', 'a@uni.test', 'x', 'student', '2024-06-01 00:00:00', '2024-06-01 00:00:00')`)
		return err
	})
	require.NoError(t, err)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	require.Equal(t, 1, n)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	db := testutil.OpenDB(t)

	err := WithTx(context.Background(), db, func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
			VALUES ('u1', 'A', 'a@uni.test', 'x', 'student', '2024-06-01 00:00:00', '2024-06-01 00:00:00')`)
		require.NoError(t, err)
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	require.Zero(t, n)
}

func TestWithTx_RollsBackAndRethrowsPanic(t *testing.T) {
	db := testutil.OpenDB(t)

	require.Panics(t, func() {
		_ = WithTx(context.Background(), db, func(tx *sql.Tx) error {
			_, _ = tx.Exec(`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
				VALUES ('u1', 'A', 'a@uni.test', 'x', 'student', '2024-06-01 00:00:00', '2024-06-01 00:00:00')`)
			panic("kaput")
		})
	})

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	require.Zero(t, n)
}

func TestIsTransient(t *testing.T) {
	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(errors.New("syntax error")))
	require.False(t, IsTransient(ErrNotFound))
	require.True(t, IsTransient(context.DeadlineExceeded))
	require.True(t, IsTransient(fmt.Errorf("query: %w", driver.ErrBadConn)))
	require.True(t, IsTransient(&mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}))
	require.False(t, IsTransient(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
}
