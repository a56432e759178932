// Package testutil holds helpers shared by package tests: a migrated
// in-memory database and fixtures written with plain SQL.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/canteen-voting/internal/config"
	"github.com/iliyamo/canteen-voting/internal/database"
)

// OpenDB returns a migrated, private in-memory SQLite database that is
// closed when the test ends.
func OpenDB(t testing.TB) *sql.DB {
	t.Helper()
	ctx := context.Background()
	db, err := database.OpenSQLite(ctx, "file:"+uuid.NewString()+"?mode=memory")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if err := database.Migrate(ctx, db, config.DriverSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// InsertUser writes a user row directly and returns its id.  The password
// hash is a placeholder; use the repository when a real login is needed.
func InsertUser(t testing.TB, db *sql.DB, name, email, role string) string {
	t.Helper()
	id := uuid.NewString()
	now := time.Now().UTC()
	_, err := db.Exec(`INSERT INTO users (id, name, email, password_hash, role, created_at, updated_at)
		VALUES (?, ?, ?, 'x', ?, ?, ?)`, id, name, email, role, now, now)
	if err != nil {
		t.Fatalf("insert user %s: %v", email, err)
	}
	return id
}

// CountVotes returns the number of ledger rows, optionally for one student.
func CountVotes(t testing.TB, db *sql.DB, studentID string) int {
	t.Helper()
	q, args := `SELECT COUNT(*) FROM votes`, []any{}
	if studentID != "" {
		q += ` WHERE student_id = ?`
		args = append(args, studentID)
	}
	var n int
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("count votes: %v", err)
	}
	return n
}
