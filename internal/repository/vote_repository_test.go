package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/canteen-voting/internal/model"
	"github.com/iliyamo/canteen-voting/internal/testutil"
)

func newVote(student, vendor string, p model.Period) model.Vote {
	return model.Vote{
		ID:        uuid.NewString(),
		StudentID: student,
		VendorID:  vendor,
		Period:    p,
		CreatedAt: time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC),
	}
}

func insertVote(t *testing.T, db *sql.DB, v model.Vote) error {
	t.Helper()
	repo := NewVoteRepo(db)
	return WithTx(context.Background(), db, func(tx *sql.Tx) error {
		return repo.InsertTx(context.Background(), tx, v)
	})
}

func TestVoteRepo_InsertAndFind(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewVoteRepo(db)
	ctx := context.Background()
	student := testutil.InsertUser(t, db, "Sam", "sam@uni.test", "student")
	vendor := testutil.InsertUser(t, db, "Noodle Bar", "noodle@uni.test", "vendor")

	v := newVote(student, vendor, "2024-06")
	require.NoError(t, insertVote(t, db, v))

	err := WithTx(ctx, db, func(tx *sql.Tx) error {
		got, err := repo.FindByStudentTx(ctx, tx, student, "2024-06")
		require.NoError(t, err)
		require.Equal(t, v.ID, got.ID)
		require.Equal(t, vendor, got.VendorID)
		require.Equal(t, model.Period("2024-06"), got.Period)

		_, err = repo.FindByStudentTx(ctx, tx, student, "2024-07")
		require.ErrorIs(t, err, ErrNotFound)
		return nil
	})
	require.NoError(t, err)
}

func TestVoteRepo_InsertDuplicateMapsToErrDuplicateVote(t *testing.T) {
	db := testutil.OpenDB(t)
	student := testutil.InsertUser(t, db, "Sam", "sam@uni.test", "student")
	v1 := testutil.InsertUser(t, db, "Noodle Bar", "noodle@uni.test", "vendor")
	v2 := testutil.InsertUser(t, db, "Curry House", "curry@uni.test", "vendor")

	require.NoError(t, insertVote(t, db, newVote(student, v1, "2024-06")))
	err := insertVote(t, db, newVote(student, v2, "2024-06"))
	require.ErrorIs(t, err, ErrDuplicateVote)
	require.Equal(t, 1, testutil.CountVotes(t, db, student))

	require.NoError(t, insertVote(t, db, newVote(student, v2, "2024-07")))
	require.Equal(t, 2, testutil.CountVotes(t, db, student))
}

func TestVoteRepo_StatusFor(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewVoteRepo(db)
	student := testutil.InsertUser(t, db, "Sam", "sam@uni.test", "student")
	vendor := testutil.InsertUser(t, db, "Noodle Bar", "noodle@uni.test", "vendor")

	_, err := repo.StatusFor(context.Background(), student, "2024-06")
	require.ErrorIs(t, err, ErrNotFound)

	v := newVote(student, vendor, "2024-06")
	require.NoError(t, insertVote(t, db, v))

	got, err := repo.StatusFor(context.Background(), student, "2024-06")
	require.NoError(t, err)
	require.Equal(t, "Noodle Bar", got.VendorName)
	require.Equal(t, vendor, got.VendorID)
	require.Equal(t, model.Period("2024-06"), got.Period)
	require.True(t, v.CreatedAt.Equal(got.VotedAt), "votedAt %v != %v", got.VotedAt, v.CreatedAt)
}

func TestVoteRepo_TallyByPeriodRanksAndBreaksTiesByVendorID(t *testing.T) {
	db := testutil.OpenDB(t)
	repo := NewVoteRepo(db)

	vendors := map[string]string{}
	for _, name := range []string{"A", "B", "C"} {
		vendors[name] = testutil.InsertUser(t, db, "Vendor "+name, name+"@uni.test", "vendor")
	}
	// A: 3, B: 1, C: 1 in June; one July vote that must not be counted.
	plan := []string{"A", "A", "A", "B", "C"}
	for i, name := range plan {
		s := testutil.InsertUser(t, db, "Student", uuid.NewString()+"@uni.test", "student")
		require.NoError(t, insertVote(t, db, newVote(s, vendors[name], "2024-06")), "vote %d", i)
	}
	s := testutil.InsertUser(t, db, "Late", "late@uni.test", "student")
	require.NoError(t, insertVote(t, db, newVote(s, vendors["B"], "2024-07")))

	tallies, err := repo.TallyByPeriod(context.Background(), "2024-06")
	require.NoError(t, err)
	require.Len(t, tallies, 3)
	require.Equal(t, "Vendor A", tallies[0].VendorName)
	require.Equal(t, int64(3), tallies[0].Votes)
	require.Equal(t, int64(1), tallies[1].Votes)
	require.Equal(t, int64(1), tallies[2].Votes)
	require.Less(t, tallies[1].VendorID, tallies[2].VendorID)

	empty, err := repo.TallyByPeriod(context.Background(), "2023-01")
	require.NoError(t, err)
	require.Empty(t, empty)
}

func newMockRepo(t *testing.T) (*VoteRepo, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewVoteRepo(db), mock, db
}

func TestVoteRepo_InsertTx_MySQLDuplicateEntry(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	v := newVote("s-1", "v-1", "2024-06")

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+votes`).
		WithArgs(v.ID, "s-1", "v-1", "2024-06", v.CreatedAt).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 's-1-2024-06' for key 'votes_student_period_uq'"})
	mock.ExpectRollback()

	err := WithTx(context.Background(), db, func(tx *sql.Tx) error {
		return repo.InsertTx(context.Background(), tx, v)
	})
	require.ErrorIs(t, err, ErrDuplicateVote)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteRepo_InsertTx_PassesThroughOtherErrors(t *testing.T) {
	repo, mock, db := newMockRepo(t)
	v := newVote("s-1", "v-1", "2024-06")

	mock.ExpectBegin()
	mock.ExpectExec(`(?s)^INSERT\s+INTO\s+votes`).
		WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
	mock.ExpectRollback()

	err := WithTx(context.Background(), db, func(tx *sql.Tx) error {
		return repo.InsertTx(context.Background(), tx, v)
	})
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrDuplicateVote))
	require.True(t, IsTransient(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestVoteRepo_TallyByPeriod_QueryShape(t *testing.T) {
	repo, mock, _ := newMockRepo(t)

	rows := sqlmock.NewRows([]string{"vendor_id", "name", "vote_count"}).
		AddRow("v-1", "Noodle Bar", int64(3)).
		AddRow("v-2", "Curry House", int64(1))
	mock.ExpectQuery(`(?s)SELECT.+COUNT\(\*\).+WHERE\s+v\.voting_period=\?.+GROUP BY.+ORDER BY vote_count DESC, v\.vendor_id ASC`).
		WithArgs("2024-06").
		WillReturnRows(rows)

	got, err := repo.TallyByPeriod(context.Background(), "2024-06")
	require.NoError(t, err)
	require.Equal(t, []model.VendorTally{
		{VendorID: "v-1", VendorName: "Noodle Bar", Votes: 3},
		{VendorID: "v-2", VendorName: "Curry House", Votes: 1},
	}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}
