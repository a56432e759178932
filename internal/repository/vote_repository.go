package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/canteen-voting/internal/model"
)

// VoteRepo is the vote ledger.  Rows are only ever inserted; the
// votes_student_period_uq constraint guarantees one vote per student per
// period regardless of what callers check beforehand.
type VoteRepo struct{ DB *sql.DB }

func NewVoteRepo(db *sql.DB) *VoteRepo { return &VoteRepo{DB: db} }

// FindByStudentTx returns the student's vote for period inside tx, or
// ErrNotFound.
func (r *VoteRepo) FindByStudentTx(ctx context.Context, tx *sql.Tx, studentID string, period model.Period) (model.Vote, error) {
	var (
		v model.Vote
		p string
	)
	err := tx.QueryRowContext(ctx,
		`SELECT id, student_id, vendor_id, voting_period, created_at
		   FROM votes WHERE student_id=? AND voting_period=? LIMIT 1`,
		studentID, string(period)).Scan(&v.ID, &v.StudentID, &v.VendorID, &p, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Vote{}, ErrNotFound
	}
	if err != nil {
		return model.Vote{}, err
	}
	v.Period = model.Period(p)
	return v, nil
}

// InsertTx appends v to the ledger inside tx.  A concurrent vote by the same
// student in the same period surfaces as ErrDuplicateVote.
func (r *VoteRepo) InsertTx(ctx context.Context, tx *sql.Tx, v model.Vote) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO votes (id, student_id, vendor_id, voting_period, created_at) VALUES (?,?,?,?,?)`,
		v.ID, v.StudentID, v.VendorID, string(v.Period), v.CreatedAt)
	if err != nil && isDuplicate(err) {
		return ErrDuplicateVote
	}
	return err
}

// StatusFor returns the student's vote for period joined to the vendor name,
// or ErrNotFound when the student has not voted.
func (r *VoteRepo) StatusFor(ctx context.Context, studentID string, period model.Period) (model.CastVote, error) {
	var (
		cv model.CastVote
		p  string
	)
	err := r.DB.QueryRowContext(ctx,
		`SELECT v.vendor_id, u.name, v.voting_period, v.created_at
		   FROM votes v JOIN users u ON u.id = v.vendor_id
		  WHERE v.student_id=? AND v.voting_period=? LIMIT 1`,
		studentID, string(period)).Scan(&cv.VendorID, &cv.VendorName, &p, &cv.VotedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CastVote{}, ErrNotFound
	}
	if err != nil {
		return model.CastVote{}, err
	}
	cv.Period = model.Period(p)
	return cv, nil
}

// TallyByPeriod counts votes per vendor for period, highest first.  Equal
// counts are ordered by vendor id so the ranking is stable across calls.
func (r *VoteRepo) TallyByPeriod(ctx context.Context, period model.Period) ([]model.VendorTally, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT v.vendor_id, u.name, COUNT(*) AS vote_count
		   FROM votes v JOIN users u ON u.id = v.vendor_id
		  WHERE v.voting_period=?
		  GROUP BY v.vendor_id, u.name
		  ORDER BY vote_count DESC, v.vendor_id ASC`,
		string(period))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	tallies := []model.VendorTally{}
	for rows.Next() {
		var t model.VendorTally
		if err := rows.Scan(&t.VendorID, &t.VendorName, &t.Votes); err != nil {
			return nil, err
		}
		tallies = append(tallies, t)
	}
	return tallies, rows.Err()
}
