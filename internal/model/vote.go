package model

import "time"

// Vote is one row of the vote ledger.  At most one vote exists per
// (StudentID, Period); rows are never updated or deleted.
type Vote struct {
	ID        string    // votes.id
	StudentID string    // votes.student_id, references a student
	VendorID  string    // votes.vendor_id, references a vendor
	Period    Period    // votes.voting_period
	CreatedAt time.Time // votes.created_at
}

// VendorTally is the raw grouped count for one vendor in one period.
type VendorTally struct {
	VendorID   string
	VendorName string
	Votes      int64
}

// Result is one ranked line of a period's results.
type Result struct {
	VendorID   string  `json:"vendorId"`
	VendorName string  `json:"vendorName"`
	VoteCount  int64   `json:"voteCount"`
	Percentage float64 `json:"percentage"`
}

// Results is the full ranked list for one period.
type Results struct {
	Period     Period   `json:"period"`
	TotalVotes int64    `json:"totalVotes"`
	Results    []Result `json:"results"`
}

// CastVote describes a student's vote as shown back to that student.
type CastVote struct {
	VendorID   string    `json:"vendorId"`
	VendorName string    `json:"vendorName"`
	Period     Period    `json:"votingPeriod"`
	VotedAt    time.Time `json:"votedAt"`
}

// VoteStatus answers "has this student voted in the current period".
type VoteStatus struct {
	HasVoted bool      `json:"hasVoted"`
	Vote     *CastVote `json:"vote"`
}
