// Package queue defines message payloads exchanged over the message broker
// and the background consumer that turns them into an audit trail.
package queue

// VoteCastQueue is the durable queue vote events are published to.
const VoteCastQueue = "vote.cast"

// VoteCastEvent is published after a vote has been committed.  It carries
// enough for downstream consumers to log or notify without querying the
// primary database.
type VoteCastEvent struct {
	VoteID     string `json:"vote_id"`
	StudentID  string `json:"student_id"`
	VendorID   string `json:"vendor_id"`
	VendorName string `json:"vendor_name"`
	Period     string `json:"voting_period"`
	CastAt     string `json:"cast_at"` // RFC 3339, UTC
}
