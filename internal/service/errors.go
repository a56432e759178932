// Package service holds the vote-casting and tallying logic.  It sits between
// the HTTP handlers and the repositories and owns the transaction boundary of
// a cast.
package service

import "errors"

var (
	// ErrAlreadyVoted means the student already has a vote in the period.
	ErrAlreadyVoted = errors.New("you have already voted this period")
	// ErrTargetNotFound means the target id does not resolve to a vendor.
	ErrTargetNotFound = errors.New("vendor not found")
	// ErrInvalidInput means a request argument is malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrTransientStore means the store timed out or was briefly unavailable.
	// Nothing was written; the caller may retry.
	ErrTransientStore = errors.New("store temporarily unavailable")
)
