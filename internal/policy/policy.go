// Package policy decides which caller may invoke which operation.  It is a
// pure function of the caller's identity and the operation; it never touches
// the store, so a rejected request has no side effects.
package policy

import (
	"errors"

	"github.com/iliyamo/canteen-voting/internal/model"
)

var (
	// ErrUnauthorized means no authenticated identity was presented.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the identity lacks the capability the operation needs.
	ErrForbidden = errors.New("forbidden")
)

// Capability is what an operation requires of its caller.
type Capability int

const (
	Authenticated Capability = iota
	Student
	Vendor
)

// Operation names a guarded entry point.
type Operation string

const (
	CastVote    Operation = "vote.cast"
	VoteStatus  Operation = "vote.status"
	ViewResults Operation = "vote.results"
	ListVendors Operation = "users.vendors"
	WhoAmI      Operation = "auth.me"
)

var required = map[Operation]Capability{
	CastVote:    Student,
	VoteStatus:  Student,
	ViewResults: Authenticated,
	ListVendors: Authenticated,
	WhoAmI:      Authenticated,
}

// Identity is an authenticated caller.
type Identity struct {
	UserID string
	Role   model.Role
}

// Has reports whether id holds capability c.
func (id Identity) Has(c Capability) bool {
	if id.UserID == "" {
		return false
	}
	switch c {
	case Authenticated:
		return true
	case Student:
		return id.Role == model.RoleStudent
	case Vendor:
		return id.Role == model.RoleVendor
	}
	return false
}

// Authorize returns nil when id may perform op, ErrUnauthorized when id is
// nil or empty, and ErrForbidden otherwise.
func Authorize(id *Identity, op Operation) error {
	if id == nil || id.UserID == "" {
		return ErrUnauthorized
	}
	c, ok := required[op]
	if !ok || !id.Has(c) {
		return ErrForbidden
	}
	return nil
}
