package store

import (
	"errors"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrLoginTaken is returned when a write collides with the unique login
// constraint.
var ErrLoginTaken = errors.New("login taken")

// ErrEmailTaken is returned when a write collides with the unique email
// constraint.
var ErrEmailTaken = errors.New("email taken")

// ErrDuplicateRegistration is returned when the partial unique index on
// (moderator, contest) rejects a second individual registration.
var ErrDuplicateRegistration = errors.New("duplicate registration")

const uniqueViolationCode = "23505"

// uniqueViolation reports whether err is a postgres unique-constraint
// violation and, if so, the constraint name.
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolationCode {
		return pqErr.Constraint, true
	}
	return "", false
}
