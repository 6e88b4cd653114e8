package types

import "time"

// LoginKind tags how an account's login came to be. Pending accounts carry
// a generated placeholder so that two requests never collide on a
// meaningful name; the human-derived login is assigned exactly once, when
// the account is accepted.
type LoginKind string

const (
	LoginPlaceholder LoginKind = "placeholder"
	LoginAssigned    LoginKind = "assigned"
)

// Account represents an identity record in the system.
type Account struct {
	// ID is the unique identifier of the account.
	ID int `json:"id" db:"id"`

	// Login is the unique login name. While the account is pending this
	// is an opaque placeholder; once active it is derived from the
	// holder's name and never regenerated.
	Login string `json:"login" db:"login"`

	// LoginKind tags whether Login is a placeholder or an assigned name.
	LoginKind LoginKind `json:"login_kind" db:"login_kind"`

	// Email is the account's email address.
	Email string `json:"email" db:"email"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`

	// PasswordHash stores the hashed representation of the password.
	// Empty means no credential token has been redeemed yet.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// Active reports whether the account has been accepted.
	Active bool `json:"active" db:"active"`

	// Admin grants access to the accounts/contests admin operations.
	Admin bool `json:"admin" db:"admin"`

	// Organizer is the unit the account is represented by, or the zero
	// reference for individual contestants.
	Organizer OrganizerRef `json:"organizer" db:"-"`

	// Individual marks the account as an individual contestant: the
	// holder registers themselves directly, capped at one registration
	// per contest. A capability flag, not a different account type.
	Individual bool `json:"individual" db:"individual"`

	// Notifications is the opt-in flag for contest announcements.
	Notifications bool `json:"notifications" db:"notifications"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// FullName returns the display name.
func (a Account) FullName() string {
	return a.FirstName + " " + a.LastName
}

// HasPassword reports whether a password has ever been set.
func (a Account) HasPassword() bool {
	return a.PasswordHash != ""
}
