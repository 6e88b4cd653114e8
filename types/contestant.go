package types

import "time"

type Gender string

const (
	GenderFemale Gender = "F"
	GenderMale   Gender = "M"
)

// Contestant is a single registration of a person for a contest,
// submitted by the moderator account.
type Contestant struct {
	ID          int `json:"id" db:"id"`
	ContestID   int `json:"contest_id" db:"contest_id"`
	ModeratorID int `json:"moderator_id" db:"moderator_id"`

	FirstName string `json:"first_name" db:"first_name"`
	LastName  string `json:"last_name" db:"last_name"`
	Gender    Gender `json:"gender" db:"gender"`

	// SchoolKind is the free-form school category the contestant belongs to.
	SchoolKind string `json:"school_kind,omitempty" db:"school_kind"`

	BirthYear int `json:"birth_year" db:"birth_year"`

	// Individual mirrors the moderator account's capability flag at the
	// time of registration; the one-registration-per-contest constraint
	// keys off it.
	Individual bool `json:"-" db:"individual"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FullName returns the contestant's display name.
func (c Contestant) FullName() string {
	return c.FirstName + " " + c.LastName
}
