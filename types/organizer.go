package types

import "fmt"

// OrganizerKind discriminates the concrete organizing units known to the
// system. It is a closed set: new kinds are added here, never by
// subclassing a unit type.
type OrganizerKind string

const (
	OrganizerClub   OrganizerKind = "club"
	OrganizerSchool OrganizerKind = "school"
)

// OrganizerRef is a tagged reference to the organizing unit behind an
// account or a contest. The zero value means "individual, no unit".
type OrganizerRef struct {
	Kind OrganizerKind `json:"kind,omitempty"`
	ID   int           `json:"id,omitempty"`
}

// Individual reports whether the reference carries no unit.
func (r OrganizerRef) Individual() bool {
	return r.Kind == ""
}

// Encode renders the compound "{id}_{kind}" form used in forms and links,
// or the empty string for individual.
func (r OrganizerRef) Encode() string {
	if r.Individual() {
		return ""
	}
	return fmt.Sprintf("%d_%s", r.ID, r.Kind)
}

// Club is a sports club that can back accounts and contests.
type Club struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Code int    `json:"code" db:"code"`
}

// School is a school that can back accounts and contests.
type School struct {
	ID   int    `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
