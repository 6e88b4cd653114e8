package types

import "time"

// Contest represents a scheduled contest open for registration until its
// deadline. Deadline <= Date is enforced at creation/edit time; whether
// submissions are currently open is always derived, never stored.
type Contest struct {
	ID    int    `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Place string `json:"place" db:"place"`

	// Date is when the contest takes place.
	Date time.Time `json:"date" db:"date"`

	// Deadline is the registration cutoff, at or before Date.
	Deadline time.Time `json:"deadline" db:"deadline"`

	// LowestYear and HighestYear bound eligible birth years, inclusive.
	LowestYear  int `json:"lowest_year" db:"lowest_year"`
	HighestYear int `json:"highest_year" db:"highest_year"`

	// Organizer is the unit running the contest, if any.
	Organizer OrganizerRef `json:"organizer" db:"-"`

	// Results is free-text, filled in after the contest.
	Results string `json:"results,omitempty" db:"results"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ContestFile is a document attached to a contest, stored in object
// storage under ObjectKey.
type ContestFile struct {
	ID          int       `json:"id" db:"id"`
	ContestID   int       `json:"contest_id" db:"contest_id"`
	UploadedBy  int       `json:"uploaded_by" db:"uploaded_by"`
	Name        string    `json:"name" db:"name"`
	ObjectKey   string    `json:"-" db:"object_key"`
	ContentType string    `json:"content_type" db:"content_type"`
	Size        int64     `json:"size" db:"size"`
	UploadedAt  time.Time `json:"uploaded_at" db:"uploaded_at"`
}
