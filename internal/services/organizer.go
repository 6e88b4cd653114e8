package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
)

var (
	// ErrUnknownUnit is returned when a unit reference names a kind the
	// system does not know or a record that does not exist.
	ErrUnknownUnit = errors.New("unknown unit")

	// ErrMalformedReference is returned when a compound unit reference
	// does not have the "{id}_{kind}" shape.
	ErrMalformedReference = errors.New("malformed unit reference")
)

// IndividualLabel is the display sentinel for accounts and contests with
// no organizing unit.
const IndividualLabel = "Individual"

// UnitDirectory defines the club/school lookups the resolver needs.
type UnitDirectory interface {
	GetClub(ctx context.Context, id int) (types.Club, error)
	GetSchool(ctx context.Context, id int) (types.School, error)
	ListClubs(ctx context.Context) ([]types.Club, error)
	ListSchools(ctx context.Context) ([]types.School, error)
}

// OrganizerResolver centralizes parsing, validation and display of
// organizer references. Both accounts and contests consume it, so the
// "{id}_{kind}" codec lives in exactly one place.
type OrganizerResolver struct {
	units UnitDirectory
}

func NewOrganizerResolver(units UnitDirectory) *OrganizerResolver {
	return &OrganizerResolver{units: units}
}

// Resolve validates that the referenced unit exists and returns the
// reference.
func (r *OrganizerResolver) Resolve(ctx context.Context, kind types.OrganizerKind, id int) (types.OrganizerRef, error) {
	switch kind {
	case types.OrganizerClub:
		if _, err := r.units.GetClub(ctx, id); err != nil {
			return types.OrganizerRef{}, unitLookupError(err)
		}
	case types.OrganizerSchool:
		if _, err := r.units.GetSchool(ctx, id); err != nil {
			return types.OrganizerRef{}, unitLookupError(err)
		}
	default:
		return types.OrganizerRef{}, ErrUnknownUnit
	}
	return types.OrganizerRef{Kind: kind, ID: id}, nil
}

// Parse decodes the compound "{id}_{kind}" form.
func (r *OrganizerResolver) Parse(encoded string) (int, types.OrganizerKind, error) {
	parts := strings.SplitN(encoded, "_", 2)
	if len(parts) != 2 {
		return 0, "", ErrMalformedReference
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil || id < 1 {
		return 0, "", ErrMalformedReference
	}
	kind := types.OrganizerKind(parts[1])
	switch kind {
	case types.OrganizerClub, types.OrganizerSchool:
		return id, kind, nil
	}
	return 0, "", ErrMalformedReference
}

// Describe returns the display name of the referenced unit, or the
// individual sentinel.
func (r *OrganizerResolver) Describe(ctx context.Context, ref types.OrganizerRef) (string, error) {
	switch ref.Kind {
	case "":
		return IndividualLabel, nil
	case types.OrganizerClub:
		club, err := r.units.GetClub(ctx, ref.ID)
		if err != nil {
			return "", unitLookupError(err)
		}
		return club.Name, nil
	case types.OrganizerSchool:
		school, err := r.units.GetSchool(ctx, ref.ID)
		if err != nil {
			return "", unitLookupError(err)
		}
		return school.Name, nil
	}
	return "", ErrUnknownUnit
}

// UnitOption is one selectable organizer in a registration form.
type UnitOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Options lists all selectable units. Built per call so a long-running
// process never serves a stale list.
func (r *OrganizerResolver) Options(ctx context.Context) ([]UnitOption, error) {
	clubs, err := r.units.ListClubs(ctx)
	if err != nil {
		return nil, err
	}
	schools, err := r.units.ListSchools(ctx)
	if err != nil {
		return nil, err
	}

	options := make([]UnitOption, 0, len(clubs)+len(schools))
	for _, club := range clubs {
		options = append(options, UnitOption{
			Value: types.OrganizerRef{Kind: types.OrganizerClub, ID: club.ID}.Encode(),
			Label: fmt.Sprintf("[Club] %s", club.Name),
		})
	}
	for _, school := range schools {
		options = append(options, UnitOption{
			Value: types.OrganizerRef{Kind: types.OrganizerSchool, ID: school.ID}.Encode(),
			Label: fmt.Sprintf("[School] %s", school.Name),
		})
	}
	return options, nil
}

func unitLookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownUnit
	}
	return err
}
