package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rush-contest/apiserver/internal/store"
	"github.com/rush-contest/apiserver/types"
)

// SubmissionStatus says why a contest does or does not accept
// registrations right now. DeadlinePassed and ContestOver both mean
// "cannot submit" but carry different user-facing messages.
type SubmissionStatus string

const (
	SubmissionOpen           SubmissionStatus = "open"
	SubmissionDeadlinePassed SubmissionStatus = "deadline_passed"
	SubmissionContestOver    SubmissionStatus = "contest_over"
)

var (
	// ErrDeadlinePassed is returned when the submission deadline has
	// passed but the contest has not taken place yet.
	ErrDeadlinePassed = errors.New("submission deadline passed")

	// ErrContestOver is returned when the contest date has been reached.
	ErrContestOver = errors.New("contest already took place")

	// ErrDuplicateRegistration is returned when an individual-contestant
	// account already holds a registration for the contest.
	ErrDuplicateRegistration = errors.New("account already registered for this contest")
)

// BirthYearError reports a birth year outside a contest's eligible range.
type BirthYearError struct {
	Year    int
	Lowest  int
	Highest int
}

func (e *BirthYearError) Error() string {
	return fmt.Sprintf("birth year %d outside eligible range %d-%d", e.Year, e.Lowest, e.Highest)
}

// ContestantRepository defines persistence operations for registrations.
type ContestantRepository interface {
	Create(ctx context.Context, contestant types.Contestant) (types.Contestant, error)
	ExistsForContest(ctx context.Context, moderatorID, contestID int) (bool, error)
	ListByContest(ctx context.Context, contestID int) ([]types.Contestant, error)
	ListByModerator(ctx context.Context, contestID, moderatorID int) ([]types.Contestant, error)
}

// EligibilityService decides whether a registration may be accepted for a
// contest right now.
type EligibilityService struct {
	repo ContestantRepository
}

func NewEligibilityService(repo ContestantRepository) *EligibilityService {
	return &EligibilityService{repo: repo}
}

// SubmissionWindow classifies now against the contest's deadline and date.
// The deadline itself is inclusive.
func SubmissionWindow(contest types.Contest, now time.Time) SubmissionStatus {
	if !now.Before(contest.Date) {
		return SubmissionContestOver
	}
	if now.After(contest.Deadline) {
		return SubmissionDeadlinePassed
	}
	return SubmissionOpen
}

// CanSubmit reports whether registrations are open, with the reason code.
func (s *EligibilityService) CanSubmit(contest types.Contest, now time.Time) (bool, SubmissionStatus) {
	status := SubmissionWindow(contest, now)
	return status == SubmissionOpen, status
}

// IsEligibleAge checks the inclusive birth-year range. The failure carries
// the bounds so the caller can render the specific rejection.
func (s *EligibilityService) IsEligibleAge(contest types.Contest, birthYear int) error {
	if birthYear < contest.LowestYear || birthYear > contest.HighestYear {
		return &BirthYearError{Year: birthYear, Lowest: contest.LowestYear, Highest: contest.HighestYear}
	}
	return nil
}

// CanRegister reports whether the account may add another contestant to
// the contest. Club- and school-backed accounts always may; individual
// contestants may hold at most one registration per contest. This check is
// only an optimistic pre-filter: the storage constraint decides races.
func (s *EligibilityService) CanRegister(ctx context.Context, contest types.Contest, account types.Account) (bool, error) {
	if !account.Individual {
		return true, nil
	}
	exists, err := s.repo.ExistsForContest(ctx, account.ID, contest.ID)
	if err != nil {
		return false, err
	}
	return !exists, nil
}

// Register runs the full eligibility gate and inserts the registration.
// The duplicate guard and the insert form one logical unit: the partial
// unique constraint is the authority, and its violation comes back as
// ErrDuplicateRegistration rather than a raw storage error.
func (s *EligibilityService) Register(
	ctx context.Context,
	contest types.Contest,
	account types.Account,
	contestant types.Contestant,
	now time.Time,
) (types.Contestant, error) {
	if ok, status := s.CanSubmit(contest, now); !ok {
		if status == SubmissionContestOver {
			return types.Contestant{}, ErrContestOver
		}
		return types.Contestant{}, ErrDeadlinePassed
	}
	if err := s.IsEligibleAge(contest, contestant.BirthYear); err != nil {
		return types.Contestant{}, err
	}
	ok, err := s.CanRegister(ctx, contest, account)
	if err != nil {
		return types.Contestant{}, err
	}
	if !ok {
		return types.Contestant{}, ErrDuplicateRegistration
	}

	contestant.ContestID = contest.ID
	contestant.ModeratorID = account.ID
	contestant.Individual = account.Individual
	created, err := s.repo.Create(ctx, contestant)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateRegistration) {
			return types.Contestant{}, ErrDuplicateRegistration
		}
		return types.Contestant{}, err
	}
	return created, nil
}

// ListByContest returns every registration for the contest.
func (s *EligibilityService) ListByContest(ctx context.Context, contestID int) ([]types.Contestant, error) {
	return s.repo.ListByContest(ctx, contestID)
}

// ListByModerator returns the registrations one account submitted for the
// contest.
func (s *EligibilityService) ListByModerator(ctx context.Context, contestID, moderatorID int) ([]types.Contestant, error) {
	return s.repo.ListByModerator(ctx, contestID, moderatorID)
}
