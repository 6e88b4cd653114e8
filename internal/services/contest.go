package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/rush-contest/apiserver/internal/storage"
	"github.com/rush-contest/apiserver/types"
)

// ErrDeadlineAfterDate is returned when a contest's submission deadline
// falls after the contest date.
var ErrDeadlineAfterDate = errors.New("deadline after contest date")

// ErrStorageUnavailable is returned from file operations when no object
// storage backend is configured.
var ErrStorageUnavailable = errors.New("object storage not configured")

// birthYearSpan is how many years back the selectable birth-year list
// reaches.
const birthYearSpan = 100

// ContestRepository defines persistence operations for contests.
type ContestRepository interface {
	List(ctx context.Context) ([]types.Contest, error)
	Get(ctx context.Context, id int) (types.Contest, error)
	Create(ctx context.Context, contest types.Contest) (types.Contest, error)
	Update(ctx context.Context, contest types.Contest) (types.Contest, error)
	SetResults(ctx context.Context, id int, results string) error
	Delete(ctx context.Context, id int) error
	AddFile(ctx context.Context, file types.ContestFile) (types.ContestFile, error)
	GetFile(ctx context.Context, contestID, fileID int) (types.ContestFile, error)
	ListFiles(ctx context.Context, contestID int) ([]types.ContestFile, error)
}

// NoticeAudience lists the accounts that want contest announcements.
type NoticeAudience interface {
	ListNotifiable(ctx context.Context) ([]types.Account, error)
}

// ContestService encapsulates contest use-cases.
type ContestService struct {
	repo     ContestRepository
	resolver *OrganizerResolver
	audience NoticeAudience
	mailer   *Mailer
	files    *storage.Storage
	logger   *slog.Logger
}

func NewContestService(
	repo ContestRepository,
	resolver *OrganizerResolver,
	audience NoticeAudience,
	mailer *Mailer,
	files *storage.Storage,
	logger *slog.Logger,
) *ContestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ContestService{
		repo:     repo,
		resolver: resolver,
		audience: audience,
		mailer:   mailer,
		files:    files,
		logger:   logger,
	}
}

func (s *ContestService) List(ctx context.Context) ([]types.Contest, error) {
	return s.repo.List(ctx)
}

func (s *ContestService) Get(ctx context.Context, id int) (types.Contest, error) {
	return s.repo.Get(ctx, id)
}

// Create validates the deadline ordering and the organizer reference, then
// announces the contest to every opted-in account.
func (s *ContestService) Create(ctx context.Context, contest types.Contest) (types.Contest, error) {
	if err := s.validate(ctx, contest); err != nil {
		return types.Contest{}, err
	}
	created, err := s.repo.Create(ctx, contest)
	if err != nil {
		return types.Contest{}, err
	}
	s.announce(ctx, created)
	return created, nil
}

func (s *ContestService) Update(ctx context.Context, contest types.Contest) (types.Contest, error) {
	if err := s.validate(ctx, contest); err != nil {
		return types.Contest{}, err
	}
	return s.repo.Update(ctx, contest)
}

// SetResults stores the free-text results and announces them to every
// opted-in account.
func (s *ContestService) SetResults(ctx context.Context, id int, results string) error {
	if err := s.repo.SetResults(ctx, id, results); err != nil {
		return err
	}
	contest, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	s.announce(ctx, contest)
	return nil
}

func (s *ContestService) Delete(ctx context.Context, id int) error {
	return s.repo.Delete(ctx, id)
}

// BirthYearOptions derives the selectable birth years from the clock at
// call time, newest first. Never precomputed, so a long-running process
// cannot serve a stale range.
func (s *ContestService) BirthYearOptions(now time.Time) []int {
	current := now.Year()
	years := make([]int, 0, birthYearSpan)
	for year := current; year > current-birthYearSpan; year-- {
		years = append(years, year)
	}
	return years
}

// UploadFile stores a contest document in object storage and records it.
func (s *ContestService) UploadFile(
	ctx context.Context,
	contestID, uploadedBy int,
	name, contentType string,
	data io.Reader,
	size int64,
) (types.ContestFile, error) {
	if s.files == nil {
		return types.ContestFile{}, ErrStorageUnavailable
	}
	if _, err := s.repo.Get(ctx, contestID); err != nil {
		return types.ContestFile{}, err
	}

	key := fmt.Sprintf("contest/%d/%d-%s", contestID, time.Now().UnixNano(), name)
	if err := s.files.Put(ctx, key, data, size, contentType); err != nil {
		return types.ContestFile{}, err
	}

	file := types.ContestFile{
		ContestID:   contestID,
		UploadedBy:  uploadedBy,
		Name:        name,
		ObjectKey:   key,
		ContentType: contentType,
		Size:        size,
	}
	return s.repo.AddFile(ctx, file)
}

// OpenFile returns the file record and a reader over its content.
func (s *ContestService) OpenFile(ctx context.Context, contestID, fileID int) (types.ContestFile, io.ReadCloser, error) {
	if s.files == nil {
		return types.ContestFile{}, nil, ErrStorageUnavailable
	}
	file, err := s.repo.GetFile(ctx, contestID, fileID)
	if err != nil {
		return types.ContestFile{}, nil, err
	}
	reader, err := s.files.Get(ctx, file.ObjectKey)
	if err != nil {
		return types.ContestFile{}, nil, err
	}
	return file, reader, nil
}

func (s *ContestService) ListFiles(ctx context.Context, contestID int) ([]types.ContestFile, error) {
	return s.repo.ListFiles(ctx, contestID)
}

func (s *ContestService) validate(ctx context.Context, contest types.Contest) error {
	if contest.Deadline.After(contest.Date) {
		return ErrDeadlineAfterDate
	}
	if !contest.Organizer.Individual() {
		if _, err := s.resolver.Resolve(ctx, contest.Organizer.Kind, contest.Organizer.ID); err != nil {
			return err
		}
	}
	return nil
}

func (s *ContestService) announce(ctx context.Context, contest types.Contest) {
	accounts, err := s.audience.ListNotifiable(ctx)
	if err != nil {
		s.logger.Error("list notifiable accounts", slog.String("error", err.Error()))
		return
	}
	for _, account := range accounts {
		s.mailer.SendContestNotice(ctx, account.Email, contest)
	}
}
