package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rush-contest/apiserver/types"
)

// ContestantRepository handles persistence for contest registrations.
type ContestantRepository struct {
	db *sql.DB
}

func NewContestantRepository(db *sql.DB) *ContestantRepository {
	return &ContestantRepository{db: db}
}

// Create inserts a registration. The partial unique index on
// (moderator_id, contest_id) WHERE individual is the authority for the
// one-registration-per-contest rule; a violation comes back as
// ErrDuplicateRegistration.
func (r *ContestantRepository) Create(ctx context.Context, contestant types.Contestant) (types.Contestant, error) {
	contestant.CreatedAt = time.Now()

	const query = `
		INSERT INTO contestants (contest_id, moderator_id, first_name,
			last_name, gender, school_kind, birth_year, individual, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	err := r.db.QueryRowContext(
		ctx,
		query,
		contestant.ContestID,
		contestant.ModeratorID,
		contestant.FirstName,
		contestant.LastName,
		contestant.Gender,
		contestant.SchoolKind,
		contestant.BirthYear,
		contestant.Individual,
		contestant.CreatedAt,
	).Scan(&contestant.ID)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && constraint == "contestants_individual_once" {
			return types.Contestant{}, ErrDuplicateRegistration
		}
		return types.Contestant{}, err
	}
	return contestant, nil
}

func (r *ContestantRepository) ExistsForContest(ctx context.Context, moderatorID, contestID int) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM contestants WHERE moderator_id = $1 AND contest_id = $2
		)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, moderatorID, contestID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *ContestantRepository) ListByContest(ctx context.Context, contestID int) ([]types.Contestant, error) {
	const query = `
		SELECT id, contest_id, moderator_id, first_name, last_name, gender,
			school_kind, birth_year, individual, created_at
		FROM contestants
		WHERE contest_id = $1
		ORDER BY last_name, first_name`
	return r.list(ctx, query, contestID)
}

func (r *ContestantRepository) ListByModerator(ctx context.Context, contestID, moderatorID int) ([]types.Contestant, error) {
	const query = `
		SELECT id, contest_id, moderator_id, first_name, last_name, gender,
			school_kind, birth_year, individual, created_at
		FROM contestants
		WHERE contest_id = $1 AND moderator_id = $2
		ORDER BY last_name, first_name`
	return r.list(ctx, query, contestID, moderatorID)
}

func (r *ContestantRepository) list(ctx context.Context, query string, args ...any) ([]types.Contestant, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contestants []types.Contestant
	for rows.Next() {
		var contestant types.Contestant
		if err := rows.Scan(
			&contestant.ID,
			&contestant.ContestID,
			&contestant.ModeratorID,
			&contestant.FirstName,
			&contestant.LastName,
			&contestant.Gender,
			&contestant.SchoolKind,
			&contestant.BirthYear,
			&contestant.Individual,
			&contestant.CreatedAt,
		); err != nil {
			return nil, err
		}
		contestants = append(contestants, contestant)
	}
	return contestants, rows.Err()
}
