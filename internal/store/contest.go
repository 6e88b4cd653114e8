package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rush-contest/apiserver/types"
)

const contestColumns = `id, name, place, date, deadline, lowest_year,
		highest_year, organizer_kind, organizer_id, results, created_at,
		updated_at`

// ContestRepository handles persistence for contests and their files.
type ContestRepository struct {
	db *sql.DB
}

func NewContestRepository(db *sql.DB) *ContestRepository {
	return &ContestRepository{db: db}
}

func (r *ContestRepository) List(ctx context.Context) ([]types.Contest, error) {
	const query = `
		SELECT ` + contestColumns + `
		FROM contests
		ORDER BY date DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contests []types.Contest
	for rows.Next() {
		var contest types.Contest
		if err := rows.Scan(
			&contest.ID,
			&contest.Name,
			&contest.Place,
			&contest.Date,
			&contest.Deadline,
			&contest.LowestYear,
			&contest.HighestYear,
			&contest.Organizer.Kind,
			&contest.Organizer.ID,
			&contest.Results,
			&contest.CreatedAt,
			&contest.UpdatedAt,
		); err != nil {
			return nil, err
		}
		contests = append(contests, contest)
	}
	return contests, rows.Err()
}

func (r *ContestRepository) Get(ctx context.Context, id int) (types.Contest, error) {
	const query = `
		SELECT ` + contestColumns + `
		FROM contests
		WHERE id = $1`
	var contest types.Contest
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&contest.ID,
		&contest.Name,
		&contest.Place,
		&contest.Date,
		&contest.Deadline,
		&contest.LowestYear,
		&contest.HighestYear,
		&contest.Organizer.Kind,
		&contest.Organizer.ID,
		&contest.Results,
		&contest.CreatedAt,
		&contest.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Contest{}, ErrNotFound
		}
		return types.Contest{}, err
	}
	return contest, nil
}

func (r *ContestRepository) Create(ctx context.Context, contest types.Contest) (types.Contest, error) {
	now := time.Now()
	contest.CreatedAt = now
	contest.UpdatedAt = now

	const query = `
		INSERT INTO contests (name, place, date, deadline, lowest_year,
			highest_year, organizer_kind, organizer_id, results, created_at,
			updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		contest.Name,
		contest.Place,
		contest.Date,
		contest.Deadline,
		contest.LowestYear,
		contest.HighestYear,
		contest.Organizer.Kind,
		contest.Organizer.ID,
		contest.Results,
		contest.CreatedAt,
		contest.UpdatedAt,
	).Scan(&contest.ID); err != nil {
		return types.Contest{}, err
	}
	return contest, nil
}

func (r *ContestRepository) Update(ctx context.Context, contest types.Contest) (types.Contest, error) {
	contest.UpdatedAt = time.Now()

	const query = `
		UPDATE contests
		SET name = $1,
			place = $2,
			date = $3,
			deadline = $4,
			lowest_year = $5,
			highest_year = $6,
			organizer_kind = $7,
			organizer_id = $8,
			updated_at = $9
		WHERE id = $10`
	result, err := r.db.ExecContext(
		ctx,
		query,
		contest.Name,
		contest.Place,
		contest.Date,
		contest.Deadline,
		contest.LowestYear,
		contest.HighestYear,
		contest.Organizer.Kind,
		contest.Organizer.ID,
		contest.UpdatedAt,
		contest.ID,
	)
	if err != nil {
		return types.Contest{}, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return types.Contest{}, err
	}
	if affected == 0 {
		return types.Contest{}, ErrNotFound
	}
	return contest, nil
}

func (r *ContestRepository) SetResults(ctx context.Context, id int, results string) error {
	const query = `
		UPDATE contests
		SET results = $2,
			updated_at = $3
		WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, results, time.Now())
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ContestRepository) Delete(ctx context.Context, id int) error {
	const query = `DELETE FROM contests WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ContestRepository) AddFile(ctx context.Context, file types.ContestFile) (types.ContestFile, error) {
	file.UploadedAt = time.Now()

	const query = `
		INSERT INTO contest_files (contest_id, uploaded_by, name, object_key,
			content_type, size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	if err := r.db.QueryRowContext(
		ctx,
		query,
		file.ContestID,
		file.UploadedBy,
		file.Name,
		file.ObjectKey,
		file.ContentType,
		file.Size,
		file.UploadedAt,
	).Scan(&file.ID); err != nil {
		return types.ContestFile{}, err
	}
	return file, nil
}

func (r *ContestRepository) GetFile(ctx context.Context, contestID, fileID int) (types.ContestFile, error) {
	const query = `
		SELECT id, contest_id, uploaded_by, name, object_key, content_type, size, uploaded_at
		FROM contest_files
		WHERE id = $1 AND contest_id = $2`
	var file types.ContestFile
	err := r.db.QueryRowContext(ctx, query, fileID, contestID).Scan(
		&file.ID,
		&file.ContestID,
		&file.UploadedBy,
		&file.Name,
		&file.ObjectKey,
		&file.ContentType,
		&file.Size,
		&file.UploadedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ContestFile{}, ErrNotFound
		}
		return types.ContestFile{}, err
	}
	return file, nil
}

func (r *ContestRepository) ListFiles(ctx context.Context, contestID int) ([]types.ContestFile, error) {
	const query = `
		SELECT id, contest_id, uploaded_by, name, object_key, content_type, size, uploaded_at
		FROM contest_files
		WHERE contest_id = $1
		ORDER BY uploaded_at`
	rows, err := r.db.QueryContext(ctx, query, contestID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []types.ContestFile
	for rows.Next() {
		var file types.ContestFile
		if err := rows.Scan(
			&file.ID,
			&file.ContestID,
			&file.UploadedBy,
			&file.Name,
			&file.ObjectKey,
			&file.ContentType,
			&file.Size,
			&file.UploadedAt,
		); err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}
