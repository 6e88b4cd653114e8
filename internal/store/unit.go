package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/rush-contest/apiserver/types"
)

// UnitRepository handles persistence for clubs and schools.
type UnitRepository struct {
	db *sql.DB
}

func NewUnitRepository(db *sql.DB) *UnitRepository {
	return &UnitRepository{db: db}
}

func (r *UnitRepository) GetClub(ctx context.Context, id int) (types.Club, error) {
	const query = `SELECT id, name, code FROM clubs WHERE id = $1`
	var club types.Club
	err := r.db.QueryRowContext(ctx, query, id).Scan(&club.ID, &club.Name, &club.Code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Club{}, ErrNotFound
		}
		return types.Club{}, err
	}
	return club, nil
}

func (r *UnitRepository) GetSchool(ctx context.Context, id int) (types.School, error) {
	const query = `SELECT id, name FROM schools WHERE id = $1`
	var school types.School
	err := r.db.QueryRowContext(ctx, query, id).Scan(&school.ID, &school.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.School{}, ErrNotFound
		}
		return types.School{}, err
	}
	return school, nil
}

func (r *UnitRepository) ListClubs(ctx context.Context) ([]types.Club, error) {
	const query = `SELECT id, name, code FROM clubs ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clubs []types.Club
	for rows.Next() {
		var club types.Club
		if err := rows.Scan(&club.ID, &club.Name, &club.Code); err != nil {
			return nil, err
		}
		clubs = append(clubs, club)
	}
	return clubs, rows.Err()
}

func (r *UnitRepository) ListSchools(ctx context.Context) ([]types.School, error) {
	const query = `SELECT id, name FROM schools ORDER BY name`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schools []types.School
	for rows.Next() {
		var school types.School
		if err := rows.Scan(&school.ID, &school.Name); err != nil {
			return nil, err
		}
		schools = append(schools, school)
	}
	return schools, rows.Err()
}
