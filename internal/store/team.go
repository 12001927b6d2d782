package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type teamStore struct {
	pool *pgxpool.Pool
}

func (s *teamStore) CheckedIn(ctx context.Context, divisionID, teamID string) (bool, error) {
	const q = `SELECT checked_in FROM teams WHERE id = $1 AND division_id = $2`

	var checkedIn bool
	err := s.pool.QueryRow(ctx, q, teamID, divisionID).Scan(&checkedIn)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return checkedIn, nil
}
