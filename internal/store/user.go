package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"podium.app/arena/internal/model"
)

type userStore struct {
	pool *pgxpool.Pool
}

func (s *userStore) GetByToken(ctx context.Context, token string) (*model.User, error) {
	const q = `
		SELECT u.id, u.name
		FROM users u
		JOIN user_tokens t ON t.user_id = u.id
		WHERE t.token = $1 AND t.expires_at > now()`

	var u model.User
	err := s.pool.QueryRow(ctx, q, token).Scan(&u.ID, &u.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) RolesFor(ctx context.Context, userID int64, divisionID string) ([]model.Role, error) {
	const q = `
		SELECT role
		FROM user_roles
		WHERE user_id = $1 AND division_id = $2`

	rows, err := s.pool.Query(ctx, q, userID, divisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var r model.Role
		if err := rows.Scan(&r); err != nil {
			return nil, err
		}
		roles = append(roles, r)
	}
	return roles, rows.Err()
}
