package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"podium.app/arena/internal/model"
)

type sessionStore struct {
	pool *pgxpool.Pool
}

func (s *sessionStore) GetByID(ctx context.Context, id string) (*model.JudgingSession, error) {
	const q = `
		SELECT id, division_id, room_id, number, scheduled_time, team_id
		FROM judging_sessions
		WHERE id = $1`

	var js model.JudgingSession
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&js.ID,
		&js.DivisionID,
		&js.RoomID,
		&js.Number,
		&js.ScheduledTime,
		&js.TeamID,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &js, nil
}

func (s *sessionStore) ListByRoom(ctx context.Context, divisionID, roomID string) ([]model.JudgingSession, error) {
	const q = `
		SELECT id, division_id, room_id, number, scheduled_time, team_id
		FROM judging_sessions
		WHERE division_id = $1 AND room_id = $2
		ORDER BY scheduled_time`

	rows, err := s.pool.Query(ctx, q, divisionID, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []model.JudgingSession
	for rows.Next() {
		var js model.JudgingSession
		if err := rows.Scan(&js.ID, &js.DivisionID, &js.RoomID, &js.Number, &js.ScheduledTime, &js.TeamID); err != nil {
			return nil, err
		}
		sessions = append(sessions, js)
	}
	return sessions, rows.Err()
}
