package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"podium.app/arena/internal/model"
)

type matchStore struct {
	pool *pgxpool.Pool
}

func (s *matchStore) GetByID(ctx context.Context, id string) (*model.Match, error) {
	const q = `
		SELECT id, division_id, number, stage, scheduled_time
		FROM matches
		WHERE id = $1`

	var m model.Match
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&m.ID,
		&m.DivisionID,
		&m.Number,
		&m.Stage,
		&m.ScheduledTime,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	participants, err := s.participants(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	m.Participants = participants
	return &m, nil
}

func (s *matchStore) ListByStage(ctx context.Context, divisionID string, stage model.Stage) ([]model.Match, error) {
	const q = `
		SELECT id, division_id, number, stage, scheduled_time
		FROM matches
		WHERE division_id = $1 AND stage = $2
		ORDER BY scheduled_time`

	rows, err := s.pool.Query(ctx, q, divisionID, stage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []model.Match
	for rows.Next() {
		var m model.Match
		if err := rows.Scan(&m.ID, &m.DivisionID, &m.Number, &m.Stage, &m.ScheduledTime); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range matches {
		participants, err := s.participants(ctx, matches[i].ID)
		if err != nil {
			return nil, err
		}
		matches[i].Participants = participants
	}
	return matches, nil
}

func (s *matchStore) participants(ctx context.Context, matchID string) ([]model.MatchParticipant, error) {
	const q = `
		SELECT table_name, team_id
		FROM match_participants
		WHERE match_id = $1
		ORDER BY table_name`

	rows, err := s.pool.Query(ctx, q, matchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []model.MatchParticipant
	for rows.Next() {
		var p model.MatchParticipant
		if err := rows.Scan(&p.Table, &p.TeamID); err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}
