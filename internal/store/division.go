package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"podium.app/arena/internal/model"
)

type divisionStore struct {
	pool *pgxpool.Pool
}

func (s *divisionStore) GetByID(ctx context.Context, id string) (*model.Division, error) {
	const q = `
		SELECT id, name, match_length_seconds, judging_session_length_seconds
		FROM divisions
		WHERE id = $1`

	var d model.Division
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&d.ID,
		&d.Name,
		&d.Schedule.MatchLengthSeconds,
		&d.Schedule.JudgingSessionLengthSeconds,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

func (s *divisionStore) GetState(ctx context.Context, divisionID string) (*model.DivisionState, error) {
	const q = `
		SELECT division_id, active_match_id, loaded_match_id, current_stage
		FROM division_states
		WHERE division_id = $1`

	var st model.DivisionState
	err := s.pool.QueryRow(ctx, q, divisionID).Scan(
		&st.DivisionID,
		&st.ActiveMatchID,
		&st.LoadedMatchID,
		&st.CurrentStage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}

func (s *divisionStore) SetActiveMatch(ctx context.Context, divisionID string, matchID *string) error {
	const q = `UPDATE division_states SET active_match_id = $2 WHERE division_id = $1`

	tag, err := s.pool.Exec(ctx, q, divisionID, matchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *divisionStore) SetLoadedMatch(ctx context.Context, divisionID string, matchID *string) error {
	const q = `UPDATE division_states SET loaded_match_id = $2 WHERE division_id = $1`

	tag, err := s.pool.Exec(ctx, q, divisionID, matchID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *divisionStore) AdvanceStage(ctx context.Context, divisionID string, from, to model.Stage) (bool, error) {
	const q = `
		UPDATE division_states
		SET current_stage = $3
		WHERE division_id = $1 AND current_stage = $2`

	tag, err := s.pool.Exec(ctx, q, divisionID, from, to)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
