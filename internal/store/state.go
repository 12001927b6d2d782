package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"podium.app/arena/internal/model"
)

type activityStateStore struct {
	pool *pgxpool.Pool
}

func (s *activityStateStore) GetMatchState(ctx context.Context, matchID string) (*model.ActivityState, error) {
	return s.getState(ctx, "match_states", "match_id", matchID)
}

func (s *activityStateStore) GetSessionState(ctx context.Context, sessionID string) (*model.ActivityState, error) {
	return s.getState(ctx, "judging_session_states", "session_id", sessionID)
}

// StartMatch moves the match to in-progress only when it is still
// not-started.
func (s *activityStateStore) StartMatch(ctx context.Context, matchID string, startTime time.Time, startDelta int) (bool, error) {
	const q = `
		UPDATE match_states
		SET status = 'in-progress', start_time = $2, start_delta = $3
		WHERE match_id = $1 AND status = 'not-started'`

	tag, err := s.pool.Exec(ctx, q, matchID, startTime, startDelta)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *activityStateStore) CompleteMatchIfInProgress(ctx context.Context, matchID string) (bool, error) {
	const q = `
		UPDATE match_states
		SET status = 'completed'
		WHERE match_id = $1 AND status = 'in-progress'`

	tag, err := s.pool.Exec(ctx, q, matchID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ResetMatchIfInProgress returns the match to not-started, clearing the
// start fields. Used by aborts and by test match completion.
func (s *activityStateStore) ResetMatchIfInProgress(ctx context.Context, matchID string) (bool, error) {
	const q = `
		UPDATE match_states
		SET status = 'not-started', start_time = NULL, start_delta = 0
		WHERE match_id = $1 AND status = 'in-progress'`

	tag, err := s.pool.Exec(ctx, q, matchID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *activityStateStore) StartSession(ctx context.Context, sessionID string, startTime time.Time, startDelta int) (bool, error) {
	const q = `
		UPDATE judging_session_states
		SET status = 'in-progress', start_time = $2, start_delta = $3
		WHERE session_id = $1 AND status = 'not-started'`

	tag, err := s.pool.Exec(ctx, q, sessionID, startTime, startDelta)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *activityStateStore) CompleteSessionIfInProgress(ctx context.Context, sessionID string) (bool, error) {
	const q = `
		UPDATE judging_session_states
		SET status = 'completed'
		WHERE session_id = $1 AND status = 'in-progress'`

	tag, err := s.pool.Exec(ctx, q, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *activityStateStore) ResetSessionIfInProgress(ctx context.Context, sessionID string) (bool, error) {
	const q = `
		UPDATE judging_session_states
		SET status = 'not-started', start_time = NULL, start_delta = 0
		WHERE session_id = $1 AND status = 'in-progress'`

	tag, err := s.pool.Exec(ctx, q, sessionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *activityStateStore) getState(ctx context.Context, table, idColumn, id string) (*model.ActivityState, error) {
	q := `SELECT ` + idColumn + `, status, start_time, start_delta FROM ` + table + ` WHERE ` + idColumn + ` = $1`

	var st model.ActivityState
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&st.ActivityID,
		&st.Status,
		&st.StartTime,
		&st.StartDelta,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &st, nil
}
