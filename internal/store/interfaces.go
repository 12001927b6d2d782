// Package store provides data access for tournament entities, backed by
// PostgreSQL through pgx.
package store

import (
	"context"
	"errors"
	"time"

	"podium.app/arena/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// DivisionStore handles division and division-state operations.
type DivisionStore interface {
	GetByID(ctx context.Context, id string) (*model.Division, error)
	GetState(ctx context.Context, divisionID string) (*model.DivisionState, error)
	SetActiveMatch(ctx context.Context, divisionID string, matchID *string) error
	SetLoadedMatch(ctx context.Context, divisionID string, matchID *string) error
	// AdvanceStage moves the division from one stage to another. It reports
	// false when the division was no longer in the expected stage.
	AdvanceStage(ctx context.Context, divisionID string, from, to model.Stage) (bool, error)
}

// MatchStore handles robot game match lookups.
type MatchStore interface {
	GetByID(ctx context.Context, id string) (*model.Match, error)
	// ListByStage returns the division's matches for a stage ordered by
	// scheduled time.
	ListByStage(ctx context.Context, divisionID string, stage model.Stage) ([]model.Match, error)
}

// SessionStore handles judging session lookups.
type SessionStore interface {
	GetByID(ctx context.Context, id string) (*model.JudgingSession, error)
	ListByRoom(ctx context.Context, divisionID, roomID string) ([]model.JudgingSession, error)
}

// TeamStore handles team lookups.
type TeamStore interface {
	CheckedIn(ctx context.Context, divisionID, teamID string) (bool, error)
}

// UserStore handles volunteer authentication and role lookups.
type UserStore interface {
	GetByToken(ctx context.Context, token string) (*model.User, error)
	RolesFor(ctx context.Context, userID int64, divisionID string) ([]model.Role, error)
}

// ActivityStateStore mutates match and session lifecycle state. Every
// transition is a conditional write guarded on the current status; the bool
// result reports whether the row was actually moved, so racing writers can
// detect a lost transition.
type ActivityStateStore interface {
	GetMatchState(ctx context.Context, matchID string) (*model.ActivityState, error)
	GetSessionState(ctx context.Context, sessionID string) (*model.ActivityState, error)

	StartMatch(ctx context.Context, matchID string, startTime time.Time, startDelta int) (bool, error)
	CompleteMatchIfInProgress(ctx context.Context, matchID string) (bool, error)
	ResetMatchIfInProgress(ctx context.Context, matchID string) (bool, error)

	StartSession(ctx context.Context, sessionID string, startTime time.Time, startDelta int) (bool, error)
	CompleteSessionIfInProgress(ctx context.Context, sessionID string) (bool, error)
	ResetSessionIfInProgress(ctx context.Context, sessionID string) (bool, error)
}
