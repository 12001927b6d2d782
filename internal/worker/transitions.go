package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podium.app/arena/internal/event"
	"podium.app/arena/internal/model"
	"podium.app/arena/internal/schedq"
	"podium.app/arena/internal/service"
	"podium.app/arena/internal/store"
)

// Publisher emits division-scoped events after a transition commits.
type Publisher interface {
	Publish(ctx context.Context, divisionID string, p event.Payload) error
}

// Transitions holds the handlers for scheduled lifecycle transitions. Every
// handler is idempotent: a job firing against an activity that already left
// the in-progress state is dropped without error.
type Transitions struct {
	divisions store.DivisionStore
	matches   store.MatchStore
	sessions  store.SessionStore
	states    store.ActivityStateStore
	bus       Publisher
}

func NewTransitions(
	divisions store.DivisionStore,
	matches store.MatchStore,
	sessions store.SessionStore,
	states store.ActivityStateStore,
	bus Publisher,
) *Transitions {
	return &Transitions{
		divisions: divisions,
		matches:   matches,
		sessions:  sessions,
		states:    states,
		bus:       bus,
	}
}

func (t *Transitions) Register(w *Worker) {
	w.Register(schedq.EventMatchCompleted, t.HandleMatchCompleted)
	w.Register(schedq.EventMatchEndgame, t.HandleMatchEndgame)
	w.Register(schedq.EventSessionCompleted, t.HandleSessionCompleted)
}

// HandleMatchCompleted moves a running match out of in-progress when its
// clock expires, clears the division's active match and loads the next
// eligible match.
func (t *Transitions) HandleMatchCompleted(ctx context.Context, job schedq.Job) error {
	matchID := job.Metadata["matchId"]
	if matchID == "" {
		slog.WarnContext(ctx, "match-completed job without matchId, dropping")
		return nil
	}

	match, err := t.matches.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "match gone before completion job fired, dropping", "match_id", matchID)
			return nil
		}
		return fmt.Errorf("failed to load match: %w", err)
	}

	state, err := t.states.GetMatchState(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "match state missing, dropping", "match_id", matchID)
			return nil
		}
		return fmt.Errorf("failed to load match state: %w", err)
	}
	if state.Status != model.StatusInProgress {
		slog.InfoContext(ctx, "match no longer in progress, completion job is stale",
			"match_id", matchID, "status", state.Status)
		return nil
	}

	// Test matches return to the pool instead of completing.
	var ok bool
	if match.Stage == model.StageTest {
		ok, err = t.states.ResetMatchIfInProgress(ctx, matchID)
	} else {
		ok, err = t.states.CompleteMatchIfInProgress(ctx, matchID)
	}
	if err != nil {
		return fmt.Errorf("failed to transition match state: %w", err)
	}
	if !ok {
		slog.InfoContext(ctx, "lost completion race, match already transitioned", "match_id", matchID)
		return nil
	}

	if err := t.divisions.SetActiveMatch(ctx, match.DivisionID, nil); err != nil {
		return fmt.Errorf("failed to clear active match: %w", err)
	}

	var autoLoadedID *string
	if match.Stage != model.StageTest {
		next, findErr := service.FindAutoLoadMatch(ctx, t.matches, t.states, match.DivisionID, match.Stage, matchID, time.Now(), service.AutoLoadThreshold)
		if findErr != nil {
			slog.WarnContext(ctx, "auto-load lookup failed", "error", findErr)
		} else if next != nil {
			if err := t.divisions.SetLoadedMatch(ctx, match.DivisionID, &next.ID); err != nil {
				slog.WarnContext(ctx, "failed to set loaded match", "error", err, "next_match_id", next.ID)
			} else {
				autoLoadedID = &next.ID
			}
		}
	}

	if err := t.bus.Publish(ctx, match.DivisionID, event.MatchCompleted{
		MatchID:           matchID,
		AutoLoadedMatchID: autoLoadedID,
	}); err != nil {
		return fmt.Errorf("failed to publish match completion: %w", err)
	}

	slog.InfoContext(ctx, "match completed", "match_id", matchID, "stage", match.Stage)
	return nil
}

// HandleMatchEndgame announces the endgame period of a running match. Stale
// jobs, fired after the match already ended or was aborted, are dropped.
func (t *Transitions) HandleMatchEndgame(ctx context.Context, job schedq.Job) error {
	matchID := job.Metadata["matchId"]
	if matchID == "" {
		slog.WarnContext(ctx, "endgame job without matchId, dropping")
		return nil
	}

	match, err := t.matches.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "match gone before endgame job fired, dropping", "match_id", matchID)
			return nil
		}
		return fmt.Errorf("failed to load match: %w", err)
	}

	state, err := t.states.GetMatchState(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load match state: %w", err)
	}
	if state.Status != model.StatusInProgress {
		slog.InfoContext(ctx, "match not in progress, endgame job is stale",
			"match_id", matchID, "status", state.Status)
		return nil
	}

	if err := t.bus.Publish(ctx, match.DivisionID, event.MatchEndgameTriggered{MatchID: matchID}); err != nil {
		return fmt.Errorf("failed to publish endgame event: %w", err)
	}
	return nil
}

// HandleSessionCompleted completes a judging session when its clock expires.
func (t *Transitions) HandleSessionCompleted(ctx context.Context, job schedq.Job) error {
	sessionID := job.Metadata["sessionId"]
	if sessionID == "" {
		slog.WarnContext(ctx, "session-completed job without sessionId, dropping")
		return nil
	}

	session, err := t.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.WarnContext(ctx, "session gone before completion job fired, dropping", "session_id", sessionID)
			return nil
		}
		return fmt.Errorf("failed to load judging session: %w", err)
	}

	state, err := t.states.GetSessionState(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to load session state: %w", err)
	}
	if state.Status != model.StatusInProgress {
		slog.InfoContext(ctx, "session no longer in progress, completion job is stale",
			"session_id", sessionID, "status", state.Status)
		return nil
	}

	ok, err := t.states.CompleteSessionIfInProgress(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to complete session state: %w", err)
	}
	if !ok {
		slog.InfoContext(ctx, "lost completion race, session already transitioned", "session_id", sessionID)
		return nil
	}

	if err := t.bus.Publish(ctx, session.DivisionID, event.SessionCompleted{SessionID: sessionID}); err != nil {
		return fmt.Errorf("failed to publish session completion: %w", err)
	}

	slog.InfoContext(ctx, "judging session completed", "session_id", sessionID)
	return nil
}
