package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podium.app/arena/common/apperr"
	"podium.app/arena/common/logger"
	"podium.app/arena/internal/event"
	"podium.app/arena/internal/model"
	"podium.app/arena/internal/schedq"
	"podium.app/arena/internal/store"
)

// PreStartWindow is how early a match may be started ahead of its scheduled
// time.
const PreStartWindow = 5 * time.Minute

// endgameFraction of the match length at which the endgame announcement
// fires.
const endgameFraction = 0.8

// StartResult reports the committed start of an activity.
type StartResult struct {
	StartTime  time.Time
	StartDelta int
}

// MatchService drives the robot game match lifecycle.
type MatchService struct {
	divisions store.DivisionStore
	matches   store.MatchStore
	teams     store.TeamStore
	states    store.ActivityStateStore
	auth      Authorizer
	bus       Publisher
	queue     Scheduler

	now func() time.Time
}

func NewMatchService(
	divisions store.DivisionStore,
	matches store.MatchStore,
	teams store.TeamStore,
	states store.ActivityStateStore,
	auth Authorizer,
	bus Publisher,
	queue Scheduler,
) *MatchService {
	return &MatchService{
		divisions: divisions,
		matches:   matches,
		teams:     teams,
		states:    states,
		auth:      auth,
		bus:       bus,
		queue:     queue,
		now:       time.Now,
	}
}

// Start begins a match. All preconditions are checked up front, then the
// start is committed with a guarded write; everything after the commit
// (scheduling, staging the next match) is best effort and never unwinds a
// started match.
func (s *MatchService) Start(ctx context.Context, user *model.User, divisionID, matchID string) (*StartResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DivisionID: logger.Ptr(divisionID),
		MatchID:    logger.Ptr(matchID),
		Component:  "arena.match",
	})

	if err := s.auth.Authorize(ctx, user, divisionID, model.RoleReferee, model.RoleHeadReferee, model.RoleScorekeeper); err != nil {
		return nil, err
	}

	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "match %s not found", matchID)
		}
		return nil, fmt.Errorf("failed to load match: %w", err)
	}
	if match.DivisionID != divisionID {
		return nil, apperr.New(apperr.CodeNotFound, "match %s not found", matchID)
	}

	division, err := s.divisions.GetByID(ctx, divisionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "division %s not found", divisionID)
		}
		return nil, fmt.Errorf("failed to load division: %w", err)
	}

	state, err := s.states.GetMatchState(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "match %s has no state", matchID)
		}
		return nil, fmt.Errorf("failed to load match state: %w", err)
	}
	if state.Status != model.StatusNotStarted {
		return nil, apperr.New(apperr.CodeConflict, "match is %s", state.Status)
	}

	if !match.HasParticipant() {
		return nil, apperr.New(apperr.CodeConflict, "match has no teams assigned")
	}
	for _, teamID := range match.TeamIDs() {
		checkedIn, err := s.teams.CheckedIn(ctx, divisionID, teamID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.New(apperr.CodeConflict, "team %s is not registered in this division", teamID)
			}
			return nil, fmt.Errorf("failed to check team %s: %w", teamID, err)
		}
		if !checkedIn {
			return nil, apperr.New(apperr.CodeConflict, "team %s has not checked in", teamID)
		}
	}

	now := s.now()
	if match.ScheduledTime.Sub(now) > PreStartWindow {
		return nil, apperr.New(apperr.CodeConflict,
			"match is scheduled for %s, too early to start", match.ScheduledTime.Format(time.RFC3339))
	}
	startDelta := int(now.Sub(match.ScheduledTime).Round(time.Second).Seconds())

	ok, err := s.states.StartMatch(ctx, matchID, now, startDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to start match: %w", err)
	}
	if !ok {
		return nil, apperr.New(apperr.CodeConflict, "match was started concurrently")
	}

	s.maybeAdvanceStage(ctx, divisionID, match.Stage)

	if err := s.divisions.SetActiveMatch(ctx, divisionID, &matchID); err != nil {
		slog.ErrorContext(ctx, "failed to set active match", "error", err)
	}

	if err := s.bus.Publish(ctx, divisionID, event.MatchStarted{
		MatchID:    matchID,
		StartTime:  now,
		StartDelta: startDelta,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to publish match start", "error", err)
	}

	s.loadNextMatch(ctx, match, now)
	s.scheduleTransitions(ctx, match, division.Schedule.MatchLengthSeconds)

	slog.InfoContext(ctx, "match started", "stage", match.Stage, "start_delta", startDelta)
	return &StartResult{StartTime: now, StartDelta: startDelta}, nil
}

// Abort cancels a running match and returns it to not-started. Pending
// transition jobs are removed on a best effort basis; the worker drops any
// that slip through because the state guard no longer matches.
func (s *MatchService) Abort(ctx context.Context, user *model.User, divisionID, matchID string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DivisionID: logger.Ptr(divisionID),
		MatchID:    logger.Ptr(matchID),
		Component:  "arena.match",
	})

	if err := s.auth.Authorize(ctx, user, divisionID, model.RoleReferee, model.RoleHeadReferee, model.RoleScorekeeper); err != nil {
		return err
	}

	match, err := s.matches.GetByID(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "match %s not found", matchID)
		}
		return fmt.Errorf("failed to load match: %w", err)
	}
	if match.DivisionID != divisionID {
		return apperr.New(apperr.CodeNotFound, "match %s not found", matchID)
	}

	state, err := s.states.GetMatchState(ctx, matchID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "match %s has no state", matchID)
		}
		return fmt.Errorf("failed to load match state: %w", err)
	}
	if state.Status != model.StatusInProgress {
		return apperr.New(apperr.CodeConflict, "match is %s", state.Status)
	}

	meta := map[string]string{"matchId": matchID}
	for _, eventType := range []string{schedq.EventMatchCompleted, schedq.EventMatchEndgame} {
		if _, err := s.queue.Dequeue(ctx, eventType, divisionID, meta); err != nil {
			slog.WarnContext(ctx, "failed to dequeue pending job", "error", err, "event_type", eventType)
		}
	}

	ok, err := s.states.ResetMatchIfInProgress(ctx, matchID)
	if err != nil {
		return fmt.Errorf("failed to reset match: %w", err)
	}
	if !ok {
		return apperr.New(apperr.CodeConflict, "match already left the running state")
	}

	if err := s.divisions.SetActiveMatch(ctx, divisionID, nil); err != nil {
		slog.ErrorContext(ctx, "failed to clear active match", "error", err)
	}

	if err := s.bus.Publish(ctx, divisionID, event.MatchAborted{MatchID: matchID}); err != nil {
		slog.ErrorContext(ctx, "failed to publish match abort", "error", err)
	}

	slog.InfoContext(ctx, "match aborted")
	return nil
}

// maybeAdvanceStage flips the division from practice to ranking when the
// first ranking match starts.
func (s *MatchService) maybeAdvanceStage(ctx context.Context, divisionID string, matchStage model.Stage) {
	if matchStage != model.StageRanking {
		return
	}
	advanced, err := s.divisions.AdvanceStage(ctx, divisionID, model.StagePractice, model.StageRanking)
	if err != nil {
		slog.ErrorContext(ctx, "failed to advance division stage", "error", err)
		return
	}
	if !advanced {
		return
	}
	if err := s.bus.Publish(ctx, divisionID, event.MatchStageAdvanced{Stage: string(model.StageRanking)}); err != nil {
		slog.ErrorContext(ctx, "failed to publish stage advance", "error", err)
	}
}

// loadNextMatch stages the upcoming match for the field crew. Test matches
// never participate in the staged rotation.
func (s *MatchService) loadNextMatch(ctx context.Context, started *model.Match, now time.Time) {
	if started.Stage == model.StageTest {
		return
	}

	next, err := FindAutoLoadMatch(ctx, s.matches, s.states, started.DivisionID, started.Stage, started.ID, now, AutoLoadThreshold)
	if err != nil {
		slog.WarnContext(ctx, "auto-load lookup failed", "error", err)
		return
	}

	var nextID *string
	if next != nil {
		nextID = &next.ID
	}
	if err := s.divisions.SetLoadedMatch(ctx, started.DivisionID, nextID); err != nil {
		slog.WarnContext(ctx, "failed to set loaded match", "error", err)
		return
	}
	if next != nil {
		if err := s.bus.Publish(ctx, started.DivisionID, event.MatchLoaded{MatchID: next.ID}); err != nil {
			slog.WarnContext(ctx, "failed to publish match load", "error", err)
		}
	}
}

func (s *MatchService) scheduleTransitions(ctx context.Context, match *model.Match, matchLengthSeconds int) {
	length := time.Duration(matchLengthSeconds) * time.Second
	endgame := time.Duration(float64(length) * endgameFraction)
	meta := map[string]string{"matchId": match.ID}

	if err := s.queue.Enqueue(ctx, schedq.Job{
		EventType:  schedq.EventMatchEndgame,
		DivisionID: match.DivisionID,
		Metadata:   meta,
	}, endgame); err != nil {
		slog.ErrorContext(ctx, "failed to schedule endgame job", "error", err)
	}

	if err := s.queue.Enqueue(ctx, schedq.Job{
		EventType:  schedq.EventMatchCompleted,
		DivisionID: match.DivisionID,
		Metadata:   meta,
	}, length); err != nil {
		slog.ErrorContext(ctx, "failed to schedule completion job", "error", err)
	}
}
