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

// JudgingService drives the judging session lifecycle.
type JudgingService struct {
	divisions store.DivisionStore
	sessions  store.SessionStore
	teams     store.TeamStore
	states    store.ActivityStateStore
	auth      Authorizer
	bus       Publisher
	queue     Scheduler

	now func() time.Time
}

func NewJudgingService(
	divisions store.DivisionStore,
	sessions store.SessionStore,
	teams store.TeamStore,
	states store.ActivityStateStore,
	auth Authorizer,
	bus Publisher,
	queue Scheduler,
) *JudgingService {
	return &JudgingService{
		divisions: divisions,
		sessions:  sessions,
		teams:     teams,
		states:    states,
		auth:      auth,
		bus:       bus,
		queue:     queue,
		now:       time.Now,
	}
}

// Start begins a judging session. A room hosts at most one running session
// at a time.
func (s *JudgingService) Start(ctx context.Context, user *model.User, divisionID, sessionID string) (*StartResult, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DivisionID: logger.Ptr(divisionID),
		SessionID:  logger.Ptr(sessionID),
		Component:  "arena.judging",
	})

	if err := s.auth.Authorize(ctx, user, divisionID, model.RoleJudge, model.RoleLeadJudge); err != nil {
		return nil, err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "judging session %s not found", sessionID)
		}
		return nil, fmt.Errorf("failed to load judging session: %w", err)
	}
	if session.DivisionID != divisionID {
		return nil, apperr.New(apperr.CodeNotFound, "judging session %s not found", sessionID)
	}

	division, err := s.divisions.GetByID(ctx, divisionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "division %s not found", divisionID)
		}
		return nil, fmt.Errorf("failed to load division: %w", err)
	}

	state, err := s.states.GetSessionState(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeNotFound, "judging session %s has no state", sessionID)
		}
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}
	if state.Status != model.StatusNotStarted {
		return nil, apperr.New(apperr.CodeConflict, "judging session is %s", state.Status)
	}

	if session.TeamID == nil {
		return nil, apperr.New(apperr.CodeConflict, "judging session has no team assigned")
	}
	checkedIn, err := s.teams.CheckedIn(ctx, divisionID, *session.TeamID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.New(apperr.CodeConflict, "team %s is not registered in this division", *session.TeamID)
		}
		return nil, fmt.Errorf("failed to check team %s: %w", *session.TeamID, err)
	}
	if !checkedIn {
		return nil, apperr.New(apperr.CodeConflict, "team %s has not checked in", *session.TeamID)
	}

	if err := s.checkRoomFree(ctx, session); err != nil {
		return nil, err
	}

	now := s.now()
	if session.ScheduledTime.Sub(now) > PreStartWindow {
		return nil, apperr.New(apperr.CodeConflict,
			"judging session is scheduled for %s, too early to start", session.ScheduledTime.Format(time.RFC3339))
	}
	startDelta := int(now.Sub(session.ScheduledTime).Round(time.Second).Seconds())

	ok, err := s.states.StartSession(ctx, sessionID, now, startDelta)
	if err != nil {
		return nil, fmt.Errorf("failed to start judging session: %w", err)
	}
	if !ok {
		return nil, apperr.New(apperr.CodeConflict, "judging session was started concurrently")
	}

	if err := s.bus.Publish(ctx, divisionID, event.SessionStarted{
		SessionID:  sessionID,
		StartTime:  now,
		StartDelta: startDelta,
	}); err != nil {
		slog.ErrorContext(ctx, "failed to publish session start", "error", err)
	}

	length := time.Duration(division.Schedule.JudgingSessionLengthSeconds) * time.Second
	if err := s.queue.Enqueue(ctx, schedq.Job{
		EventType:  schedq.EventSessionCompleted,
		DivisionID: divisionID,
		Metadata:   map[string]string{"sessionId": sessionID},
	}, length); err != nil {
		slog.ErrorContext(ctx, "failed to schedule session completion job", "error", err)
	}

	slog.InfoContext(ctx, "judging session started", "room_id", session.RoomID, "start_delta", startDelta)
	return &StartResult{StartTime: now, StartDelta: startDelta}, nil
}

// Abort cancels a running judging session and returns it to not-started.
func (s *JudgingService) Abort(ctx context.Context, user *model.User, divisionID, sessionID string) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DivisionID: logger.Ptr(divisionID),
		SessionID:  logger.Ptr(sessionID),
		Component:  "arena.judging",
	})

	if err := s.auth.Authorize(ctx, user, divisionID, model.RoleJudge, model.RoleLeadJudge); err != nil {
		return err
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "judging session %s not found", sessionID)
		}
		return fmt.Errorf("failed to load judging session: %w", err)
	}
	if session.DivisionID != divisionID {
		return apperr.New(apperr.CodeNotFound, "judging session %s not found", sessionID)
	}

	state, err := s.states.GetSessionState(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.New(apperr.CodeNotFound, "judging session %s has no state", sessionID)
		}
		return fmt.Errorf("failed to load session state: %w", err)
	}
	if state.Status != model.StatusInProgress {
		return apperr.New(apperr.CodeConflict, "judging session is %s", state.Status)
	}

	meta := map[string]string{"sessionId": sessionID}
	if _, err := s.queue.Dequeue(ctx, schedq.EventSessionCompleted, divisionID, meta); err != nil {
		slog.WarnContext(ctx, "failed to dequeue pending job", "error", err)
	}

	ok, err := s.states.ResetSessionIfInProgress(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to reset judging session: %w", err)
	}
	if !ok {
		return apperr.New(apperr.CodeConflict, "judging session already left the running state")
	}

	if err := s.bus.Publish(ctx, divisionID, event.SessionAborted{SessionID: sessionID}); err != nil {
		slog.ErrorContext(ctx, "failed to publish session abort", "error", err)
	}

	slog.InfoContext(ctx, "judging session aborted")
	return nil
}

// checkRoomFree rejects the start while another session is running in the
// same room.
func (s *JudgingService) checkRoomFree(ctx context.Context, session *model.JudgingSession) error {
	roomSessions, err := s.sessions.ListByRoom(ctx, session.DivisionID, session.RoomID)
	if err != nil {
		return fmt.Errorf("failed to list sessions for room %s: %w", session.RoomID, err)
	}
	for _, other := range roomSessions {
		if other.ID == session.ID {
			continue
		}
		otherState, err := s.states.GetSessionState(ctx, other.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return fmt.Errorf("failed to load state for session %s: %w", other.ID, err)
		}
		if otherState.Status == model.StatusInProgress {
			return apperr.New(apperr.CodeConflict, "room %s already has a session in progress", session.RoomID)
		}
	}
	return nil
}
