package service_test

import (
	"context"
	"time"

	"podium.app/arena/internal/event"
	"podium.app/arena/internal/model"
	"podium.app/arena/internal/schedq"
)

type mockDivisionStore struct {
	getByIDFn        func(ctx context.Context, id string) (*model.Division, error)
	getStateFn       func(ctx context.Context, divisionID string) (*model.DivisionState, error)
	setActiveMatchFn func(ctx context.Context, divisionID string, matchID *string) error
	setLoadedMatchFn func(ctx context.Context, divisionID string, matchID *string) error
	advanceStageFn   func(ctx context.Context, divisionID string, from, to model.Stage) (bool, error)
}

func (m *mockDivisionStore) GetByID(ctx context.Context, id string) (*model.Division, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return &model.Division{ID: id, Schedule: model.ScheduleSettings{
		MatchLengthSeconds:          150,
		JudgingSessionLengthSeconds: 1620,
	}}, nil
}

func (m *mockDivisionStore) GetState(ctx context.Context, divisionID string) (*model.DivisionState, error) {
	if m.getStateFn != nil {
		return m.getStateFn(ctx, divisionID)
	}
	return &model.DivisionState{DivisionID: divisionID, CurrentStage: model.StageRanking}, nil
}

func (m *mockDivisionStore) SetActiveMatch(ctx context.Context, divisionID string, matchID *string) error {
	if m.setActiveMatchFn != nil {
		return m.setActiveMatchFn(ctx, divisionID, matchID)
	}
	return nil
}

func (m *mockDivisionStore) SetLoadedMatch(ctx context.Context, divisionID string, matchID *string) error {
	if m.setLoadedMatchFn != nil {
		return m.setLoadedMatchFn(ctx, divisionID, matchID)
	}
	return nil
}

func (m *mockDivisionStore) AdvanceStage(ctx context.Context, divisionID string, from, to model.Stage) (bool, error) {
	if m.advanceStageFn != nil {
		return m.advanceStageFn(ctx, divisionID, from, to)
	}
	return false, nil
}

type mockMatchStore struct {
	getByIDFn     func(ctx context.Context, id string) (*model.Match, error)
	listByStageFn func(ctx context.Context, divisionID string, stage model.Stage) ([]model.Match, error)
}

func (m *mockMatchStore) GetByID(ctx context.Context, id string) (*model.Match, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockMatchStore) ListByStage(ctx context.Context, divisionID string, stage model.Stage) ([]model.Match, error) {
	if m.listByStageFn != nil {
		return m.listByStageFn(ctx, divisionID, stage)
	}
	return nil, nil
}

type mockSessionStore struct {
	getByIDFn    func(ctx context.Context, id string) (*model.JudgingSession, error)
	listByRoomFn func(ctx context.Context, divisionID, roomID string) ([]model.JudgingSession, error)
}

func (m *mockSessionStore) GetByID(ctx context.Context, id string) (*model.JudgingSession, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionStore) ListByRoom(ctx context.Context, divisionID, roomID string) ([]model.JudgingSession, error) {
	if m.listByRoomFn != nil {
		return m.listByRoomFn(ctx, divisionID, roomID)
	}
	return nil, nil
}

type mockTeamStore struct {
	checkedInFn func(ctx context.Context, divisionID, teamID string) (bool, error)
}

func (m *mockTeamStore) CheckedIn(ctx context.Context, divisionID, teamID string) (bool, error) {
	if m.checkedInFn != nil {
		return m.checkedInFn(ctx, divisionID, teamID)
	}
	return true, nil
}

type mockUserStore struct {
	getByTokenFn func(ctx context.Context, token string) (*model.User, error)
	rolesForFn   func(ctx context.Context, userID int64, divisionID string) ([]model.Role, error)
}

func (m *mockUserStore) GetByToken(ctx context.Context, token string) (*model.User, error) {
	if m.getByTokenFn != nil {
		return m.getByTokenFn(ctx, token)
	}
	return nil, nil
}

func (m *mockUserStore) RolesFor(ctx context.Context, userID int64, divisionID string) ([]model.Role, error) {
	if m.rolesForFn != nil {
		return m.rolesForFn(ctx, userID, divisionID)
	}
	return nil, nil
}

type mockStateStore struct {
	getMatchStateFn               func(ctx context.Context, matchID string) (*model.ActivityState, error)
	getSessionStateFn             func(ctx context.Context, sessionID string) (*model.ActivityState, error)
	startMatchFn                  func(ctx context.Context, matchID string, startTime time.Time, startDelta int) (bool, error)
	completeMatchIfInProgressFn   func(ctx context.Context, matchID string) (bool, error)
	resetMatchIfInProgressFn      func(ctx context.Context, matchID string) (bool, error)
	startSessionFn                func(ctx context.Context, sessionID string, startTime time.Time, startDelta int) (bool, error)
	completeSessionIfInProgressFn func(ctx context.Context, sessionID string) (bool, error)
	resetSessionIfInProgressFn    func(ctx context.Context, sessionID string) (bool, error)
}

func (m *mockStateStore) GetMatchState(ctx context.Context, matchID string) (*model.ActivityState, error) {
	if m.getMatchStateFn != nil {
		return m.getMatchStateFn(ctx, matchID)
	}
	return &model.ActivityState{ActivityID: matchID, Status: model.StatusNotStarted}, nil
}

func (m *mockStateStore) GetSessionState(ctx context.Context, sessionID string) (*model.ActivityState, error) {
	if m.getSessionStateFn != nil {
		return m.getSessionStateFn(ctx, sessionID)
	}
	return &model.ActivityState{ActivityID: sessionID, Status: model.StatusNotStarted}, nil
}

func (m *mockStateStore) StartMatch(ctx context.Context, matchID string, startTime time.Time, startDelta int) (bool, error) {
	if m.startMatchFn != nil {
		return m.startMatchFn(ctx, matchID, startTime, startDelta)
	}
	return true, nil
}

func (m *mockStateStore) CompleteMatchIfInProgress(ctx context.Context, matchID string) (bool, error) {
	if m.completeMatchIfInProgressFn != nil {
		return m.completeMatchIfInProgressFn(ctx, matchID)
	}
	return true, nil
}

func (m *mockStateStore) ResetMatchIfInProgress(ctx context.Context, matchID string) (bool, error) {
	if m.resetMatchIfInProgressFn != nil {
		return m.resetMatchIfInProgressFn(ctx, matchID)
	}
	return true, nil
}

func (m *mockStateStore) StartSession(ctx context.Context, sessionID string, startTime time.Time, startDelta int) (bool, error) {
	if m.startSessionFn != nil {
		return m.startSessionFn(ctx, sessionID, startTime, startDelta)
	}
	return true, nil
}

func (m *mockStateStore) CompleteSessionIfInProgress(ctx context.Context, sessionID string) (bool, error) {
	if m.completeSessionIfInProgressFn != nil {
		return m.completeSessionIfInProgressFn(ctx, sessionID)
	}
	return true, nil
}

func (m *mockStateStore) ResetSessionIfInProgress(ctx context.Context, sessionID string) (bool, error) {
	if m.resetSessionIfInProgressFn != nil {
		return m.resetSessionIfInProgressFn(ctx, sessionID)
	}
	return true, nil
}

type publishedEvent struct {
	divisionID string
	payload    event.Payload
}

type mockPublisher struct {
	publishFn func(ctx context.Context, divisionID string, p event.Payload) error
	published []publishedEvent
}

func (m *mockPublisher) Publish(ctx context.Context, divisionID string, p event.Payload) error {
	m.published = append(m.published, publishedEvent{divisionID: divisionID, payload: p})
	if m.publishFn != nil {
		return m.publishFn(ctx, divisionID, p)
	}
	return nil
}

func (m *mockPublisher) kinds() []event.Kind {
	var kinds []event.Kind
	for _, p := range m.published {
		kinds = append(kinds, p.payload.EventKind())
	}
	return kinds
}

type enqueuedJob struct {
	job   schedq.Job
	delay time.Duration
}

type mockScheduler struct {
	enqueueFn func(ctx context.Context, job schedq.Job, delay time.Duration) error
	dequeueFn func(ctx context.Context, eventType, divisionID string, metadata map[string]string) (int, error)
	enqueued  []enqueuedJob
	dequeued  []string
}

func (m *mockScheduler) Enqueue(ctx context.Context, job schedq.Job, delay time.Duration) error {
	m.enqueued = append(m.enqueued, enqueuedJob{job: job, delay: delay})
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, job, delay)
	}
	return nil
}

func (m *mockScheduler) Dequeue(ctx context.Context, eventType, divisionID string, metadata map[string]string) (int, error) {
	m.dequeued = append(m.dequeued, eventType)
	if m.dequeueFn != nil {
		return m.dequeueFn(ctx, eventType, divisionID, metadata)
	}
	return 1, nil
}

type mockAuthorizer struct {
	authorizeFn func(ctx context.Context, user *model.User, divisionID string, roles ...model.Role) error
}

func (m *mockAuthorizer) Authorize(ctx context.Context, user *model.User, divisionID string, roles ...model.Role) error {
	if m.authorizeFn != nil {
		return m.authorizeFn(ctx, user, divisionID, roles...)
	}
	return nil
}
