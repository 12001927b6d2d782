package service_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"podium.app/arena/common/apperr"
	"podium.app/arena/internal/event"
	"podium.app/arena/internal/model"
	"podium.app/arena/internal/schedq"
	"podium.app/arena/internal/service"
	"podium.app/arena/internal/store"
)

var _ = Describe("JudgingService", func() {
	var (
		ctx       context.Context
		divisions *mockDivisionStore
		sessions  *mockSessionStore
		teams     *mockTeamStore
		states    *mockStateStore
		auth      *mockAuthorizer
		bus       *mockPublisher
		queue     *mockScheduler
		svc       *service.JudgingService
		user      *model.User
	)

	newSession := func(scheduled time.Time) *model.JudgingSession {
		return &model.JudgingSession{
			ID:            "s1",
			DivisionID:    "d1",
			RoomID:        "room-a",
			Number:        3,
			ScheduledTime: scheduled,
			TeamID:        strPtr("t1"),
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		divisions = &mockDivisionStore{}
		sessions = &mockSessionStore{}
		teams = &mockTeamStore{}
		states = &mockStateStore{}
		auth = &mockAuthorizer{}
		bus = &mockPublisher{}
		queue = &mockScheduler{}
		user = &model.User{ID: 7, Name: "Judge"}

		sessions.getByIDFn = func(_ context.Context, id string) (*model.JudgingSession, error) {
			if id != "s1" {
				return nil, store.ErrNotFound
			}
			return newSession(time.Now()), nil
		}

		svc = service.NewJudgingService(divisions, sessions, teams, states, auth, bus, queue)
	})

	Describe("Start", func() {
		Context("when no team is assigned to the session", func() {
			It("should return a conflict", func() {
				sessions.getByIDFn = func(_ context.Context, _ string) (*model.JudgingSession, error) {
					s := newSession(time.Now())
					s.TeamID = nil
					return s, nil
				}

				_, err := svc.Start(ctx, user, "d1", "s1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
			})
		})

		Context("when the team has not checked in", func() {
			It("should return a conflict", func() {
				teams.checkedInFn = func(_ context.Context, _, _ string) (bool, error) {
					return false, nil
				}

				_, err := svc.Start(ctx, user, "d1", "s1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
			})
		})

		Context("when another session is running in the same room", func() {
			It("should return a conflict", func() {
				sessions.listByRoomFn = func(_ context.Context, _, _ string) ([]model.JudgingSession, error) {
					return []model.JudgingSession{
						{ID: "s1", DivisionID: "d1", RoomID: "room-a"},
						{ID: "s2", DivisionID: "d1", RoomID: "room-a"},
					}, nil
				}
				states.getSessionStateFn = func(_ context.Context, id string) (*model.ActivityState, error) {
					status := model.StatusNotStarted
					if id == "s2" {
						status = model.StatusInProgress
					}
					return &model.ActivityState{ActivityID: id, Status: status}, nil
				}

				_, err := svc.Start(ctx, user, "d1", "s1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("room-a"))
			})
		})

		Context("when started too far ahead of schedule", func() {
			It("should return a conflict", func() {
				sessions.getByIDFn = func(_ context.Context, _ string) (*model.JudgingSession, error) {
					return newSession(time.Now().Add(10 * time.Minute)), nil
				}

				_, err := svc.Start(ctx, user, "d1", "s1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
			})
		})

		Context("when all preconditions hold", func() {
			It("should publish the start and schedule the completion job", func() {
				result, err := svc.Start(ctx, user, "d1", "s1")

				Expect(err).NotTo(HaveOccurred())
				Expect(result).NotTo(BeNil())
				Expect(bus.kinds()).To(ConsistOf(event.KindSessionStarted))

				Expect(queue.enqueued).To(HaveLen(1))
				Expect(queue.enqueued[0].job.EventType).To(Equal(schedq.EventSessionCompleted))
				Expect(queue.enqueued[0].job.Metadata).To(HaveKeyWithValue("sessionId", "s1"))
				Expect(queue.enqueued[0].delay).To(Equal(1620 * time.Second))
			})
		})

		Context("when a judge starts the session concurrently", func() {
			It("should return a conflict from the guarded write", func() {
				states.startSessionFn = func(_ context.Context, _ string, _ time.Time, _ int) (bool, error) {
					return false, nil
				}

				_, err := svc.Start(ctx, user, "d1", "s1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
				Expect(queue.enqueued).To(BeEmpty())
			})
		})
	})

	Describe("Abort", func() {
		BeforeEach(func() {
			states.getSessionStateFn = func(_ context.Context, id string) (*model.ActivityState, error) {
				return &model.ActivityState{ActivityID: id, Status: model.StatusInProgress}, nil
			}
		})

		It("should cancel the pending job, reset the state and announce the abort", func() {
			err := svc.Abort(ctx, user, "d1", "s1")

			Expect(err).NotTo(HaveOccurred())
			Expect(queue.dequeued).To(ConsistOf(schedq.EventSessionCompleted))
			Expect(bus.kinds()).To(ConsistOf(event.KindSessionAborted))
		})

		It("should return a conflict for a session that is not running", func() {
			states.getSessionStateFn = func(_ context.Context, id string) (*model.ActivityState, error) {
				return &model.ActivityState{ActivityID: id, Status: model.StatusCompleted}, nil
			}

			err := svc.Abort(ctx, user, "d1", "s1")

			Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
		})
	})
})
