package service_test

import (
	"context"
	"errors"
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

func strPtr(s string) *string { return &s }

var _ = Describe("MatchService", func() {
	var (
		ctx       context.Context
		divisions *mockDivisionStore
		matches   *mockMatchStore
		teams     *mockTeamStore
		states    *mockStateStore
		auth      *mockAuthorizer
		bus       *mockPublisher
		queue     *mockScheduler
		svc       *service.MatchService
		user      *model.User
	)

	newMatch := func(scheduled time.Time) *model.Match {
		return &model.Match{
			ID:            "m1",
			DivisionID:    "d1",
			Number:        4,
			Stage:         model.StageRanking,
			ScheduledTime: scheduled,
			Participants: []model.MatchParticipant{
				{Table: "table-1", TeamID: strPtr("t1")},
				{Table: "table-2", TeamID: strPtr("t2")},
			},
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		divisions = &mockDivisionStore{}
		matches = &mockMatchStore{}
		teams = &mockTeamStore{}
		states = &mockStateStore{}
		auth = &mockAuthorizer{}
		bus = &mockPublisher{}
		queue = &mockScheduler{}
		user = &model.User{ID: 42, Name: "Referee"}

		matches.getByIDFn = func(_ context.Context, id string) (*model.Match, error) {
			if id != "m1" {
				return nil, store.ErrNotFound
			}
			return newMatch(time.Now()), nil
		}

		svc = service.NewMatchService(divisions, matches, teams, states, auth, bus, queue)
	})

	Describe("Start", func() {
		Context("when the caller lacks a field role", func() {
			It("should return the authorization error untouched", func() {
				auth.authorizeFn = func(_ context.Context, _ *model.User, _ string, _ ...model.Role) error {
					return apperr.New(apperr.CodeForbidden, "insufficient role for this action")
				}

				result, err := svc.Start(ctx, user, "d1", "m1")

				Expect(result).To(BeNil())
				Expect(apperr.Is(err, apperr.CodeForbidden)).To(BeTrue())
			})
		})

		Context("when the match does not exist", func() {
			It("should return not found", func() {
				result, err := svc.Start(ctx, user, "d1", "missing")

				Expect(result).To(BeNil())
				Expect(apperr.Is(err, apperr.CodeNotFound)).To(BeTrue())
			})
		})

		Context("when the match belongs to another division", func() {
			It("should return not found rather than leaking its existence", func() {
				result, err := svc.Start(ctx, user, "d2", "m1")

				Expect(result).To(BeNil())
				Expect(apperr.Is(err, apperr.CodeNotFound)).To(BeTrue())
			})
		})

		Context("when the match already ran", func() {
			It("should return a conflict", func() {
				states.getMatchStateFn = func(_ context.Context, id string) (*model.ActivityState, error) {
					return &model.ActivityState{ActivityID: id, Status: model.StatusCompleted}, nil
				}

				result, err := svc.Start(ctx, user, "d1", "m1")

				Expect(result).To(BeNil())
				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
			})
		})

		Context("when no team is assigned to any table", func() {
			It("should return a conflict", func() {
				matches.getByIDFn = func(_ context.Context, _ string) (*model.Match, error) {
					m := newMatch(time.Now())
					m.Participants = []model.MatchParticipant{{Table: "table-1"}}
					return m, nil
				}

				_, err := svc.Start(ctx, user, "d1", "m1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
			})
		})

		Context("when an assigned team has not checked in", func() {
			It("should return a conflict naming the team", func() {
				teams.checkedInFn = func(_ context.Context, _, teamID string) (bool, error) {
					return teamID != "t2", nil
				}

				_, err := svc.Start(ctx, user, "d1", "m1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
				Expect(err.Error()).To(ContainSubstring("t2"))
			})
		})

		Context("when started too far ahead of schedule", func() {
			It("should reject a start six minutes early", func() {
				matches.getByIDFn = func(_ context.Context, _ string) (*model.Match, error) {
					return newMatch(time.Now().Add(6 * time.Minute)), nil
				}

				_, err := svc.Start(ctx, user, "d1", "m1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
			})

			It("should accept a start two minutes early with a negative delta", func() {
				matches.getByIDFn = func(_ context.Context, _ string) (*model.Match, error) {
					return newMatch(time.Now().Add(2 * time.Minute)), nil
				}

				result, err := svc.Start(ctx, user, "d1", "m1")

				Expect(err).NotTo(HaveOccurred())
				Expect(result.StartDelta).To(BeNumerically("<", 0))
			})
		})

		Context("when another operator starts the match concurrently", func() {
			It("should return a conflict from the guarded write", func() {
				states.startMatchFn = func(_ context.Context, _ string, _ time.Time, _ int) (bool, error) {
					return false, nil
				}

				_, err := svc.Start(ctx, user, "d1", "m1")

				Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
				Expect(bus.published).To(BeEmpty())
				Expect(queue.enqueued).To(BeEmpty())
			})
		})

		Context("when all preconditions hold", func() {
			It("should publish the start and schedule both transition jobs", func() {
				var activeID *string
				divisions.setActiveMatchFn = func(_ context.Context, _ string, matchID *string) error {
					activeID = matchID
					return nil
				}

				result, err := svc.Start(ctx, user, "d1", "m1")

				Expect(err).NotTo(HaveOccurred())
				Expect(result).NotTo(BeNil())
				Expect(activeID).NotTo(BeNil())
				Expect(*activeID).To(Equal("m1"))

				Expect(bus.kinds()).To(ContainElement(event.KindMatchStarted))

				Expect(queue.enqueued).To(HaveLen(2))
				byType := map[string]time.Duration{}
				for _, e := range queue.enqueued {
					byType[e.job.EventType] = e.delay
					Expect(e.job.DivisionID).To(Equal("d1"))
					Expect(e.job.Metadata).To(HaveKeyWithValue("matchId", "m1"))
				}
				Expect(byType[schedq.EventMatchCompleted]).To(Equal(150 * time.Second))
				Expect(byType[schedq.EventMatchEndgame]).To(Equal(120 * time.Second))
			})

			It("should not unwind the start when scheduling fails", func() {
				queue.enqueueFn = func(_ context.Context, _ schedq.Job, _ time.Duration) error {
					return errors.New("redis unavailable")
				}

				result, err := svc.Start(ctx, user, "d1", "m1")

				Expect(err).NotTo(HaveOccurred())
				Expect(result).NotTo(BeNil())
				Expect(bus.kinds()).To(ContainElement(event.KindMatchStarted))
			})
		})

		Context("when the first ranking match starts during practice", func() {
			It("should advance the division stage and announce it", func() {
				divisions.advanceStageFn = func(_ context.Context, _ string, from, to model.Stage) (bool, error) {
					Expect(from).To(Equal(model.StagePractice))
					Expect(to).To(Equal(model.StageRanking))
					return true, nil
				}

				_, err := svc.Start(ctx, user, "d1", "m1")

				Expect(err).NotTo(HaveOccurred())
				Expect(bus.kinds()).To(ContainElement(event.KindMatchStageAdvanced))
			})

			It("should stay quiet when the division already advanced", func() {
				divisions.advanceStageFn = func(_ context.Context, _ string, _, _ model.Stage) (bool, error) {
					return false, nil
				}

				_, err := svc.Start(ctx, user, "d1", "m1")

				Expect(err).NotTo(HaveOccurred())
				Expect(bus.kinds()).NotTo(ContainElement(event.KindMatchStageAdvanced))
			})
		})

		Context("when a later match in the stage is close enough", func() {
			It("should stage it and announce the load", func() {
				next := model.Match{
					ID:            "m2",
					DivisionID:    "d1",
					Stage:         model.StageRanking,
					ScheduledTime: time.Now().Add(5 * time.Minute),
				}
				matches.listByStageFn = func(_ context.Context, _ string, _ model.Stage) ([]model.Match, error) {
					return []model.Match{next}, nil
				}

				var loadedID *string
				divisions.setLoadedMatchFn = func(_ context.Context, _ string, matchID *string) error {
					loadedID = matchID
					return nil
				}

				_, err := svc.Start(ctx, user, "d1", "m1")

				Expect(err).NotTo(HaveOccurred())
				Expect(loadedID).NotTo(BeNil())
				Expect(*loadedID).To(Equal("m2"))
				Expect(bus.kinds()).To(ContainElement(event.KindMatchLoaded))
			})
		})

		Context("when a test match starts", func() {
			It("should never touch the staged rotation", func() {
				matches.getByIDFn = func(_ context.Context, _ string) (*model.Match, error) {
					m := newMatch(time.Now())
					m.Stage = model.StageTest
					return m, nil
				}
				divisions.setLoadedMatchFn = func(_ context.Context, _ string, _ *string) error {
					Fail("test matches must not change the loaded match")
					return nil
				}

				_, err := svc.Start(ctx, user, "d1", "m1")

				Expect(err).NotTo(HaveOccurred())
				Expect(bus.kinds()).NotTo(ContainElement(event.KindMatchLoaded))
			})
		})
	})

	Describe("Abort", func() {
		BeforeEach(func() {
			states.getMatchStateFn = func(_ context.Context, id string) (*model.ActivityState, error) {
				return &model.ActivityState{ActivityID: id, Status: model.StatusInProgress}, nil
			}
		})

		It("should cancel pending jobs, reset the state and announce the abort", func() {
			var activeID *string
			cleared := false
			divisions.setActiveMatchFn = func(_ context.Context, _ string, matchID *string) error {
				activeID = matchID
				cleared = true
				return nil
			}

			err := svc.Abort(ctx, user, "d1", "m1")

			Expect(err).NotTo(HaveOccurred())
			Expect(queue.dequeued).To(ConsistOf(schedq.EventMatchCompleted, schedq.EventMatchEndgame))
			Expect(cleared).To(BeTrue())
			Expect(activeID).To(BeNil())
			Expect(bus.kinds()).To(ConsistOf(event.KindMatchAborted))
		})

		It("should return a conflict for a match that is not running", func() {
			states.getMatchStateFn = func(_ context.Context, id string) (*model.ActivityState, error) {
				return &model.ActivityState{ActivityID: id, Status: model.StatusNotStarted}, nil
			}

			err := svc.Abort(ctx, user, "d1", "m1")

			Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
		})

		It("should still abort when the dequeue races the worker's claim", func() {
			queue.dequeueFn = func(_ context.Context, _, _ string, _ map[string]string) (int, error) {
				return 0, nil
			}

			err := svc.Abort(ctx, user, "d1", "m1")

			Expect(err).NotTo(HaveOccurred())
			Expect(bus.kinds()).To(ConsistOf(event.KindMatchAborted))
		})

		It("should return a conflict when the reset loses to the completion job", func() {
			states.resetMatchIfInProgressFn = func(_ context.Context, _ string) (bool, error) {
				return false, nil
			}

			err := svc.Abort(ctx, user, "d1", "m1")

			Expect(apperr.Is(err, apperr.CodeConflict)).To(BeTrue())
			Expect(bus.published).To(BeEmpty())
		})
	})
})
