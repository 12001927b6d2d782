// Package service implements the lifecycle controllers for matches and
// judging sessions: authorization, precondition checks, guarded state
// transitions, event publication and scheduled follow-up jobs.
package service

import (
	"context"
	"time"

	"podium.app/arena/internal/event"
	"podium.app/arena/internal/model"
	"podium.app/arena/internal/schedq"
)

// Publisher emits division-scoped events. Satisfied by bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, divisionID string, p event.Payload) error
}

// Scheduler enqueues and cancels deferred transition jobs. Satisfied by
// schedq.Queue.
type Scheduler interface {
	Enqueue(ctx context.Context, job schedq.Job, delay time.Duration) error
	Dequeue(ctx context.Context, eventType, divisionID string, metadata map[string]string) (int, error)
}

// Authorizer decides whether a user may perform a division-scoped action
// requiring one of the given roles.
type Authorizer interface {
	Authorize(ctx context.Context, user *model.User, divisionID string, roles ...model.Role) error
}
