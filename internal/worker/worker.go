// Package worker runs the scheduled transition consumer: a single serialized
// loop that claims due jobs and routes them to handlers registered per event
// type. Handlers are idempotent state-machine transitions; a handler error
// propagates to the queue's retry mechanism.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"podium.app/arena/common/logger"
	"podium.app/arena/internal/schedq"
)

// JobQueue mirrors the schedq methods the worker needs — defined here so the
// loop can be exercised without a live queue.
type JobQueue interface {
	ClaimDue(ctx context.Context, now time.Time) ([]schedq.Job, error)
	Retry(ctx context.Context, job schedq.Job, cause error) error
}

type Handler func(ctx context.Context, job schedq.Job) error

type Config struct {
	PollInterval time.Duration
}

type Worker struct {
	queue    JobQueue
	cfg      Config
	handlers map[string]Handler

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(queue JobQueue, cfg Config) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	return &Worker{
		queue:     queue,
		cfg:       cfg,
		handlers:  make(map[string]Handler),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Register installs the handler for an event type. All handlers must be
// registered before Run.
func (w *Worker) Register(eventType string, h Handler) {
	if _, ok := w.handlers[eventType]; ok {
		slog.Warn("handler already registered, overwriting", "event_type", eventType)
	}
	w.handlers[eventType] = h
}

// Run polls for due jobs and processes them strictly serially until the
// context ends or Stop is called. Starting with zero registered handlers is
// a configuration error.
func (w *Worker) Run(ctx context.Context) error {
	if len(w.handlers) == 0 {
		return errors.New("no handlers registered before starting worker")
	}

	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "transition worker started",
		"handlers", len(w.handlers),
		"poll_interval", w.cfg.PollInterval)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "transition worker stopping")
			return nil
		case <-ticker.C:
			w.processDue(ctx)
		}
	}
}

// Stop ends the loop and waits for the in-flight job to drain.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processDue(ctx context.Context) {
	jobs, err := w.queue.ClaimDue(ctx, time.Now())
	if err != nil {
		slog.ErrorContext(ctx, "failed to claim due jobs", "error", err)
		return
	}

	for _, job := range jobs {
		if err := w.processJobSafe(ctx, job); err != nil {
			slog.ErrorContext(ctx, "scheduled job failed",
				"error", err,
				"job_id", job.ID,
				"event_type", job.EventType,
				"attempt", job.Attempt)
			if retryErr := w.queue.Retry(ctx, job, err); retryErr != nil {
				slog.ErrorContext(ctx, "failed to retry scheduled job",
					"error", retryErr,
					"job_id", job.ID)
			}
		}
	}
}

func (w *Worker) processJobSafe(ctx context.Context, job schedq.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in job processing",
				"panic", r,
				"job_id", job.ID,
				"event_type", job.EventType)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processJob(ctx, job)
}

func (w *Worker) processJob(ctx context.Context, job schedq.Job) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DivisionID: logger.Ptr(job.DivisionID),
		JobID:      logger.Ptr(job.ID),
		EventType:  logger.Ptr(job.EventType),
		Component:  "arena.worker",
	})

	handler, ok := w.handlers[job.EventType]
	if !ok {
		return fmt.Errorf("no handler registered for event type %q", job.EventType)
	}

	slog.InfoContext(ctx, "processing scheduled job", "attempt", job.Attempt)
	return handler(ctx, job)
}
