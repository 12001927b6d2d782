package bus

import (
	"context"
	"sync"

	"podium.app/arena/internal/event"
)

// subscriber is one logical listener's view of a shared broadcaster. Pushes
// never block the fan-out: envelopes accumulate in an internal queue and the
// consumer parks on a wait signal between them.
type subscriber struct {
	mu     sync.Mutex
	queue  []event.Envelope
	signal chan struct{}
	done   chan struct{}
	closed bool

	// Highest version delivered per kind; only touched by the pump
	// goroutine. Used to drop live envelopes already served by replay.
	watermarks map[event.Kind]uint64
}

func newSubscriber() *subscriber {
	return &subscriber{
		signal:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		watermarks: make(map[event.Kind]uint64),
	}
}

func (s *subscriber) push(env event.Envelope) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, env)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// next blocks until an envelope is queued, the context ends or the
// subscriber is closed.
func (s *subscriber) next(ctx context.Context) (event.Envelope, bool) {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			env := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return env, true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return event.Envelope{}, false
		case <-s.done:
			return event.Envelope{}, false
		case <-s.signal:
		}
	}
}

// advance reports whether env moves the kind's watermark forward; stale
// envelopes (replay/live duplicates) return false and must be skipped.
func (s *subscriber) advance(env event.Envelope) bool {
	if env.Version <= s.watermarks[env.Kind] {
		return false
	}
	s.watermarks[env.Kind] = env.Version
	return true
}

func (s *subscriber) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	close(s.done)
}
