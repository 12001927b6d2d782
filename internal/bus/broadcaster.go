package bus

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"podium.app/arena/internal/event"
)

// A broadcaster owns the single broker subscription for one
// (division, kind-set) key and fans every envelope to all attached
// subscribers. It holds no per-subscriber state beyond membership; ordering
// and deduplication are the subscriber's concern. Lifetime is managed by the
// registry through explicit reference counting, never by waiting for
// abandoned listeners to be collected.
type broadcaster struct {
	key string
	tr  transport

	// refs is guarded by the registry mutex, not bc.mu.
	refs int

	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

func (bc *broadcaster) run() {
	for raw := range bc.tr.Messages() {
		var env event.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// A single bad envelope must not terminate the fan-out.
			slog.Warn("dropping malformed envelope",
				"error", err,
				"key", bc.key,
				"component", "arena.bus")
			continue
		}

		bc.mu.Lock()
		for sub := range bc.subs {
			sub.push(env)
		}
		bc.mu.Unlock()
	}
}

func (bc *broadcaster) attach(sub *subscriber) {
	bc.mu.Lock()
	bc.subs[sub] = struct{}{}
	bc.mu.Unlock()
}

func (bc *broadcaster) detach(sub *subscriber) {
	bc.mu.Lock()
	delete(bc.subs, sub)
	bc.mu.Unlock()
}

func (bc *broadcaster) stop() {
	_ = bc.tr.Close()
}

type openFunc func(ctx context.Context, channels []string) (transport, error)

// registry maps (division, kind-set) keys to live broadcasters. One
// coordination primitive guards the whole table; acquire/release adjust
// reference counts synchronously and a periodic sweep discards broadcasters
// whose count has reached zero. This bounds broker connections to the number
// of distinct keys currently observed, not the number of listeners.
type registry struct {
	open openFunc

	mu      sync.Mutex
	entries map[string]*broadcaster
}

func newRegistry(open openFunc) *registry {
	return &registry{
		open:    open,
		entries: make(map[string]*broadcaster),
	}
}

func (r *registry) acquire(ctx context.Context, key string, channels []string) (*broadcaster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if bc, ok := r.entries[key]; ok {
		bc.refs++
		return bc, nil
	}

	tr, err := r.open(ctx, channels)
	if err != nil {
		return nil, err
	}

	bc := &broadcaster{
		key:  key,
		tr:   tr,
		refs: 1,
		subs: make(map[*subscriber]struct{}),
	}
	r.entries[key] = bc
	go bc.run()

	return bc, nil
}

func (r *registry) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bc, ok := r.entries[key]
	if !ok {
		return
	}
	if bc.refs > 0 {
		bc.refs--
	}
	// The broadcaster stays connected until the next sweep so a quick
	// reconnect reuses it.
}

// sweep disconnects and discards every broadcaster without subscribers.
// Returns the number of broadcasters torn down.
func (r *registry) sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for key, bc := range r.entries {
		if bc.refs == 0 {
			bc.stop()
			delete(r.entries, key)
			n++
		}
	}
	return n
}

func (r *registry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, bc := range r.entries {
		bc.stop()
		delete(r.entries, key)
	}
}

func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
