// Package bus implements the division-scoped event bus: fire-and-forget
// publishing over Redis pub/sub channels, a short-horizon replay buffer for
// reconnecting subscribers, and reference-counted broadcaster sharing so
// that N dashboard viewers of one division cost one broker connection.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"podium.app/arena/common/apperr"
	"podium.app/arena/internal/event"
)

type Config struct {
	Retention     time.Duration
	BufferTTL     time.Duration
	SweepInterval time.Duration
	EntryCap      int64
	GapCap        uint64
}

func (c Config) withDefaults() Config {
	if c.Retention <= 0 {
		c.Retention = 30 * time.Second
	}
	if c.BufferTTL <= 0 {
		c.BufferTTL = 35 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 60 * time.Second
	}
	if c.EntryCap <= 0 {
		c.EntryCap = 1000
	}
	if c.GapCap == 0 {
		c.GapCap = 1000
	}
	return c
}

// versionClient is the slice of the Redis API the version sequence uses,
// split out so tests can drive versions without a broker.
type versionClient interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

type Bus struct {
	client   *redis.Client
	versions versionClient
	cfg      Config
	registry *registry

	stopSweep chan struct{}
	sweepDone chan struct{}
}

// New creates the bus on its own Redis client. The client must not be shared
// with the scheduled job queue: subscriptions hold blocking reads.
func New(client *redis.Client, cfg Config) *Bus {
	b := &Bus{
		client:    client,
		versions:  client,
		cfg:       cfg.withDefaults(),
		stopSweep: make(chan struct{}),
		sweepDone: make(chan struct{}),
	}
	b.registry = newRegistry(func(ctx context.Context, channels []string) (transport, error) {
		return newRedisTransport(ctx, client, channels)
	})

	go b.sweepLoop()
	return b
}

// Close stops the cleanup sweep and disconnects all broadcasters.
func (b *Bus) Close() {
	close(b.stopSweep)
	<-b.sweepDone
	b.registry.closeAll()
}

// Publish assigns the next version for (division, kind), publishes the
// envelope on the kind's channel and appends it to the replay buffer.
// Fire-and-forget with respect to subscribers: it succeeds whether or not
// anyone is listening. A buffering failure after a successful publish is
// logged, not returned.
func (b *Bus) Publish(ctx context.Context, divisionID string, p event.Payload) error {
	kind := p.EventKind()
	version, err := b.nextVersion(ctx, divisionID, kind)
	if err != nil {
		return err
	}

	env, err := event.NewEnvelope(divisionID, p, version, time.Now())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	if err := b.client.Publish(ctx, channelName(divisionID, kind), payload).Err(); err != nil {
		return fmt.Errorf("publishing %s to division %s: %w", kind, divisionID, err)
	}

	if err := b.buffer(ctx, env, payload); err != nil {
		slog.WarnContext(ctx, "failed to buffer envelope for replay",
			"error", err,
			"kind", kind,
			"division_id", divisionID,
			"version", version)
	}

	return nil
}

func (b *Bus) buffer(ctx context.Context, env event.Envelope, payload []byte) error {
	key := bufferKey(env.DivisionID, env.Kind)

	if err := b.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(env.Timestamp),
		Member: payload,
	}).Err(); err != nil {
		return fmt.Errorf("zadd: %w", err)
	}

	horizon := env.Timestamp - b.cfg.Retention.Milliseconds()
	if err := b.client.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(horizon, 10)).Err(); err != nil {
		return fmt.Errorf("trimming by retention: %w", err)
	}
	if err := b.client.ZRemRangeByRank(ctx, key, 0, -(b.cfg.EntryCap + 1)).Err(); err != nil {
		return fmt.Errorf("trimming by entry cap: %w", err)
	}

	// Safety net in case trimming is skipped (e.g. the division goes quiet).
	if err := b.client.Expire(ctx, key, b.cfg.BufferTTL).Err(); err != nil {
		return fmt.Errorf("setting buffer ttl: %w", err)
	}
	return nil
}

// Subscribe returns an unbounded stream of envelopes for the division and
// kinds, plus a cancel function that synchronously releases the shared
// broadcaster. When lastSeen is non-nil, buffered envelopes newer than each
// kind's baseline are replayed first; if a kind's gap exceeds the buffer's
// entry coverage a gap marker leads its replay. The marker carries the
// current server version, which moves the watermark past the buffered
// entries behind it: a consumer known to have missed events gets the marker
// alone and is expected to resynchronize from a snapshot, not from a replay
// with a hole in it. The stream stays open until cancel is called or ctx
// ends.
func (b *Bus) Subscribe(ctx context.Context, divisionID string, kinds []event.Kind, lastSeen map[event.Kind]uint64) (<-chan event.Envelope, func(), error) {
	if divisionID == "" {
		return nil, nil, apperr.New(apperr.CodeInvalidInput, "division id is required")
	}
	if len(kinds) == 0 {
		return nil, nil, apperr.New(apperr.CodeInvalidInput, "at least one event kind is required")
	}

	channels := make([]string, len(kinds))
	for i, kind := range kinds {
		channels[i] = channelName(divisionID, kind)
	}
	key := subscriptionKey(divisionID, kinds)

	bc, err := b.registry.acquire(ctx, key, channels)
	if err != nil {
		return nil, nil, fmt.Errorf("opening broker subscription: %w", err)
	}

	// Attach before replaying: envelopes published while we read the buffer
	// queue up on the live leg and the watermark drops the overlap.
	sub := newSubscriber()
	bc.attach(sub)

	release := sync.OnceFunc(func() {
		bc.detach(sub)
		b.registry.release(key)
		sub.close()
	})

	var replayed []event.Envelope
	if lastSeen != nil {
		for _, kind := range kinds {
			entries, err := b.replayKind(ctx, divisionID, kind, lastSeen[kind])
			if err != nil {
				release()
				return nil, nil, err
			}
			replayed = append(replayed, entries...)
		}
	}

	out := make(chan event.Envelope)
	go func() {
		defer close(out)
		defer release()

		for _, env := range replayed {
			if !sub.advance(env) {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			}
		}

		for {
			env, ok := sub.next(ctx)
			if !ok {
				return
			}
			if !sub.advance(env) {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			case <-sub.done:
				return
			}
		}
	}()

	return out, release, nil
}

func (b *Bus) replayKind(ctx context.Context, divisionID string, kind event.Kind, baseline uint64) ([]event.Envelope, error) {
	entries, err := b.client.ZRange(ctx, bufferKey(divisionID, kind), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("reading replay buffer for %s: %w", kind, err)
	}
	server, err := b.currentVersion(ctx, divisionID, kind)
	if err != nil {
		return nil, err
	}
	return filterReplay(divisionID, kind, entries, baseline, server, b.cfg.GapCap, time.Now()), nil
}

// filterReplay selects buffered envelopes newer than the caller's baseline,
// in arrival order, prefixed by a gap marker when the caller is too far
// behind for the buffer to cover.
func filterReplay(divisionID string, kind event.Kind, entries []string, baseline, serverVersion, gapCap uint64, now time.Time) []event.Envelope {
	var out []event.Envelope

	if serverVersion > baseline && serverVersion-baseline > gapCap {
		out = append(out, event.GapEnvelope(divisionID, kind, serverVersion, now))
	}

	for _, entry := range entries {
		var env event.Envelope
		if err := json.Unmarshal([]byte(entry), &env); err != nil {
			slog.Warn("skipping malformed replay buffer entry",
				"error", err,
				"kind", kind,
				"division_id", divisionID,
				"component", "arena.bus")
			continue
		}
		if env.Version > baseline {
			out = append(out, env)
		}
	}

	return out
}

// Version counters live in Redis so the server and the worker draw from one
// strictly increasing sequence per (division, kind) and a process restart
// cannot rewind it. The keys carry no TTL: a rewound counter would repeat
// versions and make subscriber watermarks drop fresh envelopes.
func (b *Bus) nextVersion(ctx context.Context, divisionID string, kind event.Kind) (uint64, error) {
	n, err := b.versions.Incr(ctx, versionKeyName(divisionID, kind)).Result()
	if err != nil {
		return 0, fmt.Errorf("assigning version for %s in division %s: %w", kind, divisionID, err)
	}
	return uint64(n), nil
}

func (b *Bus) currentVersion(ctx context.Context, divisionID string, kind event.Kind) (uint64, error) {
	raw, err := b.versions.Get(ctx, versionKeyName(divisionID, kind)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading version for %s in division %s: %w", kind, divisionID, err)
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing version for %s in division %s: %w", kind, divisionID, err)
	}
	return n, nil
}

func (b *Bus) sweepLoop() {
	defer close(b.sweepDone)

	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopSweep:
			return
		case <-ticker.C:
			if n := b.registry.sweep(); n > 0 {
				slog.Debug("swept idle broadcasters", "count", n, "component", "arena.bus")
			}
		}
	}
}

// Channel and buffer key shapes are fixed by existing subscribers.
func channelName(divisionID string, kind event.Kind) string {
	return fmt.Sprintf("division:%s:%s", divisionID, kind)
}

func bufferKey(divisionID string, kind event.Kind) string {
	return fmt.Sprintf("buffer:%s:%s", divisionID, kind)
}

func versionKeyName(divisionID string, kind event.Kind) string {
	return fmt.Sprintf("version:%s:%s", divisionID, kind)
}

func subscriptionKey(divisionID string, kinds []event.Kind) string {
	names := make([]string, len(kinds))
	for i, kind := range kinds {
		names[i] = string(kind)
	}
	sort.Strings(names)
	return divisionID + "|" + strings.Join(names, ",")
}
