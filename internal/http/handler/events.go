package handler

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"podium.app/arena/common/apperr"
	"podium.app/arena/internal/event"
)

// EventStream is the subscription surface of the division event bus.
type EventStream interface {
	Subscribe(ctx context.Context, divisionID string, kinds []event.Kind, lastSeen map[event.Kind]uint64) (<-chan event.Envelope, func(), error)
}

type EventsHandler struct {
	stream EventStream
}

func NewEventsHandler(stream EventStream) *EventsHandler {
	return &EventsHandler{stream: stream}
}

// Subscribe streams division events over SSE. The `types` query parameter
// selects event kinds; the optional `lastSeen` parameter carries
// kind:version pairs to replay missed events after a reconnect.
func (h *EventsHandler) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()
	divisionID := c.Param("divisionId")

	kinds, err := parseKinds(c.Query("types"))
	if err != nil {
		writeError(c, err)
		return
	}
	lastSeen, err := parseLastSeen(c.Query("lastSeen"))
	if err != nil {
		writeError(c, err)
		return
	}

	ch, cancel, err := h.stream.Subscribe(ctx, divisionID, kinds, lastSeen)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case env, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("message", env)
			return true
		case <-ctx.Done():
			return false
		}
	})
}

func parseKinds(raw string) ([]event.Kind, error) {
	if raw == "" {
		return nil, apperr.New(apperr.CodeInvalidInput, "types query parameter is required")
	}
	var kinds []event.Kind
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kinds = append(kinds, event.Kind(part))
	}
	if len(kinds) == 0 {
		return nil, apperr.New(apperr.CodeInvalidInput, "types query parameter is required")
	}
	return kinds, nil
}

// parseLastSeen parses kind:version pairs, e.g.
// "matchStarted:12,matchCompleted:7". An empty parameter means no replay.
func parseLastSeen(raw string) (map[event.Kind]uint64, error) {
	if raw == "" {
		return nil, nil
	}
	lastSeen := make(map[event.Kind]uint64)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, versionStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, apperr.New(apperr.CodeInvalidInput, "malformed lastSeen entry %q", part)
		}
		version, err := strconv.ParseUint(versionStr, 10, 64)
		if err != nil {
			return nil, apperr.New(apperr.CodeInvalidInput, "malformed lastSeen version in %q", part)
		}
		lastSeen[event.Kind(kind)] = version
	}
	return lastSeen, nil
}
