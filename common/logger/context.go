package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment so that the division,
// activity and job fields are present on every log statement in a code path.
type LogFields struct {
	DivisionID *string // Division (scope) ID
	MatchID    *string // Robot game match ID
	SessionID  *string // Judging session ID
	JobID      *int64  // Scheduled job ID
	EventType  *string // Event kind or scheduled job type
	Component  string  // Component name (e.g. "arena.bus", "arena.worker")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, next LogFields) LogFields {
	result := existing

	if next.DivisionID != nil {
		result.DivisionID = next.DivisionID
	}
	if next.MatchID != nil {
		result.MatchID = next.MatchID
	}
	if next.SessionID != nil {
		result.SessionID = next.SessionID
	}
	if next.JobID != nil {
		result.JobID = next.JobID
	}
	if next.EventType != nil {
		result.EventType = next.EventType
	}
	if next.Component != "" {
		result.Component = next.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{MatchID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}
