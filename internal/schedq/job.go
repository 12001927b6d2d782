package schedq

// Scheduled job event types. These are the routing keys the transition
// worker dispatches on.
const (
	EventMatchCompleted   = "match-completed"
	EventMatchEndgame     = "match-endgame-triggered"
	EventSessionCompleted = "session-completed"
)

// Job is a delayed, retryable unit of work forcing a future state
// transition. Its identity for cancellation is the semantic triple
// (EventType, DivisionID, metadata subset) — the code path that cancels a
// job never sees the generated ID.
type Job struct {
	ID          int64             `json:"id"`
	EventType   string            `json:"eventType"`
	DivisionID  string            `json:"divisionId"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Attempt     int               `json:"attempt"`
	MaxAttempts int               `json:"maxAttempts"`
	EnqueuedAt  int64             `json:"enqueuedAt"` // ms since epoch
	LastError   string            `json:"lastError,omitempty"`
}

// matches reports whether the job carries the given type, division and all
// of the supplied metadata pairs. An empty wanted map matches any metadata.
func (j Job) matches(eventType, divisionID string, metadata map[string]string) bool {
	if j.EventType != eventType || j.DivisionID != divisionID {
		return false
	}
	for key, want := range metadata {
		if j.Metadata[key] != want {
			return false
		}
	}
	return true
}
