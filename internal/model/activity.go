package model

import "time"

// ActivityStatus is the lifecycle state shared by robot game matches and
// judging sessions. The only legal transitions are
// not-started → in-progress (start), in-progress → completed (worker) and
// in-progress → not-started (abort).
type ActivityStatus string

const (
	StatusNotStarted ActivityStatus = "not-started"
	StatusInProgress ActivityStatus = "in-progress"
	StatusCompleted  ActivityStatus = "completed"
)

// ActivityState is the mutable lifecycle record of one match or session.
// It is always mutated through a read-check-write guard on Status because a
// human operator and the transition worker can race.
type ActivityState struct {
	ActivityID string
	Status     ActivityStatus
	StartTime  *time.Time
	StartDelta int // signed seconds, negative for early starts
}
