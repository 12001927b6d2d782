package model

import "time"

// MatchParticipant is one table slot in a match. TeamID is nil while the
// slot is unassigned.
type MatchParticipant struct {
	Table  string
	TeamID *string
}

type Match struct {
	ID            string
	DivisionID    string
	Number        int
	Stage         Stage
	ScheduledTime time.Time
	Participants  []MatchParticipant
}

// HasParticipant reports whether at least one table slot has a team assigned.
func (m *Match) HasParticipant() bool {
	for _, p := range m.Participants {
		if p.TeamID != nil {
			return true
		}
	}
	return false
}

// TeamIDs returns the assigned team ids, skipping empty slots.
func (m *Match) TeamIDs() []string {
	ids := make([]string, 0, len(m.Participants))
	for _, p := range m.Participants {
		if p.TeamID != nil {
			ids = append(ids, *p.TeamID)
		}
	}
	return ids
}
