package model

import "time"

type JudgingSession struct {
	ID            string
	DivisionID    string
	RoomID        string
	Number        int
	ScheduledTime time.Time
	TeamID        *string
}
