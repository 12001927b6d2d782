package model

// Stage of the robot game rounds within a division.
type Stage string

const (
	StagePractice Stage = "PRACTICE"
	StageRanking  Stage = "RANKING"
	StageTest     Stage = "TEST"
)

// ScheduleSettings are the per-division activity durations, in seconds.
type ScheduleSettings struct {
	MatchLengthSeconds          int
	JudgingSessionLengthSeconds int
}

type Division struct {
	ID       string
	Name     string
	Schedule ScheduleSettings
}

// DivisionState tracks which field activities are currently staged for the
// division's operators.
type DivisionState struct {
	DivisionID    string
	ActiveMatchID *string
	LoadedMatchID *string
	CurrentStage  Stage
}
