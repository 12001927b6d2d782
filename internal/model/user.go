package model

// Role of a tournament volunteer within a division.
type Role string

const (
	RoleReferee           Role = "referee"
	RoleHeadReferee       Role = "head-referee"
	RoleScorekeeper       Role = "scorekeeper"
	RoleJudge             Role = "judge"
	RoleLeadJudge         Role = "lead-judge"
	RoleTournamentManager Role = "tournament-manager"
)

type User struct {
	ID   int64
	Name string
}
