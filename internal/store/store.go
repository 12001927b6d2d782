package store

import (
	"podium.app/arena/core/db"
)

// Stores bundles the per-entity stores over one connection pool.
type Stores struct {
	Divisions DivisionStore
	Matches   MatchStore
	Sessions  SessionStore
	Teams     TeamStore
	Users     UserStore
	States    ActivityStateStore
}

func New(database *db.DB) *Stores {
	pool := database.Pool()
	return &Stores{
		Divisions: &divisionStore{pool: pool},
		Matches:   &matchStore{pool: pool},
		Sessions:  &sessionStore{pool: pool},
		Teams:     &teamStore{pool: pool},
		Users:     &userStore{pool: pool},
		States:    &activityStateStore{pool: pool},
	}
}
