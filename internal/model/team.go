package model

type Team struct {
	ID         string
	DivisionID string
	Number     int
	Name       string
	CheckedIn  bool
}
