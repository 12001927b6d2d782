package service

import (
	"context"
	"fmt"
	"slices"

	"podium.app/arena/common/apperr"
	"podium.app/arena/internal/model"
	"podium.app/arena/internal/store"
)

type roleAuthorizer struct {
	users store.UserStore
}

// NewRoleAuthorizer builds an Authorizer over the division role assignments.
// Tournament managers pass every check.
func NewRoleAuthorizer(users store.UserStore) Authorizer {
	return &roleAuthorizer{users: users}
}

func (a *roleAuthorizer) Authorize(ctx context.Context, user *model.User, divisionID string, roles ...model.Role) error {
	if user == nil {
		return apperr.New(apperr.CodeUnauthorized, "authentication required")
	}

	assigned, err := a.users.RolesFor(ctx, user.ID, divisionID)
	if err != nil {
		return fmt.Errorf("failed to load roles for user %d: %w", user.ID, err)
	}

	if slices.Contains(assigned, model.RoleTournamentManager) {
		return nil
	}
	for _, r := range roles {
		if slices.Contains(assigned, r) {
			return nil
		}
	}
	return apperr.New(apperr.CodeForbidden, "insufficient role for this action")
}
