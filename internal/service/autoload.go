package service

import (
	"context"
	"fmt"
	"time"

	"podium.app/arena/internal/model"
	"podium.app/arena/internal/store"
)

// AutoLoadThreshold is how far ahead of a match's scheduled time it may be
// staged automatically.
const AutoLoadThreshold = 15 * time.Minute

// FindAutoLoadMatch picks the next match to stage after one completes: the
// earliest not-started match of the stage, excluding the one that just ran,
// whose scheduled time is within the threshold. Returns nil when nothing
// qualifies.
func FindAutoLoadMatch(
	ctx context.Context,
	matches store.MatchStore,
	states store.ActivityStateStore,
	divisionID string,
	stage model.Stage,
	excludeID string,
	now time.Time,
	threshold time.Duration,
) (*model.Match, error) {
	candidates, err := matches.ListByStage(ctx, divisionID, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s matches: %w", stage, err)
	}

	for i := range candidates {
		m := &candidates[i]
		if m.ID == excludeID {
			continue
		}
		if m.ScheduledTime.Sub(now) > threshold {
			// Ordered by scheduled time, so nothing later qualifies either.
			break
		}
		state, err := states.GetMatchState(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load state for match %s: %w", m.ID, err)
		}
		if state.Status == model.StatusNotStarted {
			return m, nil
		}
	}
	return nil, nil
}
