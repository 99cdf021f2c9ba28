package prediction

import (
	"sort"

	"github.com/prediction-overlay/backend/internal/eventsub"
)

// SortOutcomesAscending orders outcomes by accumulated channel points, lowest
// first, for the vertical overlay layout. The sort is stable so ties keep
// their upstream order, and it operates on a copy: the stored outcome order
// is part of the event snapshot and must survive progress updates untouched.
// The horizontal layout uses the stored order directly and never calls this.
func SortOutcomesAscending(outcomes []eventsub.Outcome) []eventsub.Outcome {
	sorted := make([]eventsub.Outcome, len(outcomes))
	copy(sorted, outcomes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].ChannelPoints < sorted[j].ChannelPoints
	})
	return sorted
}

// WinningTopPredictors returns the top predictors of the winning outcome,
// already ordered by the upstream payload. An empty winner id, a winner id
// matching no outcome, or an outcome without predictors all yield an empty
// result, never an error.
func WinningTopPredictors(winnerID string, outcomes []eventsub.Outcome) []eventsub.TopPredictor {
	if winnerID == "" {
		return nil
	}
	for i := range outcomes {
		if outcomes[i].ID == winnerID {
			return outcomes[i].TopPredictors
		}
	}
	return nil
}
