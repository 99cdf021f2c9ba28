package eventsub

import "time"

// TopPredictor is a participant ranked by contribution to an outcome.
// ChannelPointsWon stays null until the prediction concludes.
type TopPredictor struct {
	UserID            string `json:"user_id" validate:"required"`
	UserLogin         string `json:"user_login"`
	UserName          string `json:"user_name"`
	ChannelPointsWon  *int   `json:"channel_points_won"`
	ChannelPointsUsed int    `json:"channel_points_used"`
}

// Outcome is one choice within a prediction. TopPredictors is populated by
// the upstream service only after conclusion, and only on the winning
// outcome.
type Outcome struct {
	ID            string         `json:"id" validate:"required"`
	Title         string         `json:"title"`
	Color         string         `json:"color"`
	Users         int            `json:"users,omitempty"`
	ChannelPoints int            `json:"channel_points,omitempty"`
	TopPredictors []TopPredictor `json:"top_predictors,omitempty" validate:"omitempty,dive"`
}

// PredictionEvent is one prediction's full snapshot as delivered by the
// upstream payload. Payloads are authoritative and complete: consumers
// replace their copy wholesale, never merge.
type PredictionEvent struct {
	ID                   string     `json:"id" validate:"required"`
	BroadcasterUserID    string     `json:"broadcaster_user_id"`
	BroadcasterUserLogin string     `json:"broadcaster_user_login"`
	BroadcasterUserName  string     `json:"broadcaster_user_name"`
	Title                string     `json:"title"`
	Outcomes             []Outcome  `json:"outcomes" validate:"required,min=2,dive"`
	WinningOutcomeID     string     `json:"winning_outcome_id,omitempty"`
	StartedAt            time.Time  `json:"started_at"`
	LocksAt              *time.Time `json:"locks_at,omitempty"`
	LockedAt             *time.Time `json:"locked_at,omitempty"`
	EndedAt              *time.Time `json:"ended_at,omitempty"`
	Status               string     `json:"status,omitempty"`
}

// Outcome returns the outcome with the given id.
func (e *PredictionEvent) Outcome(id string) (*Outcome, bool) {
	for i := range e.Outcomes {
		if e.Outcomes[i].ID == id {
			return &e.Outcomes[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the event, duplicating slices and pointer
// fields so the copy can be retained and read independently of the original.
func (e *PredictionEvent) Clone() *PredictionEvent {
	if e == nil {
		return nil
	}
	c := *e
	c.LocksAt = cloneTime(e.LocksAt)
	c.LockedAt = cloneTime(e.LockedAt)
	c.EndedAt = cloneTime(e.EndedAt)
	if len(e.Outcomes) > 0 {
		c.Outcomes = make([]Outcome, len(e.Outcomes))
		for i, o := range e.Outcomes {
			c.Outcomes[i] = o.clone()
		}
	}
	return &c
}

func (o Outcome) clone() Outcome {
	if len(o.TopPredictors) > 0 {
		tps := make([]TopPredictor, len(o.TopPredictors))
		for i, tp := range o.TopPredictors {
			if tp.ChannelPointsWon != nil {
				v := *tp.ChannelPointsWon
				tp.ChannelPointsWon = &v
			}
			tps[i] = tp
		}
		o.TopPredictors = tps
	}
	return o
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
