// Package mock feeds the prediction machine synthetic lifecycle cycles so
// the overlay can be developed without a Twitch connection.
package mock

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/prediction-overlay/backend/internal/eventsub"
	"github.com/prediction-overlay/backend/internal/prediction"
)

var mockTitles = []string{
	"Will we win this game?",
	"First try boss kill?",
	"Speedrun under 45 minutes?",
	"How does this round end?",
}

var mockOutcomes = [][]string{
	{"Yes", "No"},
	{"Yes", "No", "Maybe"},
	{"Win", "Lose", "Draw"},
	{"Gold", "Silver", "Bronze", "No medal"},
}

var outcomeColors = []string{"blue", "pink", "green", "orange"}

// Generator drives the real prediction machine through repeating
// begin -> progress -> lock -> end cycles.
type Generator struct {
	machine *prediction.Machine
	tick    time.Duration
}

func NewGenerator(machine *prediction.Machine, tick time.Duration) *Generator {
	if tick <= 0 {
		tick = 2 * time.Second
	}
	return &Generator{machine: machine, tick: tick}
}

func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	for {
		g.cycle(ctx)
		if ctx.Err() != nil {
			return
		}
	}
}

// cycle plays one full prediction: a begin, several progress updates, a
// lock, then an end with a winner and top predictors.
func (g *Generator) cycle(ctx context.Context) {
	labels := mockOutcomes[rand.Intn(len(mockOutcomes))]
	event := &eventsub.PredictionEvent{
		ID:                   uuid.NewString(),
		BroadcasterUserID:    "mock",
		BroadcasterUserLogin: "mock_streamer",
		BroadcasterUserName:  "MockStreamer",
		Title:                mockTitles[rand.Intn(len(mockTitles))],
		StartedAt:            time.Now(),
	}
	for i, label := range labels {
		event.Outcomes = append(event.Outcomes, eventsub.Outcome{
			ID:    uuid.NewString(),
			Title: label,
			Color: outcomeColors[i%len(outcomeColors)],
		})
	}

	log.Info().Str("title", event.Title).Int("outcomes", len(event.Outcomes)).Msg("mock prediction cycle")
	g.machine.HandleNotification(eventsub.SubPredictionBegin, event)

	for i := 0; i < 5; i++ {
		if !g.sleep(ctx) {
			return
		}
		for j := range event.Outcomes {
			event.Outcomes[j].Users += rand.Intn(10)
			event.Outcomes[j].ChannelPoints += rand.Intn(2500)
		}
		g.machine.HandleNotification(eventsub.SubPredictionProgress, event)
	}

	if !g.sleep(ctx) {
		return
	}
	now := time.Now()
	event.LockedAt = &now
	g.machine.HandleNotification(eventsub.SubPredictionLock, event)

	if !g.sleep(ctx) {
		return
	}
	winner := &event.Outcomes[rand.Intn(len(event.Outcomes))]
	event.WinningOutcomeID = winner.ID
	for i := 0; i < 3; i++ {
		used := 1000 + rand.Intn(9000)
		won := used * 2
		winner.TopPredictors = append(winner.TopPredictors, eventsub.TopPredictor{
			UserID:            uuid.NewString(),
			UserLogin:         fmt.Sprintf("predictor_%d", i+1),
			UserName:          fmt.Sprintf("Predictor %d", i+1),
			ChannelPointsWon:  &won,
			ChannelPointsUsed: used,
		})
	}
	ended := time.Now()
	event.EndedAt = &ended
	event.Status = "resolved"
	g.machine.HandleNotification(eventsub.SubPredictionEnd, event)

	// Let the ended state linger before the next cycle begins.
	for i := 0; i < 3; i++ {
		if !g.sleep(ctx) {
			return
		}
	}
}

func (g *Generator) sleep(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(g.tick):
		return true
	}
}
