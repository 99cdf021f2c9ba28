// Package prediction drives the lifecycle of the single current prediction
// event and prepares its outcomes for presentation.
package prediction

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/prediction-overlay/backend/internal/eventsub"
)

// DefaultResetDelay is how long a concluded prediction stays on screen
// before the overlay resets to idle.
const DefaultResetDelay = 30 * time.Second

// Phase is the prediction lifecycle state.
type Phase int

const (
	NotStarted Phase = iota
	Started
	Locked
	Ended
)

var phaseNames = map[Phase]string{
	NotStarted: "not_started",
	Started:    "started",
	Locked:     "locked",
	Ended:      "ended",
}

var phaseFromName = map[string]Phase{
	"not_started": NotStarted,
	"started":     Started,
	"locked":      Locked,
	"ended":       Ended,
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return "unknown"
}

func (p Phase) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Phase) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if v, ok := phaseFromName[s]; ok {
		*p = v
	}
	return nil
}

// Snapshot is the read-only view handed to the presentation layer. Event is
// nil while no prediction is current.
type Snapshot struct {
	Phase Phase                     `json:"phase"`
	Event *eventsub.PredictionEvent `json:"event,omitempty"`
}

// Machine owns the current prediction event and its lifecycle phase. It
// consumes classified notifications in arrival order; each payload replaces
// the snapshot wholesale because the upstream stream is authoritative and
// complete. External consumers only ever see deep copies.
type Machine struct {
	resetDelay time.Duration

	mu         sync.Mutex
	onChange   func(Snapshot)
	phase      Phase
	event      *eventsub.PredictionEvent
	resetTimer *time.Timer
	resetGen   uint64
}

// NewMachine creates a machine that resets to idle resetDelay after a
// prediction ends. A resetDelay <= 0 selects DefaultResetDelay.
func NewMachine(resetDelay time.Duration) *Machine {
	if resetDelay <= 0 {
		resetDelay = DefaultResetDelay
	}
	return &Machine{resetDelay: resetDelay}
}

// OnChange registers the callback invoked with a fresh snapshot after every
// transition. Safe to call at any time, including while messages flow.
func (m *Machine) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// HandleNotification applies one classified notification. Unknown
// subscription types and nil events are ignored.
func (m *Machine) HandleNotification(subscriptionType string, event *eventsub.PredictionEvent) {
	if event == nil {
		return
	}
	switch subscriptionType {
	case eventsub.SubPredictionBegin:
		m.begin(event)
	case eventsub.SubPredictionProgress:
		m.progress(event)
	case eventsub.SubPredictionLock:
		m.lock(event)
	case eventsub.SubPredictionEnd:
		m.end(event)
	default:
		log.Debug().Str("subscription", subscriptionType).Msg("ignoring unknown notification subtype")
	}
}

// begin replaces whatever was previously displayed, including a still
// visible ended prediction. The pending auto-reset timer is cancelled first
// so a stray reset from the prior event can never clobber the new one.
func (m *Machine) begin(event *eventsub.PredictionEvent) {
	m.mu.Lock()
	m.stopResetLocked()
	m.phase = Started
	m.event = event.Clone()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	log.Info().Str("prediction", event.ID).Str("title", event.Title).
		Int("outcomes", len(event.Outcomes)).Msg("prediction started")
	m.notify(snap)
}

// progress overwrites the snapshot with the incoming outcome counts. The
// phase is left unchanged; a progress with no current event still updates
// the snapshot for a best-effort display.
func (m *Machine) progress(event *eventsub.PredictionEvent) {
	m.mu.Lock()
	if m.phase != Started && m.phase != Locked {
		log.Debug().Str("prediction", event.ID).Stringer("phase", m.phase).
			Msg("progress outside started/locked, updating snapshot anyway")
	}
	m.event = event.Clone()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

func (m *Machine) lock(event *eventsub.PredictionEvent) {
	m.mu.Lock()
	m.phase = Locked
	m.event = event.Clone()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	log.Info().Str("prediction", event.ID).Msg("prediction locked")
	m.notify(snap)
}

// end records the final payload with the winning outcome and arms the
// one-shot reset timer. A begin arriving before the timer fires cancels it.
func (m *Machine) end(event *eventsub.PredictionEvent) {
	m.mu.Lock()
	m.stopResetLocked()
	m.phase = Ended
	m.event = event.Clone()
	gen := m.resetGen
	m.resetTimer = time.AfterFunc(m.resetDelay, func() { m.reset(gen) })
	snap := m.snapshotLocked()
	m.mu.Unlock()

	log.Info().Str("prediction", event.ID).Str("winner", event.WinningOutcomeID).Msg("prediction ended")
	m.notify(snap)
}

// reset returns the machine to idle unless a begin superseded the timer. The
// generation check covers the race where the timer callback has already
// fired but loses the lock to a begin.
func (m *Machine) reset(gen uint64) {
	m.mu.Lock()
	if gen != m.resetGen {
		m.mu.Unlock()
		return
	}
	m.phase = NotStarted
	m.event = nil
	m.resetTimer = nil
	snap := m.snapshotLocked()
	m.mu.Unlock()

	log.Debug().Msg("prediction display reset")
	m.notify(snap)
}

// stopResetLocked cancels the pending reset timer and invalidates any
// callback already in flight. Caller must hold m.mu.
func (m *Machine) stopResetLocked() {
	if m.resetTimer != nil {
		m.resetTimer.Stop()
		m.resetTimer = nil
	}
	m.resetGen++
}

// Snapshot returns a deep copy of the current phase and event.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{Phase: m.phase, Event: m.event.Clone()}
}

// notify reads the hook under the lock but invokes it outside, so the
// callback may call back into the machine.
func (m *Machine) notify(snap Snapshot) {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}
