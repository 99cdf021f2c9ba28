// Package session tracks the lifecycle of the logical EventSub session:
// waiting for the welcome on a fresh transport, registering prediction
// subscriptions once the session id is known, and carrying the session
// across server-driven reconnects.
package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/prediction-overlay/backend/internal/eventsub"
)

// State is the connection lifecycle phase.
type State int

const (
	Disconnected State = iota
	AwaitingWelcome
	Active
)

var stateNames = map[State]string{
	Disconnected:    "disconnected",
	AwaitingWelcome: "awaiting_welcome",
	Active:          "active",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Registrar registers prediction subscriptions for a broadcaster against a
// session id. Implementations must be idempotent: a duplicate welcome
// triggers a second registration for the same session.
type Registrar interface {
	Register(ctx context.Context, broadcasterUserID, sessionID string) error
}

// Manager owns the session id and lifecycle state for the EventSub
// connection. It is driven by the transport client's read loop.
type Manager struct {
	broadcasterUserID string
	registrar         Registrar
	health            *eventsub.Health

	mu        sync.Mutex
	state     State
	sessionID string
}

func NewManager(broadcasterUserID string, registrar Registrar, health *eventsub.Health) *Manager {
	return &Manager{
		broadcasterUserID: broadcasterUserID,
		registrar:         registrar,
		health:            health,
	}
}

// HandleOpen marks a freshly opened transport as awaiting its welcome.
func (m *Manager) HandleOpen() {
	m.mu.Lock()
	m.state = AwaitingWelcome
	m.mu.Unlock()
}

// HandleWelcome activates the session and kicks off subscription
// registration. Registration runs in its own goroutine: its failure is
// reported but never tears down the connection, so a later welcome can
// retry implicitly.
func (m *Manager) HandleWelcome(ctx context.Context, s eventsub.Session) {
	if s.ID == "" {
		log.Error().Msg("session_welcome with empty session id, skipping registration")
		return
	}

	m.mu.Lock()
	duplicate := m.state == Active && m.sessionID == s.ID
	m.state = Active
	m.sessionID = s.ID
	m.mu.Unlock()

	if duplicate {
		log.Debug().Str("session", s.ID).Msg("duplicate session_welcome, re-registering")
	} else {
		log.Info().Str("session", s.ID).Int("keepalive_s", s.KeepaliveTimeoutSeconds).Msg("session active")
	}

	go m.register(ctx, s.ID)
}

// HandleReconnect keeps the session active across a transport swap. The
// upstream service carries existing subscriptions over against the same
// session id, so nothing is re-registered here; doing so would create
// duplicate registrations.
func (m *Manager) HandleReconnect(s eventsub.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Active {
		log.Debug().Str("session", s.ID).Msg("session_reconnect while not active, ignoring")
		return
	}
	log.Info().Str("session", m.sessionID).Msg("session reconnect requested, keeping subscriptions")
}

func (m *Manager) register(ctx context.Context, sessionID string) {
	if err := m.registrar.Register(ctx, m.broadcasterUserID, sessionID); err != nil {
		m.health.RecordRegistrarFailure(err)
		log.Error().Err(err).Str("session", sessionID).Msg("subscription registration failed")
		return
	}
	m.health.RecordRegistrarSuccess()
	log.Info().Str("session", sessionID).Msg("prediction subscriptions registered")
}

// Active reports whether the session welcome has been received.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == Active
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SessionID returns the current logical session id, empty before the first
// welcome.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}
