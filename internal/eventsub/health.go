package eventsub

import (
	"sync"
	"time"
)

// Status summarizes the ingest pipeline for the /healthz endpoint.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// dialFailureThreshold is the consecutive dial failure count at which the
// pipeline is reported failed rather than degraded.
const dialFailureThreshold = 3

// Health tracks ingest failures: consecutive dial failures, malformed
// frames and registrar errors. Fields are protected by mu because the read
// loop writes them while the HTTP server reads snapshots.
type Health struct {
	mu                sync.Mutex
	dialFailures      int
	malformedFrames   int
	registrarFailures int
	lastErr           string
	lastErrAt         time.Time
}

// HealthSnapshot is a consistent copy of all health fields.
type HealthSnapshot struct {
	Status            Status    `json:"status"`
	DialFailures      int       `json:"dialFailures"`
	MalformedFrames   int       `json:"malformedFrames"`
	RegistrarFailures int       `json:"registrarFailures"`
	LastError         string    `json:"lastError,omitempty"`
	LastErrorAt       time.Time `json:"lastErrorAt,omitzero"`
}

func NewHealth() *Health {
	return &Health{}
}

func (h *Health) RecordDialSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dialFailures = 0
}

func (h *Health) RecordDialFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dialFailures++
	h.lastErr = err.Error()
	h.lastErrAt = time.Now()
}

func (h *Health) RecordMalformedFrame(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.malformedFrames++
	h.lastErr = err.Error()
	h.lastErrAt = time.Now()
}

func (h *Health) RecordRegistrarFailure(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registrarFailures++
	h.lastErr = err.Error()
	h.lastErrAt = time.Now()
}

func (h *Health) RecordRegistrarSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registrarFailures = 0
}

// Snapshot returns a consistent copy of all health fields under the lock.
func (h *Health) Snapshot() HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HealthSnapshot{
		Status:            h.statusLocked(),
		DialFailures:      h.dialFailures,
		MalformedFrames:   h.malformedFrames,
		RegistrarFailures: h.registrarFailures,
		LastError:         h.lastErr,
		LastErrorAt:       h.lastErrAt,
	}
}

// statusLocked computes the health status. Caller must hold h.mu.
func (h *Health) statusLocked() Status {
	if h.dialFailures >= dialFailureThreshold {
		return StatusFailed
	}
	if h.registrarFailures > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}
