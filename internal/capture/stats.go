package capture

import (
	"sync"
	"time"
)

// Stats tracks pipeline counters for logging and the status API.
// All methods are safe for concurrent use.
type Stats struct {
	mu sync.RWMutex

	startedAt       time.Time
	framesDelivered uint64
	framesPerSecond float64
	mode            AccelMode
	fallbacks       int
	sessions        uint64
	sessionID       string
	sessionActive   bool
	lastFrameAt     time.Time
}

// StatsSnapshot is a point-in-time copy of the pipeline counters.
type StatsSnapshot struct {
	StartedAt       time.Time `json:"started_at"`
	UptimeSeconds   float64   `json:"uptime_seconds"`
	FramesDelivered uint64    `json:"frames_delivered"`
	FramesPerSecond float64   `json:"frames_per_second"`
	AccelMode       string    `json:"accel_mode"`
	Fallbacks       int       `json:"fallbacks"`
	Sessions        uint64    `json:"sessions"`
	SessionID       string    `json:"session_id,omitempty"`
	SessionActive   bool      `json:"session_active"`
	LastFrameAt     time.Time `json:"last_frame_at,omitzero"`
}

// NewStats returns a collector stamped with the current time.
func NewStats() *Stats {
	return &Stats{startedAt: time.Now()}
}

// SetMode records the accelerator mode of the current attempt.
func (s *Stats) SetMode(mode AccelMode) {
	s.mu.Lock()
	s.mode = mode
	s.mu.Unlock()
}

// FallbackRecorded counts a hardware-to-software fallback.
func (s *Stats) FallbackRecorded() {
	s.mu.Lock()
	s.fallbacks++
	s.mu.Unlock()
}

// SessionStarted records a new decode session.
func (s *Stats) SessionStarted(id string) {
	s.mu.Lock()
	s.sessions++
	s.sessionID = id
	s.sessionActive = true
	s.mu.Unlock()
}

// SessionEnded marks the current session as torn down.
func (s *Stats) SessionEnded() {
	s.mu.Lock()
	s.sessionActive = false
	s.mu.Unlock()
}

// FrameDelivered counts a frame handed to the consumer.
func (s *Stats) FrameDelivered() {
	s.mu.Lock()
	s.framesDelivered++
	s.lastFrameAt = time.Now()
	s.mu.Unlock()
}

// SetRate records the delivery rate measured over the last report window.
func (s *Stats) SetRate(fps float64) {
	s.mu.Lock()
	s.framesPerSecond = fps
	s.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return StatsSnapshot{
		StartedAt:       s.startedAt,
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
		FramesDelivered: s.framesDelivered,
		FramesPerSecond: s.framesPerSecond,
		AccelMode:       string(s.mode),
		Fallbacks:       s.fallbacks,
		Sessions:        s.sessions,
		SessionID:       s.sessionID,
		SessionActive:   s.sessionActive,
		LastFrameAt:     s.lastFrameAt,
	}
}
