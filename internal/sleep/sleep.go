// Package sleep tracks host suspend and resume. USB transports drop and
// network transports go stale while the host sleeps, so device polling is
// held off until the bridge has had a moment to settle after wake.
package sleep

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultGrace is how long polling stays suppressed after wake.
const DefaultGrace = 5 * time.Second

// Monitor records sleep/wake transitions and runs callbacks on each.
type Monitor struct {
	mu       sync.RWMutex
	sleeping bool
	wakeTime time.Time
	grace    time.Duration
	logger   *slog.Logger
	now      func() time.Time
	onSleep  func()
	onWake   func()

	// userActive is false during a dark wake. Nil means always active.
	userActive func() bool
}

// New creates a Monitor. Either callback may be nil.
func New(logger *slog.Logger, onSleep, onWake func()) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		grace:   DefaultGrace,
		logger:  logger.With("component", "sleep"),
		now:     time.Now,
		onSleep: onSleep,
		onWake:  onWake,
	}
}

// IsSuppressed reports whether polling should be skipped: while asleep,
// during a dark wake and for the grace period after wake.
func (m *Monitor) IsSuppressed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.sleeping {
		return true
	}
	if m.userActive != nil && !m.userActive() {
		return true
	}
	return !m.wakeTime.IsZero() && m.now().Sub(m.wakeTime) < m.grace
}

// IsSleeping reports whether the host is currently marked as asleep.
func (m *Monitor) IsSleeping() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sleeping
}

func (m *Monitor) markSleep() {
	m.mu.Lock()
	if m.sleeping {
		m.mu.Unlock()
		return
	}
	m.sleeping = true
	m.mu.Unlock()

	m.logger.Info("Host entering sleep, pausing device polling")

	if m.onSleep != nil {
		m.onSleep()
	}
}

func (m *Monitor) markWake() {
	m.mu.Lock()
	if !m.sleeping {
		m.mu.Unlock()
		return
	}
	m.sleeping = false
	m.wakeTime = m.now()
	m.mu.Unlock()

	m.logger.Info("Host woke up", "grace", m.grace)

	if m.onWake != nil {
		m.onWake()
	}
}
