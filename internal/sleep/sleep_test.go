package sleep

import (
	"log/slog"
	"testing"
	"time"
)

func TestMonitorCreation(t *testing.T) {
	m := New(nil, nil, nil)

	if m == nil {
		t.Fatal("Expected non-nil Monitor")
	}
	if m.IsSleeping() {
		t.Error("Expected IsSleeping()=false for new monitor")
	}
	if m.IsSuppressed() {
		t.Error("Expected IsSuppressed()=false for new monitor")
	}
	if m.logger == nil {
		t.Error("Expected default logger when nil is provided")
	}
}

func TestMonitorSleepAndWake(t *testing.T) {
	var sleeps, wakes int
	m := New(slog.Default(), func() { sleeps++ }, func() { wakes++ })

	m.markSleep()
	m.markSleep()
	if !m.IsSleeping() {
		t.Error("Expected IsSleeping()=true after markSleep()")
	}
	if sleeps != 1 {
		t.Errorf("Expected onSleep once, got %d", sleeps)
	}

	m.markWake()
	m.markWake()
	if m.IsSleeping() {
		t.Error("Expected IsSleeping()=false after markWake()")
	}
	if wakes != 1 {
		t.Errorf("Expected onWake once, got %d", wakes)
	}
}

func TestMonitorWakeWhenAwakeIsNoop(t *testing.T) {
	called := false
	m := New(nil, nil, func() { called = true })

	m.markWake()

	if called {
		t.Error("Expected onWake callback NOT to be called when not sleeping")
	}
}

func TestMonitorSuppression(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	m := New(nil, nil, nil)
	m.now = func() time.Time { return now }

	m.markSleep()
	if !m.IsSuppressed() {
		t.Error("Expected suppression while sleeping")
	}

	m.markWake()
	if !m.IsSuppressed() {
		t.Error("Expected suppression during grace period")
	}

	now = now.Add(DefaultGrace)
	if m.IsSuppressed() {
		t.Error("Expected suppression to end after grace period")
	}
}

func TestMonitorSuppressedDuringDarkWake(t *testing.T) {
	m := New(nil, nil, nil)
	active := false
	m.userActive = func() bool { return active }

	if !m.IsSuppressed() {
		t.Error("Expected suppression during dark wake")
	}
	if m.IsSleeping() {
		t.Error("Dark wake should not count as sleeping")
	}

	active = true
	if m.IsSuppressed() {
		t.Error("Expected no suppression once the user is active")
	}
}
