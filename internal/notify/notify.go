// Package notify shows desktop notifications through the freedesktop
// notification service on the session bus.
package notify

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
)

const (
	AppName = "adbwatch"

	busName    = "org.freedesktop.Notifications"
	objectPath = "/org/freedesktop/Notifications"
	method     = "org.freedesktop.Notifications.Notify"

	// DefaultExpire is the display time in milliseconds.
	DefaultExpire = 5000
)

// Notifier delivers a short message to the user.
type Notifier interface {
	Notify(summary, body string) error
}

// caller is the subset of dbus.BusObject used to send a notification.
type caller interface {
	Call(method string, flags dbus.Flags, args ...any) *dbus.Call
}

// Desktop sends notifications over D-Bus.
type Desktop struct {
	obj    caller
	logger *slog.Logger
}

// NewDesktop connects to the session bus.
func NewDesktop(logger *slog.Logger) (*Desktop, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Desktop{
		obj:    conn.Object(busName, dbus.ObjectPath(objectPath)),
		logger: logger,
	}, nil
}

func (d *Desktop) Notify(summary, body string) error {
	call := d.obj.Call(method, 0,
		AppName,
		uint32(0),
		"phone",
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{},
		int32(DefaultExpire),
	)
	if call.Err != nil {
		return fmt.Errorf("notification failed: %w", call.Err)
	}
	d.logger.Debug("Notification sent", "summary", summary)
	return nil
}

// Noop discards notifications.
type Noop struct{}

func (Noop) Notify(summary, body string) error { return nil }

// New returns a Desktop notifier when enabled and a session bus is reachable,
// otherwise Noop.
func New(enabled bool, logger *slog.Logger) Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "notify")
	if !enabled {
		return Noop{}
	}
	d, err := NewDesktop(logger)
	if err != nil {
		logger.Debug("Desktop notifications unavailable", "error", err)
		return Noop{}
	}
	return d
}
