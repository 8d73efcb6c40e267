package daemon

import (
	"fmt"
	"log/slog"
	"time"

	"go.olrik.dev/adbwatch/internal/core"
	"go.olrik.dev/adbwatch/internal/db"
	"go.olrik.dev/adbwatch/internal/monitor"
)

// pruneInterval is how often old device events are removed.
const pruneInterval = time.Hour

// onCycle records what changed between two published snapshots.
func (d *Daemon) onCycle(previous, current monitor.Snapshot) {
	switch {
	case current.State == monitor.StateError && previous.State != monitor.StateError:
		slog.Warn("Device polling is failing", "error", current.Error)
		d.logDaemonEvent("poll_error", current.Error)
	case current.State != monitor.StateError && previous.State == monitor.StateError:
		slog.Info("Device polling recovered")
		d.logDaemonEvent("poll_recovered", "")
	}

	for _, event := range monitor.Diff(previous.Devices, current.Devices) {
		slog.Info(fmt.Sprintf("Device %s: %s", event.Type, event.Name),
			"device", event.DeviceID,
			"details", event.Details)
		d.logDeviceEvent(event.DeviceID, event.Name, string(event.Type), event.Details)

		// The first cycle reports everything that is already plugged in.
		if previous.Cycles == 0 {
			continue
		}
		switch event.Type {
		case monitor.EventConnected:
			d.notify("Device connected", event.Name)
		case monitor.EventDisconnected:
			d.notify("Device disconnected", event.Name)
		}
	}
}

func (d *Daemon) notify(summary, body string) {
	d.mu.Lock()
	notifier := d.notifier
	d.mu.Unlock()

	if notifier == nil {
		return
	}
	if err := notifier.Notify(summary, body); err != nil {
		slog.Debug("Failed to send desktop notification", "error", err)
	}
}

func (d *Daemon) logDeviceEvent(id, name, eventType, details string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.database == nil {
		return
	}
	if err := d.database.LogDeviceEvent(id, name, eventType, details); err != nil {
		slog.Error("Failed to log device event", "error", err, "device", id, "type", eventType)
	}
}

func (d *Daemon) logDaemonEvent(eventType, details string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.database == nil {
		return
	}
	if err := d.database.LogDaemonEvent(eventType, details); err != nil {
		slog.Error("Failed to log daemon event", "error", err, "type", eventType)
	}
}

func (d *Daemon) lastDeviceEvents() ([]db.DeviceEvent, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.database == nil {
		return nil, fmt.Errorf("event database is not available")
	}
	return d.database.GetLastDeviceEventPerDevice()
}

// pruneEvents removes device events older than the configured retention.
func (d *Daemon) pruneEvents() {
	retention := core.Config.EventRetention
	if retention <= 0 {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.database == nil {
		return
	}
	n, err := d.database.PruneDeviceEvents(time.Now().Add(-retention))
	if err != nil {
		slog.Error("Failed to prune device events", "error", err)
		return
	}
	if n > 0 {
		slog.Info(fmt.Sprintf("Pruned %d device event(s) older than %s", n, retention))
	}
}

func (d *Daemon) startPruneLoop() {
	go func() {
		d.pruneEvents()

		ticker := time.NewTicker(pruneInterval)
		defer ticker.Stop()
		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				d.pruneEvents()
			}
		}
	}()
}
