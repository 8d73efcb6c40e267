package monitor

import (
	"fmt"

	"go.olrik.dev/adbwatch/internal/device"
)

// EventType classifies a change between two published device sets.
type EventType string

const (
	EventAppeared     EventType = "appeared"
	EventDisappeared  EventType = "disappeared"
	EventStateChanged EventType = "state_changed"
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
	EventRenamed      EventType = "renamed"
	EventForgotten    EventType = "forgotten"
)

// Event is one change of one canonical device.
type Event struct {
	DeviceID string    `json:"device_id"`
	Name     string    `json:"name"`
	Type     EventType `json:"type"`
	Details  string    `json:"details,omitempty"`
}

// Diff returns the events that turn previous into current. Events of
// current devices come in current order, followed by disappearances.
func Diff(previous, current []device.Device) []Event {
	prev := make(map[string]device.Device, len(previous))
	for _, d := range previous {
		prev[d.ID] = d
	}

	var events []Event
	seen := make(map[string]bool, len(current))

	for _, d := range current {
		seen[d.ID] = true
		old, ok := prev[d.ID]
		if !ok {
			events = append(events, Event{
				DeviceID: d.ID,
				Name:     d.DisplayName(),
				Type:     EventAppeared,
				Details:  fmt.Sprintf("%s via %s", d.State, d.Primary),
			})
			if d.State.IsConnected() {
				events = append(events, Event{DeviceID: d.ID, Name: d.DisplayName(), Type: EventConnected, Details: d.PrimaryRawID})
			}
			continue
		}

		if old.State != d.State {
			typ := EventStateChanged
			switch {
			case d.State.IsConnected():
				typ = EventConnected
			case old.State.IsConnected():
				typ = EventDisconnected
			}
			events = append(events, Event{
				DeviceID: d.ID,
				Name:     d.DisplayName(),
				Type:     typ,
				Details:  fmt.Sprintf("%s -> %s", old.State, d.State),
			})
		}

		if old.CustomName != d.CustomName {
			events = append(events, Event{
				DeviceID: d.ID,
				Name:     d.DisplayName(),
				Type:     EventRenamed,
				Details:  fmt.Sprintf("%q -> %q", old.CustomName, d.CustomName),
			})
		}
	}

	for _, d := range previous {
		if seen[d.ID] {
			continue
		}
		if d.State.IsConnected() {
			events = append(events, Event{DeviceID: d.ID, Name: d.DisplayName(), Type: EventDisconnected, Details: d.PrimaryRawID})
		}
		events = append(events, Event{DeviceID: d.ID, Name: d.DisplayName(), Type: EventDisappeared})
	}

	return events
}
