// Package device turns raw adb listings into observations and reconciles
// them into one stable Device per physical handset.
package device

import (
	"fmt"
	"slices"
)

// State is the adb transport state of a single observation.
type State string

const (
	StateConnected    State = "connected"
	StateUnauthorized State = "unauthorized"
	StateOffline      State = "offline"
	StateConnecting   State = "connecting"
	StateUnknown      State = "unknown"
)

// ParseState maps an adb state token to a State. Unknown tokens map to
// StateUnknown rather than failing.
func ParseState(token string) State {
	switch token {
	case "device":
		return StateConnected
	case "unauthorized":
		return StateUnauthorized
	case "offline":
		return StateOffline
	case "connecting", "authorizing":
		return StateConnecting
	default:
		return StateUnknown
	}
}

// IsConnected reports whether the device is fully usable (adb "device").
func (s State) IsConnected() bool {
	return s == StateConnected
}

// DisplayName returns a human readable label for the state.
func (s State) DisplayName() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateUnauthorized:
		return "Unauthorized"
	case StateOffline:
		return "Offline"
	case StateConnecting:
		return "Connecting..."
	default:
		return "Unknown"
	}
}

// ConnectionKind identifies the transport an observation was seen on.
type ConnectionKind string

const (
	KindUSB           ConnectionKind = "usb"
	KindTCPIP         ConnectionKind = "tcpip"
	KindWirelessDebug ConnectionKind = "wireless_debug"
	KindUnknown       ConnectionKind = "unknown"
)

// Connection is a tagged transport variant. IP and Port are only set for
// address based transports.
type Connection struct {
	Kind        ConnectionKind `json:"kind"`
	TransportID string         `json:"transport_id,omitempty"`
	IP          string         `json:"ip,omitempty"`
	Port        int            `json:"port,omitempty"`
}

// USB returns a USB connection.
func USB(transportID string) Connection {
	return Connection{Kind: KindUSB, TransportID: transportID}
}

// TCPIP returns an address based connection.
func TCPIP(ip string, port int, transportID string) Connection {
	return Connection{Kind: KindTCPIP, TransportID: transportID, IP: ip, Port: port}
}

// WirelessDebug returns a wireless-debugging (mDNS discovered) connection.
func WirelessDebug(transportID string) Connection {
	return Connection{Kind: KindWirelessDebug, TransportID: transportID}
}

// HasAddress reports whether the connection carries an IP address.
func (c Connection) HasAddress() bool {
	return c.IP != ""
}

// IsNetwork reports whether the connection goes over the network rather
// than a cable.
func (c Connection) IsNetwork() bool {
	return c.Kind == KindTCPIP || c.Kind == KindWirelessDebug
}

// Priority orders connections for primary selection:
// USB > TCP/IP with a known address > wireless debug > anything else.
func (c Connection) Priority() int {
	switch {
	case c.Kind == KindUSB:
		return 3
	case c.Kind == KindTCPIP && c.HasAddress():
		return 2
	case c.Kind == KindWirelessDebug:
		return 1
	default:
		return 0
	}
}

// Address returns "ip:port" for address based connections.
func (c Connection) Address() string {
	if !c.HasAddress() {
		return ""
	}
	return fmt.Sprintf("%s:%d", c.IP, c.Port)
}

func (c Connection) String() string {
	switch c.Kind {
	case KindUSB:
		return "USB"
	case KindTCPIP:
		if c.HasAddress() {
			return c.Address()
		}
		return "TCP/IP"
	case KindWirelessDebug:
		if c.HasAddress() {
			return fmt.Sprintf("Wireless Debug (%s)", c.Address())
		}
		return "Wireless Debug"
	default:
		return "Unknown"
	}
}

// Observation is one sighting of a device on one transport in one poll.
// RawID is unique within a poll but not stable across polls.
type Observation struct {
	RawID       string
	TransportID string
	Connection  Connection
	State       State
	Model       string
	Product     string

	// Populated by the Enricher, only for connected observations.
	Brand            string
	AndroidVersion   string
	SDKVersion       string
	PersistentSerial string
}

// Device is the reconciled identity of one physical device.
type Device struct {
	ID               string       `json:"id"`
	PrimaryRawID     string       `json:"primary_raw_id"`
	Primary          Connection   `json:"primary"`
	SecondaryRawIDs  []string     `json:"secondary_raw_ids,omitempty"`
	Secondary        []Connection `json:"secondary,omitempty"`
	State            State        `json:"state"`
	PersistentSerial string       `json:"persistent_serial,omitempty"`
	CustomName       string       `json:"custom_name,omitempty"`
	Model            string       `json:"model,omitempty"`
	Brand            string       `json:"brand,omitempty"`
	AndroidVersion   string       `json:"android_version,omitempty"`
	SDKVersion       string       `json:"sdk_version,omitempty"`
	Product          string       `json:"product,omitempty"`
}

// DisplayName is the custom name, else the model, else the primary raw id.
func (d Device) DisplayName() string {
	if d.CustomName != "" {
		return d.CustomName
	}
	if d.Model != "" {
		return d.Model
	}
	return d.PrimaryRawID
}

// Description joins brand and model, falling back to the primary raw id.
func (d Device) Description() string {
	switch {
	case d.Brand != "" && d.Model != "":
		return d.Brand + " " + d.Model
	case d.Model != "":
		return d.Model
	case d.Brand != "":
		return d.Brand
	}
	return d.PrimaryRawID
}

// AllRawIDs returns the primary raw id followed by the secondaries.
func (d Device) AllRawIDs() []string {
	return append([]string{d.PrimaryRawID}, d.SecondaryRawIDs...)
}

// AllConnections returns the primary connection followed by the secondaries.
func (d Device) AllConnections() []Connection {
	return append([]Connection{d.Primary}, d.Secondary...)
}

// HasMultipleConnections reports whether the device is reachable on more
// than one transport.
func (d Device) HasMultipleConnections() bool {
	return len(d.Secondary) > 0
}

// BestRawID returns the raw id adb commands should target: USB first, then
// an addressed TCP/IP transport, then whatever the primary is.
func (d Device) BestRawID() string {
	if d.Primary.Kind == KindUSB || (d.Primary.Kind == KindTCPIP && d.Primary.HasAddress()) {
		return d.PrimaryRawID
	}
	for _, want := range []int{3, 2} {
		for i, c := range d.Secondary {
			if c.Priority() == want && i < len(d.SecondaryRawIDs) {
				return d.SecondaryRawIDs[i]
			}
		}
	}
	return d.PrimaryRawID
}

// NetworkRawIDs returns every raw id of the device that is reached over the
// network, primary first.
func (d Device) NetworkRawIDs() []string {
	var ids []string
	if d.Primary.IsNetwork() {
		ids = append(ids, d.PrimaryRawID)
	}
	for i, c := range d.Secondary {
		if c.IsNetwork() && i < len(d.SecondaryRawIDs) {
			ids = append(ids, d.SecondaryRawIDs[i])
		}
	}
	return ids
}

// Matches reports whether target names this device, either by canonical id,
// persistent serial or any of its raw ids.
func (d Device) Matches(target string) bool {
	if target == "" {
		return false
	}
	if d.ID == target || d.PersistentSerial == target {
		return true
	}
	return slices.Contains(d.AllRawIDs(), target)
}

// Clone returns a deep copy of the device.
func (d Device) Clone() Device {
	d.SecondaryRawIDs = slices.Clone(d.SecondaryRawIDs)
	d.Secondary = slices.Clone(d.Secondary)
	return d
}

// Find returns the first device in devices matching target.
func Find(devices []Device, target string) (Device, bool) {
	for _, d := range devices {
		if d.ID == target {
			return d, true
		}
	}
	for _, d := range devices {
		if d.Matches(target) {
			return d, true
		}
	}
	return Device{}, false
}

// Direction of a port forward.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

// PortForward is one entry of `adb forward --list` or `adb reverse --list`.
type PortForward struct {
	ID         string    `json:"id"`
	DeviceID   string    `json:"device_id"`
	Direction  Direction `json:"direction"`
	LocalPort  int       `json:"local_port"`
	RemotePort int       `json:"remote_port"`
	LocalSpec  string    `json:"local_spec"`
	RemoteSpec string    `json:"remote_spec"`
}

func (p PortForward) String() string {
	if p.Direction == DirectionReverse {
		return fmt.Sprintf("Device:%d -> Local:%d", p.LocalPort, p.RemotePort)
	}
	return fmt.Sprintf("Local:%d -> Device:%d", p.LocalPort, p.RemotePort)
}
