package device

import (
	"testing"
)

func TestParseDeviceList(t *testing.T) {
	output := `* daemon not running; starting now at tcp:5037
* daemon started successfully
List of devices attached
ABC123                 device usb:1-1 product:raven model:Pixel_6 device:raven transport_id:1
192.168.1.10:5555      device product:raven model:Pixel_6 device:raven transport_id:2

adb-ABC123-xyz._adb-tls-connect._tcp offline transport_id:3
emulator-5554          unauthorized transport_id:4
lonely
`

	obs := ParseDeviceList(output)
	if len(obs) != 4 {
		t.Fatalf("expected 4 observations, got %d", len(obs))
	}

	tests := []struct {
		rawID       string
		state       State
		kind        ConnectionKind
		model       string
		product     string
		transportID string
	}{
		{"ABC123", StateConnected, KindUSB, "Pixel 6", "raven", "1"},
		{"192.168.1.10:5555", StateConnected, KindTCPIP, "Pixel 6", "raven", "2"},
		{"adb-ABC123-xyz._adb-tls-connect._tcp", StateOffline, KindWirelessDebug, "", "", "3"},
		{"emulator-5554", StateUnauthorized, KindUSB, "", "", "4"},
	}

	for i, tt := range tests {
		o := obs[i]
		if o.RawID != tt.rawID {
			t.Errorf("[%d] expected raw id %q, got %q", i, tt.rawID, o.RawID)
		}
		if o.State != tt.state {
			t.Errorf("[%d] expected state %q, got %q", i, tt.state, o.State)
		}
		if o.Connection.Kind != tt.kind {
			t.Errorf("[%d] expected kind %q, got %q", i, tt.kind, o.Connection.Kind)
		}
		if o.Model != tt.model {
			t.Errorf("[%d] expected model %q, got %q", i, tt.model, o.Model)
		}
		if o.Product != tt.product {
			t.Errorf("[%d] expected product %q, got %q", i, tt.product, o.Product)
		}
		if o.TransportID != tt.transportID || o.Connection.TransportID != tt.transportID {
			t.Errorf("[%d] expected transport id %q, got %q/%q", i, tt.transportID, o.TransportID, o.Connection.TransportID)
		}
	}
}

func TestParseDeviceListEmpty(t *testing.T) {
	if obs := ParseDeviceList("List of devices attached\n\n"); len(obs) != 0 {
		t.Errorf("expected no observations, got %d", len(obs))
	}
}

func TestParseDeviceLineIgnoresUnknownKeys(t *testing.T) {
	obs, ok := ParseDeviceLine("SER device usb:1-2 weird:thing nokey product:p1")
	if !ok {
		t.Fatal("expected line to parse")
	}
	if obs.Product != "p1" || obs.Model != "" {
		t.Errorf("unexpected observation %+v", obs)
	}
}

func TestParseStateUnknown(t *testing.T) {
	tests := map[string]State{
		"device":       StateConnected,
		"offline":      StateOffline,
		"unauthorized": StateUnauthorized,
		"connecting":   StateConnecting,
		"authorizing":  StateConnecting,
		"recovery":     StateUnknown,
		"bootloader":   StateUnknown,
	}
	for token, want := range tests {
		if got := ParseState(token); got != want {
			t.Errorf("ParseState(%q) = %q, want %q", token, got, want)
		}
	}
}

func TestOfflineTCPWithoutHistory(t *testing.T) {
	obs := ParseDeviceList("192.168.1.50:5555 offline")
	if len(obs) != 1 {
		t.Fatalf("expected 1 observation, got %d", len(obs))
	}
	o := obs[0]
	if o.Connection.Kind != KindTCPIP || o.Connection.IP != "192.168.1.50" || o.Connection.Port != 5555 {
		t.Errorf("unexpected connection %+v", o.Connection)
	}
	if o.PersistentSerial != "" {
		t.Errorf("expected no serial, got %q", o.PersistentSerial)
	}
}

func TestClassifyConnection(t *testing.T) {
	tests := []struct {
		rawID string
		kind  ConnectionKind
		ip    string
		port  int
	}{
		{"ABC123", KindUSB, "", 0},
		{"192.168.1.10:5555", KindTCPIP, "192.168.1.10", 5555},
		{"10.0.0.1:1", KindTCPIP, "10.0.0.1", 1},
		{"256.0.0.1:5555", KindUSB, "", 0},
		{"192.168.1:5555", KindUSB, "", 0},
		{"192.168.1.10:70000", KindUSB, "", 0},
		{"192.168.1.10:", KindUSB, "", 0},
		{"host.local:5555", KindUSB, "", 0},
		{"+1.2.3.4:5555", KindUSB, "", 0},
		{"1.-2.3.4:5555", KindUSB, "", 0},
		{"1.2.3.4:+5555", KindUSB, "", 0},
		{"1..3.4:5555", KindUSB, "", 0},
		{"adb-R58M-abc._adb-tls-connect._tcp", KindWirelessDebug, "", 0},
		{"adb-R58M-abc._adb-tls-pairing._tcp", KindWirelessDebug, "", 0},
		{"something._adb-tls-connect._tcp.", KindWirelessDebug, "", 0},
		{"adb-no-service", KindUSB, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.rawID, func(t *testing.T) {
			c := ClassifyConnection(tt.rawID, "7")
			if c.Kind != tt.kind {
				t.Fatalf("expected kind %q, got %q", tt.kind, c.Kind)
			}
			if c.IP != tt.ip || c.Port != tt.port {
				t.Errorf("expected %s:%d, got %s:%d", tt.ip, tt.port, c.IP, c.Port)
			}
			if c.TransportID != "7" {
				t.Errorf("expected transport id to be recorded, got %q", c.TransportID)
			}
		})
	}
}

func TestParseReverseList(t *testing.T) {
	forwards := ParseReverseList("tcp:8081 tcp:8081", "ABC123")
	if len(forwards) != 1 {
		t.Fatalf("expected 1 forward, got %d", len(forwards))
	}
	f := forwards[0]
	if f.Direction != DirectionReverse || f.LocalPort != 8081 || f.RemotePort != 8081 {
		t.Errorf("unexpected forward %+v", f)
	}
	if f.DeviceID != "ABC123" || f.ID == "" {
		t.Errorf("expected device id and generated id, got %+v", f)
	}
}

func TestParseReverseListSkipsMalformed(t *testing.T) {
	output := `UsbFfs tcp:3000 tcp:4000
garbage
tcp:5000
host-12 tcp:abc tcp:6000
host-13 localabstract:chrome tcp:7000 tcp:7001`

	forwards := ParseReverseList(output, "SER")
	if len(forwards) != 2 {
		t.Fatalf("expected 2 forwards, got %d: %+v", len(forwards), forwards)
	}
	if forwards[0].LocalPort != 3000 || forwards[0].RemotePort != 4000 {
		t.Errorf("unexpected first forward %+v", forwards[0])
	}
	if forwards[1].LocalPort != 7000 || forwards[1].RemotePort != 7001 {
		t.Errorf("unexpected second forward %+v", forwards[1])
	}
}

func TestParseForwardList(t *testing.T) {
	output := `SER tcp:9000 tcp:9001
OTHER tcp:9100 tcp:9101
SER localabstract:x tcp:9200
SER tcp:9300`

	tests := []struct {
		name     string
		deviceID string
		want     int
	}{
		{"filtered", "SER", 1},
		{"all devices", "", 2},
		{"unknown device", "NOPE", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			forwards := ParseForwardList(output, tt.deviceID)
			if len(forwards) != tt.want {
				t.Fatalf("expected %d forwards, got %d", tt.want, len(forwards))
			}
			for _, f := range forwards {
				if f.Direction != DirectionForward {
					t.Errorf("expected forward direction, got %q", f.Direction)
				}
				if f.LocalSpec != TCPSpec(f.LocalPort) || f.RemoteSpec != TCPSpec(f.RemotePort) {
					t.Errorf("spec and port disagree: %+v", f)
				}
			}
		})
	}
}
