package cmd

import (
	"strings"
	"testing"
	"time"

	"go.olrik.dev/adbwatch/internal/adb"
	"go.olrik.dev/adbwatch/internal/daemon"
	"go.olrik.dev/adbwatch/internal/db"
	"go.olrik.dev/adbwatch/internal/device"
	"go.olrik.dev/adbwatch/internal/history"
)

func TestToYAML(t *testing.T) {
	devices := []device.Device{{
		ID:           "R58M123ABC",
		PrimaryRawID: "R58M123ABC",
		Primary:      device.USB("3"),
		State:        device.StateConnected,
	}}

	out, err := toYAML(devices)
	if err != nil {
		t.Fatalf("toYAML failed: %v", err)
	}

	// Field names follow the JSON tags.
	for _, want := range []string{"- id: R58M123ABC", "primary_raw_id: R58M123ABC", "kind: usb", "state: connected"} {
		if !strings.Contains(string(out), want) {
			t.Errorf("expected %q in output:\n%s", want, out)
		}
	}
	if strings.Contains(string(out), "custom_name") {
		t.Errorf("expected empty fields to be omitted:\n%s", out)
	}
}

func TestFormatStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status daemon.DaemonStatus
		want   []string
	}{
		{
			name: "healthy",
			status: daemon.DaemonStatus{
				Devices: 2, Connected: 1, Cycles: 5, Interval: "3s",
				ADBPath:   "/usr/bin/adb",
				Server:    &adb.ServerInfo{PID: 42, Listening: true},
				StartDate: now.Add(-90 * time.Second).Format(time.RFC3339),
				Pid:       100,
			},
			want: []string{"PID: 100", "Uptime:   1m30s", "every 3s, 5 cycle(s)", "2 (1 connected)", "/usr/bin/adb", "PID 42, listening"},
		},
		{
			name:   "failing without adb",
			status: daemon.DaemonStatus{Error: "adb not found", Interval: "3s"},
			want:   []string{"failing every 3s (adb not found)", "adb:      not found", "Server:   not running"},
		},
		{
			name:   "asleep",
			status: daemon.DaemonStatus{Sleeping: true, Interval: "3s"},
			want:   []string{"paused while the system sleeps"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := formatStatus(tt.status, now)
			for _, want := range tt.want {
				if !strings.Contains(got, want) {
					t.Errorf("expected %q in:\n%s", want, got)
				}
			}
		})
	}
}

func TestFormatHistoryEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry daemon.HistoryEntry
		want  string
	}{
		{
			name: "named with address",
			entry: daemon.HistoryEntry{
				Record: history.Record{
					PersistentSerial: "R58M123ABC",
					CustomName:       "Work",
					LastKnownIP:      "192.168.1.20",
					LastKnownPort:    5555,
					LastSeen:         now.Add(-5 * time.Minute),
				},
				LastEvent: &db.DeviceEvent{EventType: "disconnected"},
			},
			want: "Work (R58M123ABC) at 192.168.1.20:5555, last seen 5m0s ago, last event: disconnected\n",
		},
		{
			name: "model fallback",
			entry: daemon.HistoryEntry{Record: history.Record{
				PersistentSerial: "R58M123ABC",
				Model:            "SM-G973F",
			}},
			want: "SM-G973F (R58M123ABC)\n",
		},
		{
			name:  "serial only",
			entry: daemon.HistoryEntry{Record: history.Record{PersistentSerial: "R58M123ABC"}},
			want:  "R58M123ABC (R58M123ABC)\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatHistoryEntry(tt.entry, now); got != tt.want {
				t.Errorf("formatHistoryEntry() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{12 * time.Second, "12s"},
		{5*time.Minute + 20*time.Second, "5m0s"},
		{3*time.Hour + 10*time.Minute, "3h0m0s"},
		{72 * time.Hour, "3d"},
	}
	for _, tt := range tests {
		if got := formatAge(tt.d); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFormatEvents(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	data := daemon.EventsData{
		DeviceEvents: []db.DeviceEvent{
			{CanonicalID: "R58M123ABC", DeviceName: "Work", EventType: "connected", Details: "offline -> connected", Timestamp: ts},
		},
	}

	got := formatEvents(data, true)
	if !strings.Contains(got, "2026-03-01 12:00:00  connected     Work (R58M123ABC)  offline -> connected\n") {
		t.Errorf("unexpected device events:\n%s", got)
	}
	if !strings.Contains(got, "Daemon events:\n  (none)\n") {
		t.Errorf("expected empty daemon section:\n%s", got)
	}

	if got := formatEvents(data, false); strings.Contains(got, "Daemon events") {
		t.Errorf("expected no daemon section for a device filter:\n%s", got)
	}
}

func TestWithDefaultPort(t *testing.T) {
	tests := map[string]string{
		"192.168.1.20":       "192.168.1.20:5555",
		"192.168.1.20:37000": "192.168.1.20:37000",
	}
	for in, want := range tests {
		if got := withDefaultPort(in); got != want {
			t.Errorf("withDefaultPort(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseKeyCode(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "power", want: 26},
		{in: "HOME", want: 3},
		{in: "66", want: 66},
		{in: "-1", wantErr: true},
		{in: "jump", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseKeyCode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseKeyCode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseKeyCode(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestPortArgs(t *testing.T) {
	validate := portArgs(3)
	tests := []struct {
		args    []string
		wantErr bool
	}{
		{args: []string{"phone", "8080", "8081"}},
		{args: []string{"phone", "8080"}, wantErr: true},
		{args: []string{"phone", "http", "8081"}, wantErr: true},
		{args: []string{"phone", "0", "8081"}, wantErr: true},
		{args: []string{"phone", "8080", "65536"}, wantErr: true},
	}
	for _, tt := range tests {
		if err := validate(nil, tt.args); (err != nil) != tt.wantErr {
			t.Errorf("portArgs(%v) error = %v, wantErr %v", tt.args, err, tt.wantErr)
		}
	}
}
