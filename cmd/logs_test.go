package cmd

import "testing"

func TestStripANSI(t *testing.T) {
	in := "\x1b[2m2026-03-01 12:00:00\x1b[0m \x1b[92mINF\x1b[0m Device connected: Work"
	want := "2026-03-01 12:00:00 INF Device connected: Work"
	if got := stripANSI(in); got != want {
		t.Errorf("stripANSI() = %q, want %q", got, want)
	}
}

func TestIsDebugLog(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"2026-03-01 12:00:00 DBG Running adb command args=devices", true},
		{"\x1b[2m2026-03-01 12:00:00\x1b[0m \x1b[2mDBG\x1b[0m Running adb command", true},
		{"2026-03-01 12:00:00 INF Device connected: Work", false},
	}
	for _, tt := range tests {
		if got := isDebugLog(tt.line); got != tt.want {
			t.Errorf("isDebugLog(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestMatchesFilter(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		filter string
		want   bool
	}{
		{"device category", "INF Device connected: Work", "device", true},
		{"device category miss", "INF Refresh interval changed", "device", false},
		{"poll category", "DBG Running adb command args=devices", "poll", true},
		{"system category", "INF Configuration reloaded successfully", "system", true},
		{"system category upper case", "INF Database opened", "SYSTEM", true},
		{"free keyword", "INF Paired with 192.168.1.20:37000", "192.168.1.20", true},
		{"free keyword miss", "INF Paired with 192.168.1.20:37000", "10.0.0.1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchesFilter(tt.line, tt.filter); got != tt.want {
				t.Errorf("matchesFilter(%q, %q) = %v, want %v", tt.line, tt.filter, got, tt.want)
			}
		})
	}
}
