package adb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"go.olrik.dev/adbwatch/internal/device"
)

// fakeExecutor returns scripted results keyed by the joined argument list.
type fakeExecutor struct {
	mu       sync.Mutex
	results  map[string]Result
	raw      map[string][]byte
	errs     map[string]error
	calls    []string
	timeouts []time.Duration
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		results: make(map[string]Result),
		raw:     make(map[string][]byte),
		errs:    make(map[string]error),
	}
}

func (f *fakeExecutor) on(args string, result Result) {
	f.results[args] = result
}

func (f *fakeExecutor) record(args []string, timeout time.Duration) string {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	f.timeouts = append(f.timeouts, timeout)
	return key
}

func (f *fakeExecutor) Execute(ctx context.Context, path string, args []string, timeout time.Duration) (Result, error) {
	key := f.record(args, timeout)
	if err, ok := f.errs[key]; ok {
		return Result{}, err
	}
	if r, ok := f.results[key]; ok {
		return r, nil
	}
	return Result{ExitCode: 1, Stderr: "unexpected command: " + key}, nil
}

func (f *fakeExecutor) ExecuteRaw(ctx context.Context, path string, args []string, timeout time.Duration) ([]byte, error) {
	key := f.record(args, timeout)
	if err, ok := f.errs[key]; ok {
		return nil, err
	}
	return f.raw[key], nil
}

func (f *fakeExecutor) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func testClient(exec Executor) *Client {
	return NewClient(exec, "/usr/bin/adb", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestListDevices(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("devices -l", Result{Stdout: strings.Join([]string{
		"* daemon not running; starting now at tcp:5037",
		"* daemon started successfully",
		"List of devices attached",
		"R58M123ABC    device usb:1-1 product:beyond1 model:SM_G973F device:beyond1 transport_id:3",
		"192.168.1.20:5555 offline transport_id:4",
	}, "\n")})

	c := testClient(exec)
	obs, err := c.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if obs[0].Model != "SM G973F" {
		t.Errorf("expected model 'SM G973F', got %q", obs[0].Model)
	}
	if obs[1].Connection.Kind != device.KindTCPIP || obs[1].Connection.IP != "192.168.1.20" {
		t.Errorf("unexpected connection %+v", obs[1].Connection)
	}
}

func TestListDevicesFailure(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("devices -l", Result{ExitCode: 1, Stderr: "cannot connect to daemon"})

	_, err := testClient(exec).ListDevices(context.Background())
	var cmdErr *CommandFailedError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("expected CommandFailedError, got %v", err)
	}
	if cmdErr.ExitCode != 1 || cmdErr.Command != "devices -l" {
		t.Errorf("unexpected error %+v", cmdErr)
	}
}

func TestListDevicesTimeout(t *testing.T) {
	exec := newFakeExecutor()
	exec.errs["devices -l"] = ErrTimeout

	_, err := testClient(exec).ListDevices(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestClientWithoutPath(t *testing.T) {
	c := NewClient(newFakeExecutor(), "", nil)
	if _, err := c.ListDevices(context.Background()); !errors.Is(err, ErrExecutorUnavailable) {
		t.Errorf("expected ErrExecutorUnavailable, got %v", err)
	}
	if c.Available(context.Background()) {
		t.Error("expected client without path to be unavailable")
	}
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name    string
		result  Result
		wantErr bool
	}{
		{"connected", Result{Stdout: "connected to 192.168.1.20:5555"}, false},
		{"already connected", Result{Stdout: "already connected to 192.168.1.20:5555"}, false},
		{"failed", Result{Stdout: "failed to connect to '192.168.1.20:5555': Connection refused"}, true},
		{"unable", Result{Stdout: "unable to connect to 192.168.1.20:5555"}, true},
		{"non-zero exit", Result{ExitCode: 1, Stderr: "error: boom"}, true},
		{"silent success", Result{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor()
			exec.on("connect 192.168.1.20:5555", tt.result)

			c := testClient(exec)
			c.SetTimeouts(0, 7*time.Second)
			err := c.Connect(context.Background(), "192.168.1.20:5555")

			if tt.wantErr {
				var connErr *ConnectionFailedError
				if !errors.As(err, &connErr) {
					t.Fatalf("expected ConnectionFailedError, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if exec.timeouts[0] != 7*time.Second {
				t.Errorf("expected connect timeout 7s, got %v", exec.timeouts[0])
			}
		})
	}
}

func TestDisconnectToleratesExitCode(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("disconnect 10.0.0.2:5555", Result{ExitCode: 1, Stdout: "disconnected 10.0.0.2:5555"})
	exec.on("disconnect 10.0.0.3:5555", Result{ExitCode: 1, Stdout: "error: no such device '10.0.0.3:5555'"})

	c := testClient(exec)
	if err := c.Disconnect(context.Background(), "10.0.0.2:5555"); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if err := c.Disconnect(context.Background(), "10.0.0.3:5555"); err == nil {
		t.Error("expected error for unknown device")
	}
}

func TestPair(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("pair 10.0.0.2:37123 123456", Result{Stdout: "Successfully paired to 10.0.0.2:37123 [guid=adb-XYZ]"})
	exec.on("pair 10.0.0.2:37123 000000", Result{ExitCode: 1, Stdout: "Failed: Wrong password or connection was dropped."})

	c := testClient(exec)
	if err := c.Pair(context.Background(), "10.0.0.2:37123", "123456"); err != nil {
		t.Errorf("expected success, got %v", err)
	}
	var connErr *ConnectionFailedError
	if err := c.Pair(context.Background(), "10.0.0.2:37123", "000000"); !errors.As(err, &connErr) {
		t.Errorf("expected ConnectionFailedError, got %v", err)
	}
}

func TestDeviceCommands(t *testing.T) {
	tests := []struct {
		name string
		run  func(c *Client) error
		want string
	}{
		{"tcpip", func(c *Client) error { return c.EnableTCPIP(context.Background(), "SER", 5555) }, "-s SER tcpip 5555"},
		{"reverse add", func(c *Client) error { return c.ReverseAdd(context.Background(), "SER", 8081, 8080) }, "-s SER reverse tcp:8081 tcp:8080"},
		{"reverse remove", func(c *Client) error { return c.ReverseRemove(context.Background(), "SER", 8081) }, "-s SER reverse --remove tcp:8081"},
		{"reverse remove all", func(c *Client) error { return c.ReverseRemoveAll(context.Background(), "SER") }, "-s SER reverse --remove-all"},
		{"forward add", func(c *Client) error { return c.ForwardAdd(context.Background(), "SER", 9000, 9001) }, "-s SER forward tcp:9000 tcp:9001"},
		{"forward remove", func(c *Client) error { return c.ForwardRemove(context.Background(), "SER", 9000) }, "-s SER forward --remove tcp:9000"},
		{"reboot", func(c *Client) error { return c.Reboot(context.Background(), "SER", "") }, "-s SER reboot"},
		{"reboot recovery", func(c *Client) error { return c.Reboot(context.Background(), "SER", "recovery") }, "-s SER reboot recovery"},
		{"keyevent", func(c *Client) error { return c.InputKeyEvent(context.Background(), "SER", 26) }, "-s SER shell input keyevent 26"},
		{"input text", func(c *Client) error { return c.InputText(context.Background(), "SER", "hi there") }, "-s SER shell input text hi%sthere"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := newFakeExecutor()
			exec.on(tt.want, Result{})
			if err := tt.run(testClient(exec)); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := exec.lastCall(); got != tt.want {
				t.Errorf("expected call %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRebootRejectsUnknownMode(t *testing.T) {
	exec := newFakeExecutor()
	if err := testClient(exec).Reboot(context.Background(), "SER", "fastboot"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
	if len(exec.calls) != 0 {
		t.Errorf("expected no adb call, got %v", exec.calls)
	}
}

func TestGetProperty(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("-s SER shell getprop ro.product.model", Result{Stdout: "Pixel 7"})
	exec.on("-s SER shell getprop ro.serialno", Result{ExitCode: 255, Stderr: "error: device offline"})

	c := testClient(exec)
	got, err := c.GetProperty(context.Background(), "SER", "ro.product.model")
	if err != nil || got != "Pixel 7" {
		t.Errorf("expected 'Pixel 7', got %q (%v)", got, err)
	}
	if _, err := c.GetProperty(context.Background(), "SER", "ro.serialno"); err == nil {
		t.Error("expected error for failed getprop")
	}
}

func TestReverseList(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("-s SER reverse --list", Result{Stdout: "host-19 tcp:8081 tcp:8081\nUsbFfs tcp:3000 tcp:4000"})
	exec.on("-s EMPTY reverse --list", Result{ExitCode: 1})

	c := testClient(exec)
	forwards, err := c.ReverseList(context.Background(), "SER")
	if err != nil {
		t.Fatalf("ReverseList failed: %v", err)
	}
	if len(forwards) != 2 {
		t.Fatalf("expected 2 forwards, got %d", len(forwards))
	}
	if forwards[1].LocalPort != 3000 || forwards[1].RemotePort != 4000 {
		t.Errorf("unexpected forward %+v", forwards[1])
	}

	empty, err := c.ReverseList(context.Background(), "EMPTY")
	if err != nil {
		t.Fatalf("expected empty list without error, got %v", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no forwards, got %d", len(empty))
	}
}

func TestForwardListFiltersDevice(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("forward --list", Result{Stdout: "SER tcp:9000 tcp:9001\nOTHER tcp:9100 tcp:9101"})

	forwards, err := testClient(exec).ForwardList(context.Background(), "SER")
	if err != nil {
		t.Fatalf("ForwardList failed: %v", err)
	}
	if len(forwards) != 1 || forwards[0].DeviceID != "SER" {
		t.Errorf("expected one forward for SER, got %+v", forwards)
	}
}

func TestScreenshot(t *testing.T) {
	exec := newFakeExecutor()
	png := []byte{0x89, 'P', 'N', 'G'}
	exec.raw["-s SER exec-out screencap -p"] = png

	c := testClient(exec)
	data, err := c.Screenshot(context.Background(), "SER")
	if err != nil {
		t.Fatalf("Screenshot failed: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("unexpected data %v", data)
	}

	var cmdErr *CommandFailedError
	if _, err := c.Screenshot(context.Background(), "NONE"); !errors.As(err, &cmdErr) {
		t.Errorf("expected CommandFailedError for empty data, got %v", err)
	}
}

func TestVersion(t *testing.T) {
	exec := newFakeExecutor()
	exec.on("version", Result{Stdout: "Android Debug Bridge version 1.0.41\nVersion 34.0.5-10900879"})

	c := testClient(exec)
	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if v != "Android Debug Bridge version 1.0.41" {
		t.Errorf("unexpected version %q", v)
	}
	if !c.Available(context.Background()) {
		t.Error("expected client to be available")
	}
}

func TestEscapeInputText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"hello world", "hello%sworld"},
		{`it's "ok"`, `it\'s%s\"ok\"`},
		{"a&b;c", `a\&b\;c`},
		{"<(x)>", `\<\(x\)\>`},
	}
	for _, tt := range tests {
		if got := EscapeInputText(tt.in); got != tt.want {
			t.Errorf("EscapeInputText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsServerCommandLine(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"adb", "-L", "tcp:5037", "fork-server", "server", "--reply-fd", "4"}, true},
		{[]string{"/opt/sdk/platform-tools/adb", "start-server"}, true},
		{[]string{"adb", "devices"}, false},
		{[]string{"adbwatch", "server"}, false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isServerCommandLine(tt.args); got != tt.want {
			t.Errorf("isServerCommandLine(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}
