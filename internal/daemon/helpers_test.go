package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"go.olrik.dev/adbwatch/internal/adb"
	"go.olrik.dev/adbwatch/internal/core"
)

const testSerial = "R58M123ABC"

// scriptedExecutor answers adb invocations keyed by their joined arguments.
// Unknown invocations fail with exit code 1.
type scriptedExecutor struct {
	mu      sync.Mutex
	results map[string]adb.Result
	raw     map[string][]byte
	calls   []string
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		results: make(map[string]adb.Result),
		raw:     make(map[string][]byte),
	}
}

func (s *scriptedExecutor) on(args string, result adb.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[args] = result
}

func (s *scriptedExecutor) called(args string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c == args {
			return true
		}
	}
	return false
}

func (s *scriptedExecutor) count(args string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == args {
			n++
		}
	}
	return n
}

func (s *scriptedExecutor) Execute(ctx context.Context, path string, args []string, timeout time.Duration) (adb.Result, error) {
	key := strings.Join(args, " ")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)
	if r, ok := s.results[key]; ok {
		return r, nil
	}
	return adb.Result{ExitCode: 1, Stderr: "unexpected command: " + key}, nil
}

func (s *scriptedExecutor) ExecuteRaw(ctx context.Context, path string, args []string, timeout time.Duration) ([]byte, error) {
	key := strings.Join(args, " ")
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, key)
	return s.raw[key], nil
}

// withUSBPhone scripts a single enriched phone attached over USB.
func withUSBPhone(s *scriptedExecutor) *scriptedExecutor {
	s.on("version", adb.Result{Stdout: "Android Debug Bridge version 1.0.41\nVersion 35.0.2"})
	s.on("devices -l", adb.Result{Stdout: "List of devices attached\n" +
		testSerial + "    device usb:1-1 product:beyond1 model:SM_G973F device:beyond1 transport_id:3"})
	s.on("-s "+testSerial+" shell getprop ro.serialno", adb.Result{Stdout: testSerial})
	s.on("-s "+testSerial+" shell getprop ro.product.model", adb.Result{Stdout: "SM-G973F"})
	s.on("-s "+testSerial+" shell getprop ro.product.brand", adb.Result{Stdout: "samsung"})
	s.on("-s "+testSerial+" shell getprop ro.build.version.release", adb.Result{Stdout: "12"})
	s.on("-s "+testSerial+" shell getprop ro.build.version.sdk", adb.Result{Stdout: "31"})
	return s
}

// newTestDaemon builds a daemon whose adb calls go to exec. The monitor is
// not started; tests drive cycles with REFRESH.
func newTestDaemon(t *testing.T, exec adb.Executor) *Daemon {
	t.Helper()
	quietLogger(t)

	dir := shortTempDir(t)
	adbPath := filepath.Join(dir, "adb")
	if err := os.WriteFile(adbPath, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatalf("failed to create fake adb: %v", err)
	}

	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	cfg := core.GetDefaultConfig()
	cfg.ConfigPath = dir
	cfg.ADBPath = adbPath
	cfg.RefreshInterval = time.Hour
	cfg.ScreenshotDir = filepath.Join(dir, "shots")
	core.Config = cfg

	d := New()
	d.setupMonitor(exec)
	t.Cleanup(func() {
		d.monitor.Stop()
		d.cancelFunc()
	})
	return d
}

// sendIPCCommand sends command to handleConnection over net.Pipe and
// decodes the JSON response.
func sendIPCCommand(t *testing.T, d *Daemon, command string) Response {
	t.Helper()

	data := sendRaw(t, d, command)

	var resp Response
	if len(data) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil {
			t.Fatalf("failed to parse response JSON %q: %v", string(data), err)
		}
	}
	return resp
}

// sendStreamingIPCCommand returns every streamed message of command.
func sendStreamingIPCCommand(t *testing.T, d *Daemon, command string) []ResponseMessage {
	t.Helper()

	var messages []ResponseMessage
	scanner := bufio.NewScanner(strings.NewReader(string(sendRaw(t, d, command))))
	for scanner.Scan() {
		var msg ResponseMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			t.Fatalf("invalid streamed line %q: %v", scanner.Text(), err)
		}
		messages = append(messages, msg)
	}
	return messages
}

func sendRaw(t *testing.T, d *Daemon, command string) []byte {
	t.Helper()

	clientConn, serverConn := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		d.handleConnection(serverConn)
	}()

	if _, err := clientConn.Write([]byte(command + "\n")); err != nil {
		t.Fatalf("failed to write command: %v", err)
	}
	data, err := io.ReadAll(clientConn)
	if err != nil {
		t.Fatalf("failed to read response: %v", err)
	}
	clientConn.Close()
	<-done
	return data
}

// decodeData re-decodes the untyped Data of a response into v.
func decodeData(t *testing.T, resp Response, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatalf("failed to marshal data: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("failed to decode data %s: %v", raw, err)
	}
}

func firstMessage(t *testing.T, resp Response) ResponseMessage {
	t.Helper()
	if len(resp.Messages) == 0 {
		t.Fatalf("expected at least one message, got none")
	}
	return resp.Messages[0]
}
