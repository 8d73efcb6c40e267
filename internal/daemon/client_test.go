package daemon

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"go.olrik.dev/adbwatch/internal/core"
)

// quietLogger suppresses default slog output during tests.
func quietLogger(t *testing.T) {
	t.Helper()
	old := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(old) })
}

// shortTempDir keeps socket paths below the platform length limit.
func shortTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "aw-")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// setupSocketServer listens on the daemon socket path of a fresh config dir.
func setupSocketServer(t *testing.T) net.Listener {
	t.Helper()

	tmpDir := shortTempDir(t)
	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	core.Config = &core.Configuration{
		ConfigPath: tmpDir,
	}

	listener, err := net.Listen("unix", core.GetSocketPath())
	if err != nil {
		t.Fatalf("failed to create Unix listener: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	return listener
}

// serveOnce answers a single connection with reply and reports the command
// it received.
func serveOnce(listener net.Listener, reply func(conn net.Conn)) <-chan string {
	received := make(chan string, 1)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- strings.TrimSpace(line)
		reply(conn)
	}()
	return received
}

func TestSendCommand_Success(t *testing.T) {
	quietLogger(t)
	listener := setupSocketServer(t)

	received := serveOnce(listener, func(conn net.Conn) {
		resp := Response{Messages: []ResponseMessage{{Message: "OK", Status: "INFO"}}}
		data, _ := json.Marshal(resp)
		conn.Write(data)
	})

	resp, err := SendCommand("STATUS")
	if err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if got := <-received; got != "STATUS" {
		t.Errorf("Server received %q, want STATUS", got)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Status != "INFO" {
		t.Errorf("Unexpected response %+v", resp)
	}
}

func TestSendCommand_ConnectionRefused(t *testing.T) {
	quietLogger(t)

	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	core.Config = &core.Configuration{ConfigPath: shortTempDir(t)}

	if _, err := SendCommand("STATUS"); err == nil {
		t.Error("expected error when no listener exists")
	}
}

func TestSendCommand_InvalidJSON(t *testing.T) {
	quietLogger(t)
	listener := setupSocketServer(t)

	serveOnce(listener, func(conn net.Conn) {
		conn.Write([]byte("not json"))
	})

	_, err := SendCommand("DEVICES")
	if err == nil || !strings.Contains(err.Error(), "failed to parse response") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestSendCommandWithTimeout_Timeout(t *testing.T) {
	quietLogger(t)
	listener := setupSocketServer(t)

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	serveOnce(listener, func(conn net.Conn) {
		<-release
	})

	start := time.Now()
	if _, err := sendCommandWithTimeout("STATUS", 200*time.Millisecond); err == nil {
		t.Error("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took too long: %v", elapsed)
	}
}

func TestSendCommandStreaming(t *testing.T) {
	tests := []struct {
		name    string
		lines   []ResponseMessage
		wantErr bool
	}{
		{
			name:  "all info",
			lines: []ResponseMessage{{Message: "Switching", Status: "INFO"}, {Message: "Connected", Status: "INFO"}},
		},
		{
			name:    "error reported",
			lines:   []ResponseMessage{{Message: "Switching", Status: "INFO"}, {Message: "device offline", Status: "ERROR"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quietLogger(t)
			listener := setupSocketServer(t)

			received := serveOnce(listener, func(conn net.Conn) {
				stream := NewStreamingResponse(conn)
				for _, msg := range tt.lines {
					stream.WriteMessage(msg.Message, msg.Status)
				}
			})

			err := SendCommandStreaming("TCPIP phone")
			if (err != nil) != tt.wantErr {
				t.Errorf("SendCommandStreaming error = %v, wantErr %v", err, tt.wantErr)
			}
			if got := <-received; got != "TCPIP phone" {
				t.Errorf("Server received %q", got)
			}
		})
	}
}

func TestWaitForDaemon(t *testing.T) {
	quietLogger(t)
	listener := setupSocketServer(t)

	serveOnce(listener, func(conn net.Conn) {
		resp := Response{}
		resp.AddMessage("OK", "INFO")
		resp.AddData(map[string]interface{}{"version": core.Version})
		conn.Write([]byte(resp.ToJSON()))
	})

	if err := WaitForDaemon(); err != nil {
		t.Errorf("WaitForDaemon failed: %v", err)
	}
}

func TestWaitForDaemonStop_NoDaemon(t *testing.T) {
	quietLogger(t)

	oldConfig := core.Config
	t.Cleanup(func() { core.Config = oldConfig })
	core.Config = &core.Configuration{ConfigPath: shortTempDir(t)}

	if err := WaitForDaemonStop(); err != nil {
		t.Errorf("WaitForDaemonStop failed: %v", err)
	}
}
