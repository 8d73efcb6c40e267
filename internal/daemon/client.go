package daemon

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.olrik.dev/adbwatch/internal/core"
)

// defaultCommandTimeout bounds a request to the daemon. Device actions can
// wait on adb for a while, so this is longer than any adb timeout.
const defaultCommandTimeout = 2 * time.Minute

// SendCommand connects to the daemon, sends a command, and returns the response.
func SendCommand(command string) (Response, error) {
	return sendCommandWithTimeout(command, defaultCommandTimeout)
}

func sendCommandWithTimeout(command string, timeout time.Duration) (Response, error) {
	response := Response{}

	conn, err := net.DialTimeout("unix", core.GetSocketPath(), time.Second)
	if err != nil {
		return response, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return response, err
	}

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return response, fmt.Errorf("failed to send command to daemon: %w", err)
	}
	bytes, err := io.ReadAll(conn)
	if err != nil {
		return response, fmt.Errorf("failed to read response from daemon: %w", err)
	}

	if err := json.Unmarshal(bytes, &response); err != nil {
		return response, fmt.Errorf("failed to parse response from daemon: %w", err)
	}

	return response, nil
}

// SendCommandStreaming sends a command whose progress arrives as one JSON
// message per line and logs each message as it arrives. It returns an error
// when the daemon reported one.
func SendCommandStreaming(command string) error {
	conn, err := net.DialTimeout("unix", core.GetSocketPath(), time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(command + "\n")); err != nil {
		return fmt.Errorf("failed to send command to daemon: %w", err)
	}

	failed := false
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg ResponseMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return fmt.Errorf("failed to parse message from daemon: %w", err)
		}
		response := Response{Messages: []ResponseMessage{msg}}
		response.LogMessages()
		if msg.Status == "ERROR" {
			failed = true
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read from daemon: %w", err)
	}
	if failed {
		return errors.New("command failed")
	}
	return nil
}

// StartDaemon launches the daemon as a detached child in its own session.
func StartDaemon() error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not determine executable: %w", err)
	}

	if err := os.MkdirAll(core.Config.ConfigPath, 0o755); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}

	args := []string{"internal-server", "--config-path", core.Config.ConfigPath}
	cmd := exec.Command(executable, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("could not fork daemon process: %w", err)
	}
	slog.Debug(fmt.Sprintf("Daemon process launched with PID: %d", cmd.Process.Pid))

	// Reap the child if it exits while we're still waiting for it
	go cmd.Wait()
	return nil
}

// WaitForDaemon waits until the daemon answers on its socket.
func WaitForDaemon() error {
	for i := 0; i < 50; i++ {
		if _, err := sendCommandWithTimeout("VERSION", time.Second); err == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("daemon did not become ready in time")
}

// WaitForDaemonStop waits until the daemon no longer answers.
func WaitForDaemonStop() error {
	for i := 0; i < 50; i++ {
		if _, err := sendCommandWithTimeout("VERSION", time.Second); err != nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return errors.New("daemon did not stop in time")
}

// EnsureDaemonIsRunning starts the daemon when it is not answering.
func EnsureDaemonIsRunning() error {
	if _, err := sendCommandWithTimeout("VERSION", time.Second); err == nil {
		return nil
	}

	slog.Info("Daemon not running. Starting it now...")
	if err := StartDaemon(); err != nil {
		return err
	}
	return WaitForDaemon()
}

// CheckVersionMismatch warns when the running daemon was built from a
// different version than this client.
func CheckVersionMismatch() {
	response, err := sendCommandWithTimeout("VERSION", time.Second)
	if err != nil {
		return
	}
	data, ok := response.Data.(map[string]interface{})
	if !ok {
		return
	}
	version, _ := data["version"].(string)
	if version != "" && version != core.Version {
		slog.Warn(fmt.Sprintf("Version mismatch! Client %s and daemon %s versions differ. Consider restarting the daemon.",
			core.FormatVersion(core.Version), core.FormatVersion(version)))
	}
}
