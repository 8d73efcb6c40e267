package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"go.olrik.dev/adbwatch/internal/daemon"
)

// request sends command to the daemon, starting the daemon first when it is
// not running.
func request(command string) daemon.Response {
	if err := daemon.EnsureDaemonIsRunning(); err != nil {
		slog.Error(fmt.Sprintf("Failed to start daemon: %v", err))
		os.Exit(1)
	}
	daemon.CheckVersionMismatch()

	response, err := daemon.SendCommand(command)
	if err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
	return response
}

// run sends command, logs every message and exits non-zero when the daemon
// reported an error.
func run(command string) daemon.Response {
	response := request(command)
	response.LogMessages()
	if response.HasError() {
		os.Exit(1)
	}
	return response
}

// stream sends a command answered with progress messages.
func stream(command string) {
	if err := daemon.EnsureDaemonIsRunning(); err != nil {
		slog.Error(fmt.Sprintf("Failed to start daemon: %v", err))
		os.Exit(1)
	}
	daemon.CheckVersionMismatch()

	if err := daemon.SendCommandStreaming(command); err != nil {
		slog.Debug("Streaming command failed", "error", err)
		os.Exit(1)
	}
}

// decodeData converts the untyped response data into v.
func decodeData(response daemon.Response, v any) error {
	raw, err := json.Marshal(response.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
