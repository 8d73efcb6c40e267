package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/core"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon and adb status",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("STATUS")
			if err != nil {
				slog.Warn("Daemon is not running. Use 'adbwatch start' to start it.")
				return
			}

			var status daemon.DaemonStatus
			if err := decodeData(response, &status); err != nil {
				slog.Error(fmt.Sprintf("Failed to decode status: %v", err))
				return
			}

			printFormatted(cmd, status, func() {
				fmt.Print(formatStatus(status, time.Now()))
			})
		},
	}
	addFormatFlag(statusCmd)

	return statusCmd
}

func formatStatus(status daemon.DaemonStatus, now time.Time) string {
	s := fmt.Sprintf("Daemon:   running (PID: %d, version %s)\n", status.Pid, core.FormatVersion(core.Version))
	if startDate, err := time.Parse(time.RFC3339, status.StartDate); err == nil {
		s += fmt.Sprintf("Uptime:   %s\n", now.Sub(startDate).Round(time.Second))
	}

	switch {
	case status.Error != "":
		s += fmt.Sprintf("Polling:  failing every %s (%s)\n", status.Interval, status.Error)
	case status.Sleeping:
		s += "Polling:  paused while the system sleeps\n"
	default:
		s += fmt.Sprintf("Polling:  every %s, %d cycle(s)\n", status.Interval, status.Cycles)
	}
	s += fmt.Sprintf("Devices:  %d (%d connected)\n", status.Devices, status.Connected)

	adbPath := status.ADBPath
	if adbPath == "" {
		adbPath = "not found"
	}
	s += fmt.Sprintf("adb:      %s\n", adbPath)
	if status.Server != nil {
		s += fmt.Sprintf("Server:   PID %d", status.Server.PID)
		if status.Server.Listening {
			s += ", listening"
		}
		s += "\n"
	} else {
		s += "Server:   not running\n"
	}
	return s
}
