package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the adbwatch daemon",
		Long: `Stop the adbwatch daemon.

Devices stay attached to the adb server; only the monitoring stops.`,
		Aliases: []string{"shutdown", "quit"},
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			daemon.CheckVersionMismatch()

			response, err := daemon.SendCommand("STOP")
			if err != nil {
				slog.Warn("Daemon is not running")
				return
			}
			response.LogMessages()

			if err := daemon.WaitForDaemonStop(); err != nil {
				slog.Warn("Daemon did not shut down within timeout, but stop command was sent")
				return
			}
			slog.Debug("Daemon shutdown confirmed")
		},
	}
}
