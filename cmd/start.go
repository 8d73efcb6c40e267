package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the adbwatch daemon",
		Long: `Start the adbwatch daemon in the background.

The daemon polls adb for devices and keeps running until explicitly stopped
with 'adbwatch stop'. Most commands start it on demand.

If the daemon is already running, this command will report its version.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if response, err := daemon.SendCommand("VERSION"); err == nil {
				if data, ok := response.Data.(map[string]interface{}); ok {
					if version, ok := data["version"].(string); ok {
						slog.Info(fmt.Sprintf("Daemon is already running (version %s)", version))
						return
					}
				}
				slog.Info("Daemon is already running")
				return
			}

			slog.Info("Starting adbwatch daemon...")
			if err := daemon.StartDaemon(); err != nil {
				slog.Error(fmt.Sprintf("Failed to start daemon: %v", err))
				os.Exit(1)
			}
			if err := daemon.WaitForDaemon(); err != nil {
				slog.Error(fmt.Sprintf("Daemon failed to start: %v", err))
				os.Exit(1)
			}

			slog.Info("Daemon started successfully")
		},
	}
}
