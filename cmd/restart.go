package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewRestartCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the adbwatch daemon",
		Long: `Restart the adbwatch daemon.

Needed after changing adb_path, max_concurrent_commands or
default_tcpip_port. Other settings are applied by 'adbwatch reload'.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := daemon.SendCommand("STATUS"); err != nil {
				if !quiet {
					slog.Error("Daemon is not running. Use 'adbwatch start' instead.")
				}
				os.Exit(1)
			}

			if !quiet {
				slog.Info("Restarting daemon...")
			}

			if _, err := daemon.SendCommand("STOP"); err != nil {
				if !quiet {
					slog.Error(fmt.Sprintf("Failed to stop daemon: %v", err))
				}
				os.Exit(1)
			}
			if err := daemon.WaitForDaemonStop(); err != nil && !quiet {
				slog.Warn(fmt.Sprintf("Daemon stop verification failed: %v", err))
			}

			if err := daemon.StartDaemon(); err != nil {
				if !quiet {
					slog.Error(fmt.Sprintf("Failed to start daemon: %v", err))
				}
				os.Exit(1)
			}
			if err := daemon.WaitForDaemon(); err != nil {
				if !quiet {
					slog.Error(fmt.Sprintf("Daemon failed to start: %v", err))
				}
				os.Exit(1)
			}

			if !quiet {
				slog.Info("Daemon restarted successfully")
			}
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress output")

	return cmd
}
