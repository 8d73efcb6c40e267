package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewReloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload the configuration file",
		Long: `Make the daemon re-read its configuration file.

The daemon also reloads on its own when the file changes. A file with
errors is rejected and the previous configuration stays active.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response, err := daemon.SendCommand("RELOAD")
			if err != nil {
				slog.Error("Daemon is not running. Use 'adbwatch start' instead.")
				os.Exit(1)
			}
			response.LogMessages()
			if response.HasError() {
				os.Exit(1)
			}
		},
	}
}
