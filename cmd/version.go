package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/core"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Show version of the client, the daemon (if running) and adb`,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			clientVersion := core.Version
			clientFormatted := core.FormatVersion(clientVersion)
			fmt.Fprintf(os.Stderr, "Client version: %s\n", clientFormatted)

			response, err := daemon.SendCommand("VERSION")
			if err != nil {
				fmt.Fprintln(os.Stderr, "Daemon: not running")
				return
			}

			dataMap, ok := response.Data.(map[string]interface{})
			if !ok {
				return
			}
			if version, ok := dataMap["version"].(string); ok {
				daemonFormatted := core.FormatVersion(version)
				fmt.Fprintf(os.Stderr, "Daemon version: %s\n", daemonFormatted)

				if clientVersion != version {
					slog.Warn(fmt.Sprintf("Version mismatch! Client %s and daemon %s versions differ. Consider restarting the daemon.", clientFormatted, daemonFormatted))
				}
			}
			if adbVersion, ok := dataMap["adb_version"].(string); ok {
				fmt.Fprintf(os.Stderr, "adb: %s\n", adbVersion)
			}
		},
	}
}
