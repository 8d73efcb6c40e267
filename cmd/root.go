package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/core"
	"golang.org/x/term"
)

func NewRootCommand() *cobra.Command {
	var configPath string
	var verbose int

	rootCmd := &cobra.Command{
		Use:   "adbwatch",
		Short: "adbwatch - Android device monitor",
		Long: `adbwatch - Android device monitor

A background daemon polls adb and merges every transport a phone is attached
on (USB, TCP/IP, wireless debugging) into one device with a stable identity.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			err := core.InitializeConfig(configPath, verbose)
			setupCLILogging(core.Config.Verbose)
			if err != nil {
				slog.Warn(fmt.Sprintf("Ignoring invalid configuration: %v", err))
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", core.DefaultConfigPath(), "config path")
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "more output, repeat for even more")

	rootCmd.AddCommand(
		NewStartCommand(),
		NewStopCommand(),
		NewRestartCommand(),
		NewReloadCommand(),
		NewStatusCommand(),
		NewDevicesCommand(),
		NewRefreshCommand(),
		NewConnectCommand(),
		NewDisconnectCommand(),
		NewReconnectCommand(),
		NewPairCommand(),
		NewTCPIPCommand(),
		NewNameCommand(),
		NewForgetCommand(),
		NewHistoryCommand(),
		NewReverseCommand(),
		NewForwardCommand(),
		NewScreenshotCommand(),
		NewRebootCommand(),
		NewInputCommand(),
		NewShellCommand(),
		NewEventsCommand(),
		NewLogsCommand(),
		NewVersionCommand(),
		NewInternalCommand(),
	)

	return rootCmd
}

// setupCLILogging writes client messages to stderr, colored when stderr is
// a terminal.
func setupCLILogging(verbose int) {
	level := slog.LevelInfo
	if verbose > 0 {
		level = slog.LevelDebug
	}
	handler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !term.IsTerminal(int(os.Stderr.Fd())),
	})
	slog.SetDefault(slog.New(handler))
}
