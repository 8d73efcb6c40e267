package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewNameCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "name <device> [name...]",
		Short: "Give a device a custom name",
		Long: `Give a device a custom name. The name is stored with the device's
persistent serial, so it survives reconnects and transport changes.

Without a name the custom name is cleared.`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: deviceCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			command := "NAME " + args[0]
			if name := strings.Join(args[1:], " "); name != "" {
				command += " " + name
			}
			run(command)
		},
	}
}

func NewForgetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <serial>",
		Short: "Forget a remembered device",
		Long:  `Remove a device from the history, dropping its custom name and last known address.`,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			run("FORGET " + args[0])
		},
	}
}

func NewHistoryCommand() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List remembered devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response := request("HISTORY")

			var entries []daemon.HistoryEntry
			if err := decodeData(response, &entries); err != nil {
				slog.Error(fmt.Sprintf("Failed to decode history: %v", err))
				os.Exit(1)
			}

			printFormatted(cmd, entries, func() {
				response.LogMessages()
				now := time.Now()
				for _, entry := range entries {
					fmt.Print(formatHistoryEntry(entry, now))
				}
			})
		},
	}
	addFormatFlag(historyCmd)

	return historyCmd
}

func formatHistoryEntry(entry daemon.HistoryEntry, now time.Time) string {
	name := entry.CustomName
	if name == "" {
		name = entry.Model
	}
	if name == "" {
		name = entry.PersistentSerial
	}

	s := fmt.Sprintf("%s (%s)", name, entry.PersistentSerial)
	if addr := entry.Address(); addr != "" {
		s += " at " + addr
	}
	if !entry.LastSeen.IsZero() {
		s += fmt.Sprintf(", last seen %s ago", formatAge(now.Sub(entry.LastSeen)))
	}
	if entry.LastEvent != nil {
		s += fmt.Sprintf(", last event: %s", entry.LastEvent.EventType)
	}
	return s + "\n"
}

// formatAge rounds d to the largest sensible unit.
func formatAge(d time.Duration) string {
	switch {
	case d < time.Minute:
		return d.Round(time.Second).String()
	case d < time.Hour:
		return d.Round(time.Minute).String()
	case d < 48*time.Hour:
		return d.Round(time.Hour).String()
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}
