package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewEventsCommand() *cobra.Command {
	var limit int

	eventsCmd := &cobra.Command{
		Use:   "events [device]",
		Short: "Show recent device and daemon events",
		Long: `Show recent device and daemon events from the event database.

With a device, only that device's events are shown.`,
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: deviceCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			command := fmt.Sprintf("EVENTS %d", limit)
			if len(args) == 1 {
				command += " " + args[0]
			}

			response := request(command)
			if response.HasError() {
				response.LogMessages()
				os.Exit(1)
			}

			var data daemon.EventsData
			if err := decodeData(response, &data); err != nil {
				slog.Error(fmt.Sprintf("Failed to decode events: %v", err))
				os.Exit(1)
			}

			printFormatted(cmd, data, func() {
				fmt.Print(formatEvents(data, len(args) == 0))
			})
		},
	}
	eventsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show")
	addFormatFlag(eventsCmd)

	return eventsCmd
}

func formatEvents(data daemon.EventsData, withDaemon bool) string {
	const layout = "2006-01-02 15:04:05"

	s := "Device events:\n"
	if len(data.DeviceEvents) == 0 {
		s += "  (none)\n"
	}
	for _, e := range data.DeviceEvents {
		s += fmt.Sprintf("  %s  %-13s %s", e.Timestamp.Local().Format(layout), e.EventType, e.DeviceName)
		if e.DeviceName != e.CanonicalID {
			s += fmt.Sprintf(" (%s)", e.CanonicalID)
		}
		if e.Details != "" {
			s += "  " + e.Details
		}
		s += "\n"
	}

	if !withDaemon {
		return s
	}
	s += "Daemon events:\n"
	if len(data.DaemonEvents) == 0 {
		s += "  (none)\n"
	}
	for _, e := range data.DaemonEvents {
		s += fmt.Sprintf("  %s  %-13s %s\n", e.Timestamp.Local().Format(layout), e.EventType, e.Details)
	}
	return s
}
