package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/device"
)

func NewDevicesCommand() *cobra.Command {
	devicesCmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"ls", "list"},
		Short:   "List devices",
		Long: `List the devices the daemon currently sees.

Every physical device is listed once, with all transports it is attached on.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response := request("DEVICES")

			var devices []device.Device
			if err := decodeData(response, &devices); err != nil {
				slog.Error(fmt.Sprintf("Failed to decode devices: %v", err))
				os.Exit(1)
			}

			printFormatted(cmd, devices, func() {
				response.LogMessages()
				fmt.Print(formatDevices(devices))
			})
		},
	}
	addFormatFlag(devicesCmd)

	return devicesCmd
}

func NewRefreshCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Poll adb now",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			response := run("REFRESH")

			var devices []device.Device
			if err := decodeData(response, &devices); err == nil {
				fmt.Print(formatDevices(devices))
			}
		},
	}
}

func formatDevices(devices []device.Device) string {
	var b strings.Builder
	for _, d := range devices {
		b.WriteString(formatDevice(d))
	}
	return b.String()
}

// formatDevice renders one device as a headline and one line per transport.
func formatDevice(d device.Device) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s", stateIcon(d.State), d.DisplayName())
	if desc := d.Description(); desc != d.DisplayName() {
		fmt.Fprintf(&b, " (%s)", desc)
	}
	if d.AndroidVersion != "" {
		fmt.Fprintf(&b, " Android %s", d.AndroidVersion)
	}
	fmt.Fprintf(&b, " [%s]\n", d.State.DisplayName())

	if d.PersistentSerial != "" {
		fmt.Fprintf(&b, "    serial: %s\n", d.PersistentSerial)
	}
	fmt.Fprintf(&b, "    %-8s %s (%s)\n", "primary:", d.PrimaryRawID, d.Primary)
	for i, c := range d.Secondary {
		rawID := ""
		if i < len(d.SecondaryRawIDs) {
			rawID = d.SecondaryRawIDs[i]
		}
		fmt.Fprintf(&b, "    %-8s %s (%s)\n", "also:", rawID, c)
	}
	return b.String()
}

func stateIcon(state device.State) string {
	switch state {
	case device.StateConnected:
		return "●"
	case device.StateConnecting:
		return "◐"
	case device.StateUnauthorized:
		return "!"
	default:
		return "○"
	}
}
