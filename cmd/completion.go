package cmd

import (
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/daemon"
	"go.olrik.dev/adbwatch/internal/device"
)

// deviceCompletionFunc completes the first argument with the ids of the
// devices the daemon sees. It never starts the daemon.
func deviceCompletionFunc(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	response, err := daemon.SendCommand("DEVICES")
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var devices []device.Device
	if err := decodeData(response, &devices); err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}

	return completeDevices(devices, toComplete), cobra.ShellCompDirectiveNoFileComp
}

// completeDevices returns "id\tname" candidates starting with prefix.
func completeDevices(devices []device.Device, prefix string) []string {
	seen := make(map[string]bool)
	var candidates []string
	add := func(value, description string) {
		if value == "" || seen[value] || !strings.HasPrefix(value, prefix) {
			return
		}
		seen[value] = true
		candidates = append(candidates, value+"\t"+description)
	}

	for _, d := range devices {
		add(d.ID, d.DisplayName())
	}
	sort.Strings(candidates)
	return candidates
}
