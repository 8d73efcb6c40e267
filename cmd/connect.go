package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/core"
)

func NewConnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "connect <ip[:port]>",
		Aliases: []string{"c"},
		Short:   "Connect to a device over TCP/IP",
		Long: `Connect to a device listening for adb on the network.

The port defaults to default_tcpip_port from the configuration.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			run("CONNECT " + withDefaultPort(args[0]))
		},
	}
}

func NewDisconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:               "disconnect <device>",
		Aliases:           []string{"d"},
		Short:             "Disconnect the network transports of a device",
		Long:              `Disconnect every network transport of a device. USB stays attached.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: deviceCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			run("DISCONNECT " + args[0])
		},
	}
}

func NewReconnectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reconnect",
		Short: "Connect to remembered network devices",
		Long: `Connect to the last known address of every remembered device that is
not attached right now.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			run("AUTOCONNECT")
		},
	}
}

func NewPairCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pair <ip:port> <code>",
		Short: "Pair with a device in wireless debugging mode",
		Long: `Pair with a device using the six digit code shown under
Developer options > Wireless debugging > Pair device with pairing code.

The pairing port differs from the port used by 'adbwatch connect'.`,
		Args: cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			run(fmt.Sprintf("PAIR %s %s", args[0], args[1]))
		},
	}
}

func NewTCPIPCommand() *cobra.Command {
	var port int

	tcpipCmd := &cobra.Command{
		Use:   "tcpip <device>",
		Short: "Switch a USB device to TCP/IP and connect to it",
		Long: `Restart adbd on the device in TCP/IP mode and connect to it over the
network, so the cable can be unplugged.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: deviceCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			command := "TCPIP " + args[0]
			if port > 0 {
				command += fmt.Sprintf(" %d", port)
			}
			stream(command)
		},
	}
	tcpipCmd.Flags().IntVarP(&port, "port", "p", 0, "Port for adbd to listen on (default from config)")

	return tcpipCmd
}

// withDefaultPort appends the configured TCP/IP port when address has none.
func withDefaultPort(address string) string {
	if strings.Contains(address, ":") {
		return address
	}
	return fmt.Sprintf("%s:%d", address, defaultPort())
}

func defaultPort() int {
	if core.Config != nil && core.Config.DefaultTCPIPPort > 0 {
		return core.Config.DefaultTCPIPPort
	}
	return 5555
}
