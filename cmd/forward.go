package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/device"
)

func NewReverseCommand() *cobra.Command {
	reverseCmd := &cobra.Command{
		Use:   "reverse",
		Short: "Manage reverse port forwards (device to host)",
	}

	listCmd := &cobra.Command{
		Use:               "list <device>",
		Short:             "List reverse port forwards",
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: deviceCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			listForwards(cmd, "REVERSE_LIST "+args[0])
		},
	}
	addFormatFlag(listCmd)

	reverseCmd.AddCommand(
		listCmd,
		&cobra.Command{
			Use:               "add <device> <device-port> <host-port>",
			Short:             "Make a device port reach a host port",
			Args:              portArgs(3),
			ValidArgsFunction: deviceCompletionFunc,
			Run: func(cmd *cobra.Command, args []string) {
				run(fmt.Sprintf("REVERSE_ADD %s %s %s", args[0], args[1], args[2]))
			},
		},
		&cobra.Command{
			Use:               "remove <device> <device-port>",
			Aliases:           []string{"rm"},
			Short:             "Remove a reverse port forward",
			Args:              portArgs(2),
			ValidArgsFunction: deviceCompletionFunc,
			Run: func(cmd *cobra.Command, args []string) {
				run(fmt.Sprintf("REVERSE_REMOVE %s %s", args[0], args[1]))
			},
		},
		&cobra.Command{
			Use:               "clear <device>",
			Short:             "Remove every reverse port forward of a device",
			Args:              cobra.ExactArgs(1),
			ValidArgsFunction: deviceCompletionFunc,
			Run: func(cmd *cobra.Command, args []string) {
				run("REVERSE_CLEAR " + args[0])
			},
		},
	)

	return reverseCmd
}

func NewForwardCommand() *cobra.Command {
	forwardCmd := &cobra.Command{
		Use:   "forward",
		Short: "Manage port forwards (host to device)",
	}

	listCmd := &cobra.Command{
		Use:               "list [device]",
		Short:             "List port forwards",
		Args:              cobra.MaximumNArgs(1),
		ValidArgsFunction: deviceCompletionFunc,
		Run: func(cmd *cobra.Command, args []string) {
			command := "FORWARD_LIST"
			if len(args) == 1 {
				command += " " + args[0]
			}
			listForwards(cmd, command)
		},
	}
	addFormatFlag(listCmd)

	forwardCmd.AddCommand(
		listCmd,
		&cobra.Command{
			Use:               "add <device> <host-port> <device-port>",
			Short:             "Make a host port reach a device port",
			Args:              portArgs(3),
			ValidArgsFunction: deviceCompletionFunc,
			Run: func(cmd *cobra.Command, args []string) {
				run(fmt.Sprintf("FORWARD_ADD %s %s %s", args[0], args[1], args[2]))
			},
		},
		&cobra.Command{
			Use:               "remove <device> <host-port>",
			Aliases:           []string{"rm"},
			Short:             "Remove a port forward",
			Args:              portArgs(2),
			ValidArgsFunction: deviceCompletionFunc,
			Run: func(cmd *cobra.Command, args []string) {
				run(fmt.Sprintf("FORWARD_REMOVE %s %s", args[0], args[1]))
			},
		},
	)

	return forwardCmd
}

func listForwards(cmd *cobra.Command, command string) {
	response := request(command)
	if response.HasError() {
		response.LogMessages()
		os.Exit(1)
	}

	var forwards []device.PortForward
	if err := decodeData(response, &forwards); err != nil {
		slog.Error(fmt.Sprintf("Failed to decode port forwards: %v", err))
		os.Exit(1)
	}

	printFormatted(cmd, forwards, func() {
		if len(forwards) == 0 {
			slog.Info("No port forwards")
			return
		}
		for _, f := range forwards {
			fmt.Printf("  %s  %s\n", f.DeviceID, f)
		}
	})
}

// portArgs requires exactly n arguments, all but the first being ports.
func portArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return err
		}
		for _, arg := range args[1:] {
			port, err := strconv.Atoi(arg)
			if err != nil || port < 1 || port > 65535 {
				return fmt.Errorf("invalid port %q", arg)
			}
		}
		return nil
	}
}
