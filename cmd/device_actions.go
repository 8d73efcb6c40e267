package cmd

import (
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/adb"
)

func NewScreenshotCommand() *cobra.Command {
	var dir string

	screenshotCmd := &cobra.Command{
		Use:               "screenshot <device>",
		Aliases:           []string{"shot"},
		Short:             "Capture the screen of a device",
		Long:              `Capture the screen of a device as PNG into screenshot_dir, or --dir.`,
		Args:              cobra.ExactArgs(1),
		ValidArgsFunction: deviceCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := "SCREENSHOT " + args[0]
			if dir != "" {
				// The daemon may run with a different working directory.
				abs, err := filepath.Abs(dir)
				if err != nil {
					return err
				}
				if strings.ContainsAny(abs, " \t") {
					return fmt.Errorf("directory must not contain whitespace: %s", abs)
				}
				command += " " + abs
			}
			run(command)
			return nil
		},
	}
	screenshotCmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory to save the screenshot in")

	return screenshotCmd
}

func NewRebootCommand() *cobra.Command {
	modes := strings.Join(adb.RebootModes[1:], ", ")

	return &cobra.Command{
		Use:   "reboot <device> [mode]",
		Short: "Reboot a device",
		Long:  fmt.Sprintf("Reboot a device, optionally into one of: %s", modes),
		Args:  cobra.RangeArgs(1, 2),
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			switch len(args) {
			case 0:
				return deviceCompletionFunc(cmd, args, toComplete)
			case 1:
				return adb.RebootModes[1:], cobra.ShellCompDirectiveNoFileComp
			}
			return nil, cobra.ShellCompDirectiveNoFileComp
		},
		Run: func(cmd *cobra.Command, args []string) {
			run("REBOOT " + strings.Join(args, " "))
		},
	}
}

// keyCodes are the Android key codes reachable by name.
var keyCodes = map[string]int{
	"home":        3,
	"back":        4,
	"call":        5,
	"endcall":     6,
	"volume_up":   24,
	"volume_down": 25,
	"power":       26,
	"camera":      27,
	"enter":       66,
	"delete":      67,
	"menu":        82,
	"wakeup":      224,
	"sleep":       223,
	"app_switch":  187,
}

func NewInputCommand() *cobra.Command {
	inputCmd := &cobra.Command{
		Use:   "input",
		Short: "Send input to a device",
	}

	inputCmd.AddCommand(
		&cobra.Command{
			Use:               "text <device> <text...>",
			Short:             "Type text on a device",
			Args:              cobra.MinimumNArgs(2),
			ValidArgsFunction: deviceCompletionFunc,
			Run: func(cmd *cobra.Command, args []string) {
				run(fmt.Sprintf("INPUT_TEXT %s %s", args[0], strings.Join(args[1:], " ")))
			},
		},
		&cobra.Command{
			Use:   "key <device> <keycode|name>",
			Short: "Send a key event to a device",
			Long:  fmt.Sprintf("Send a key event. Named keys: %s", strings.Join(keyNames(), ", ")),
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				code, err := parseKeyCode(args[1])
				if err != nil {
					return err
				}
				run(fmt.Sprintf("KEYEVENT %s %d", args[0], code))
				return nil
			},
		},
	)

	return inputCmd
}

func parseKeyCode(s string) (int, error) {
	if code, ok := keyCodes[strings.ToLower(s)]; ok {
		return code, nil
	}
	code, err := strconv.Atoi(s)
	if err != nil || code < 0 {
		return 0, fmt.Errorf("unknown key %q", s)
	}
	return code, nil
}

func keyNames() []string {
	names := make([]string, 0, len(keyCodes))
	for name := range keyCodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
