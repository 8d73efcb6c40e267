package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/creack/pty"
	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/adb"
	"go.olrik.dev/adbwatch/internal/core"
	"go.olrik.dev/adbwatch/internal/daemon"
	"go.olrik.dev/adbwatch/internal/device"
	"golang.org/x/term"
)

func NewShellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell <device> [command...]",
		Short: "Open an interactive shell on a device",
		Long: `Open an adb shell on a device, picking its best transport.

With a command, the command is run and its exit code returned.`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: deviceCompletionFunc,
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID := resolveRawID(args[0])

			adbPath, err := adb.FindPath(core.Config.ADBPath)
			if err != nil {
				return err
			}

			shellArgs := []string{"-s", rawID, "shell"}
			shellArgs = append(shellArgs, args[1:]...)
			child := exec.Command(adbPath, shellArgs...)

			code, err := runInPTY(child)
			if err != nil {
				return err
			}
			if code != 0 {
				os.Exit(code)
			}
			return nil
		},
	}
}

// resolveRawID maps a device id or serial to the raw id adb should
// address. Unknown targets are passed through.
func resolveRawID(target string) string {
	response, err := daemon.SendCommand("DEVICES")
	if err != nil {
		return target
	}
	var devices []device.Device
	if err := decodeData(response, &devices); err != nil {
		return target
	}
	if d, ok := device.Find(devices, target); ok {
		return d.BestRawID()
	}
	return target
}

// runInPTY runs child on a pseudo terminal wired to this terminal and returns
// its exit code. Without a terminal the child inherits stdio directly.
func runInPTY(child *exec.Cmd) (int, error) {
	stdinFd := int(os.Stdin.Fd())
	if !term.IsTerminal(stdinFd) {
		child.Stdin, child.Stdout, child.Stderr = os.Stdin, os.Stdout, os.Stderr
		return exitCode(child.Run())
	}

	ptmx, err := pty.Start(child)
	if err != nil {
		return 0, fmt.Errorf("failed to start with pty: %w", err)
	}
	defer ptmx.Close()

	resize := make(chan os.Signal, 1)
	signal.Notify(resize, syscall.SIGWINCH)
	defer func() {
		signal.Stop(resize)
		close(resize)
	}()
	go func() {
		for range resize {
			pty.InheritSize(os.Stdin, ptmx)
		}
	}()
	resize <- syscall.SIGWINCH

	oldState, err := term.MakeRaw(stdinFd)
	if err != nil {
		return 0, fmt.Errorf("set terminal raw mode: %w", err)
	}
	defer term.Restore(stdinFd, oldState)

	go io.Copy(ptmx, os.Stdin)
	io.Copy(os.Stdout, ptmx)

	return exitCode(child.Wait())
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 0, err
}
