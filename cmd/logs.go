package cmd

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.olrik.dev/adbwatch/internal/core"
	"go.olrik.dev/adbwatch/internal/daemon"
)

func NewLogsCommand() *cobra.Command {
	var lines int

	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Stream daemon logs in real-time",
		Long: `Stream daemon logs in real-time.

Press Ctrl+C to exit. By default, only shows INFO level and above.

Filter categories:
  device  - Devices appearing, connecting, disconnecting
  poll    - Poll cycles and adb failures
  system  - Daemon start/stop, config reload, sleep and wake

Examples:
  adbwatch logs              # Stream INFO and above
  adbwatch logs --debug      # Include DEBUG logs
  adbwatch logs -f device    # Filter to device changes
  adbwatch logs -f R58M      # Filter by keyword
  adbwatch logs -L 50        # Show 50 history lines on connect

Automatically reconnects if the daemon is restarted.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if _, err := daemon.SendCommand("STATUS"); err != nil {
				slog.Error("Daemon is not running. Use 'adbwatch start' to start it.")
				os.Exit(1)
			}

			debug, _ := cmd.Flags().GetBool("debug")
			filter, _ := cmd.Flags().GetString("filter")
			noColor, _ := cmd.Flags().GetBool("no-color")

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

			// History is only replayed on the first connection.
			isReconnect := false

			for {
				conn, err := net.Dial("unix", core.GetSocketPath())
				if err != nil {
					slog.Error(fmt.Sprintf("Failed to connect to daemon: %v", err))
					os.Exit(1)
				}

				request := fmt.Sprintf("LOGS %d", lines)
				if isReconnect {
					request += " no_history"
				}
				if _, err := conn.Write([]byte(request + "\n")); err != nil {
					conn.Close()
					slog.Error(fmt.Sprintf("Failed to send LOGS command: %v", err))
					os.Exit(1)
				}

				done := make(chan struct{})
				go func() {
					defer close(done)
					reader := bufio.NewReader(conn)
					for {
						line, err := reader.ReadString('\n')
						if err != nil {
							return
						}
						if !debug && isDebugLog(line) {
							continue
						}
						if filter != "" && !matchesFilter(line, filter) {
							continue
						}
						if noColor {
							line = stripANSI(line)
						}
						fmt.Print(line)
					}
				}()

				select {
				case <-sigChan:
					conn.Close()
					fmt.Println("\nDisconnected from daemon logs.")
					return
				case <-done:
					conn.Close()
					fmt.Println("Connection lost. Reconnecting...")
					time.Sleep(500 * time.Millisecond)

					reconnected := false
					for i := 0; i < 10; i++ {
						if _, err := daemon.SendCommand("STATUS"); err == nil {
							reconnected = true
							break
						}
						time.Sleep(500 * time.Millisecond)
					}
					if !reconnected {
						fmt.Println("Daemon not available. Exiting.")
						return
					}
					isReconnect = true
				}
			}
		},
	}

	logsCmd.Flags().Bool("debug", false, "Show DEBUG level logs")
	logsCmd.Flags().StringP("filter", "f", "", "Filter logs by category or keyword (device, poll, system)")
	logsCmd.Flags().Bool("no-color", false, "Disable colored output")
	logsCmd.Flags().IntVarP(&lines, "lines", "L", 20, "Number of history lines to show on connect")

	return logsCmd
}

// isDebugLog reports whether a tint formatted line is at DEBUG level.
func isDebugLog(line string) bool {
	stripped := stripANSI(line)
	return strings.Contains(stripped, " DBG ")
}

// filterKeywords lists the keywords of each filter category.
var filterKeywords = map[string][]string{
	"device": {"device appeared", "device disappeared", "device connected", "device disconnected", "device state_changed", "device renamed", "device forgotten", "screenshot", "paired", "connected to"},
	"poll":   {"poll", "adb command", "enrich", "property lookup", "cycle"},
	"system": {"daemon", "configuration", "config", "sleep", "wake", "database", "auto-connect"},
}

// matchesFilter reports whether line belongs to a filter category, or
// contains filter as a keyword.
func matchesFilter(line, filter string) bool {
	filter = strings.ToLower(filter)
	lineLower := strings.ToLower(stripANSI(line))

	keywords, ok := filterKeywords[filter]
	if !ok {
		return strings.Contains(lineLower, filter)
	}
	for _, kw := range keywords {
		if strings.Contains(lineLower, kw) {
			return true
		}
	}
	return false
}

var ansiEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripANSI removes ANSI color codes.
func stripANSI(s string) string {
	return ansiEscape.ReplaceAllString(s, "")
}
