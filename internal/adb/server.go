package adb

import (
	"context"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// ServerPort is the port the adb server listens on by default.
const ServerPort = 5037

// ServerInfo describes a running adb server process.
type ServerInfo struct {
	PID       int32  `json:"pid"`
	Exe       string `json:"exe,omitempty"`
	Listening bool   `json:"listening"`
}

// FindServer looks for a running "adb ... fork-server server" process.
// It returns false when no server is running.
func FindServer(ctx context.Context) (ServerInfo, bool) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		slog.Debug("Failed to list processes", "error", err)
		return ServerInfo{}, false
	}

	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil || name != "adb" {
			continue
		}
		args, err := p.CmdlineSliceWithContext(ctx)
		if err != nil || !isServerCommandLine(args) {
			continue
		}

		info := ServerInfo{PID: p.Pid}
		if exe, err := p.ExeWithContext(ctx); err == nil {
			info.Exe = exe
		}
		info.Listening = listensOn(ctx, p.Pid, ServerPort)
		return info, true
	}
	return ServerInfo{}, false
}

func isServerCommandLine(args []string) bool {
	if len(args) == 0 || filepath.Base(args[0]) != "adb" {
		return false
	}
	return slices.Contains(args, "fork-server") || slices.Contains(args, "server") ||
		strings.Contains(strings.Join(args, " "), "start-server")
}

func listensOn(ctx context.Context, pid int32, port uint32) bool {
	conns, err := psnet.ConnectionsPidWithContext(ctx, "tcp", pid)
	if err != nil {
		slog.Debug("Failed to get connections for PID", "pid", pid, "error", err)
		return false
	}
	for _, conn := range conns {
		if conn.Status == "LISTEN" && conn.Laddr.Port == port {
			return true
		}
	}
	return false
}
