package daemon

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.olrik.dev/adbwatch/internal/adb"
	"go.olrik.dev/adbwatch/internal/core"
	"go.olrik.dev/adbwatch/internal/db"
	"go.olrik.dev/adbwatch/internal/history"
	"go.olrik.dev/adbwatch/internal/monitor"
	"go.olrik.dev/adbwatch/internal/notify"
	"go.olrik.dev/adbwatch/internal/sleep"
)

// autoConnectSpacing is the minimum gap between auto-connect attempts.
const autoConnectSpacing = 500 * time.Millisecond

// Daemon owns the device monitor and serves CLI requests on the socket.
type Daemon struct {
	mu           sync.Mutex
	listener     net.Listener
	shutdownOnce sync.Once
	logBroadcast *LogBroadcaster
	database     *db.DB
	client       *adb.Client
	history      *history.Store
	monitor      *monitor.Monitor
	notifier     notify.Notifier
	sleep        *sleep.Monitor
	startTime    time.Time
	ctx          context.Context
	cancelFunc   context.CancelFunc
}

func New() *Daemon {
	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		logBroadcast: NewLogBroadcaster(core.Config.EventHistory),
		notifier:     notify.Noop{},
		startTime:    time.Now(),
		ctx:          ctx,
		cancelFunc:   cancel,
	}
}

// setupMonitor builds the adb client, the history store and the monitor.
// A missing adb binary is not fatal: every cycle reports the error until
// the path is fixed.
func (d *Daemon) setupMonitor(exec adb.Executor) {
	cfg := core.Config
	logger := slog.Default()

	path, err := adb.FindPath(cfg.ADBPath)
	if err != nil {
		slog.Error("adb not found, devices cannot be polled", "error", err, "configured", cfg.ADBPath)
	} else {
		slog.Info("Using adb", "path", path)
	}

	d.client = adb.NewClient(exec, path, logger)
	d.client.SetTimeouts(cfg.CommandTimeout, cfg.ConnectTimeout)
	d.history = history.Open(core.GetHistoryPath(), logger)
	d.sleep = sleep.New(logger, nil, d.handleWake)

	d.monitor = monitor.New(monitor.Config{
		Bridge:           d.client,
		History:          d.history,
		Interval:         cfg.RefreshInterval,
		MaxConcurrent:    cfg.MaxConcurrentCommands,
		DefaultTCPIPPort: cfg.DefaultTCPIPPort,
		Logger:           logger,
		Suppressed:       d.sleep.IsSuppressed,
	})
	d.monitor.Subscribe(d.onCycle)
}

func (d *Daemon) Run() {
	d.setupLogging()

	database, err := db.Open(core.GetDBPath())
	if err != nil {
		slog.Error("Failed to open database", "error", err, "path", core.GetDBPath())
	} else {
		d.database = database
		slog.Info("Database opened", "path", database.Path())

		version := core.FormatVersion(core.Version)
		if err := d.database.LogDaemonEvent("start", fmt.Sprintf("daemon started - version: %s, PID: %d", version, os.Getpid())); err != nil {
			slog.Error("Failed to log daemon start", "error", err)
		}
	}

	socketPath := core.GetSocketPath()
	pidFilePath := core.GetPIDFilePath()

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		// Socket creation failed - this could be due to a stale socket file
		if _, statErr := os.Stat(socketPath); statErr == nil {
			conn, dialErr := net.Dial("unix", socketPath)
			if dialErr == nil {
				conn.Close()
				slog.Error("Fatal: Daemon is already running")
				os.Exit(1)
			}
			slog.Info(fmt.Sprintf("Removing stale socket file: %s", socketPath))
			if removeErr := os.Remove(socketPath); removeErr != nil {
				slog.Error(fmt.Sprintf("Fatal: Could not remove stale socket: %v", removeErr))
				os.Exit(1)
			}
			listener, err = net.Listen("unix", socketPath)
		}
		if err != nil {
			slog.Error(fmt.Sprintf("Fatal: Could not create socket listener: %v", err))
			os.Exit(1)
		}
	}

	os.WriteFile(pidFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644)
	defer os.Remove(pidFilePath)
	defer os.Remove(socketPath)

	d.listener = listener
	slog.Info(fmt.Sprintf("Daemon listening on %s", socketPath))

	d.notifier = notify.New(core.Config.Notifications, slog.Default())
	d.setupMonitor(adb.NewProcessExecutor(slog.Default()))
	d.sleep.Start(d.ctx)
	d.monitor.Start()

	if core.Config.AutoConnectLastDevices {
		go d.autoConnect("startup")
	}

	d.startPruneLoop()
	d.watchConfig()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-shutdownChan
		slog.Info("Shutdown signal received.")
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)
	}()

	for {
		conn, err := d.listener.Accept()
		if err != nil {
			if !strings.Contains(err.Error(), "use of closed network connection") {
				slog.Info(fmt.Sprintf("Error accepting connection: %v", err))
			}
			break
		}
		go d.handleConnection(conn)
	}
}

// handleWake refreshes once the post-wake grace period is over, and
// re-attaches network devices when auto-connect is enabled.
func (d *Daemon) handleWake() {
	time.AfterFunc(sleep.DefaultGrace, func() {
		if d.ctx.Err() != nil {
			return
		}
		if core.Config.AutoConnectLastDevices {
			d.autoConnect("wake")
		}
		d.monitor.Refresh()
	})
}

func (d *Daemon) autoConnect(reason string) {
	n := d.monitor.AutoConnect(d.ctx, autoConnectSpacing)
	slog.Info("Auto-connect finished", "reason", reason, "connected", n)
}

// sensitiveArgs maps commands to the argument index that must not be logged.
var sensitiveArgs = map[string]int{
	"PAIR": 1,
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		return
	}

	line := strings.TrimSpace(scanner.Text())
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return
	}
	command, args := parts[0], parts[1:]

	if command != "VERSION" && command != "STATUS" {
		logArgs := args
		if idx, ok := sensitiveArgs[command]; ok && len(args) > idx {
			logArgs = append([]string(nil), args...)
			logArgs[idx] = "[MASKED]"
		}
		if len(logArgs) > 0 {
			slog.Info(fmt.Sprintf("Executing command: %s %v", command, logArgs))
		} else {
			slog.Info(fmt.Sprintf("Executing command: %s", command))
		}
	}

	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	var response Response
	switch command {
	case "STOP":
		response = d.stopDaemon()
		conn.Write([]byte(response.ToJSON()))
		slog.Info("Stop command received. Shutting down daemon.")
		d.shutdown()
		if d.listener != nil {
			d.listener.Close()
		}
		os.Exit(0)
	case "LOGS":
		historyLines := 20
		showHistory := true
		if len(args) >= 1 {
			if n, err := strconv.Atoi(args[0]); err == nil {
				historyLines = n
			}
			if args[0] == "no_history" || (len(args) >= 2 && args[1] == "no_history") {
				showHistory = false
			}
		}
		d.handleLogs(conn, showHistory, historyLines)
		return
	case "TCPIP":
		if len(args) == 0 {
			response.AddMessage("Usage: TCPIP <device> [port]", "ERROR")
			break
		}
		d.enableTCPIPStreaming(ctx, args, NewStreamingResponse(conn))
		return
	case "STATUS":
		response = d.getStatus(ctx)
	case "VERSION":
		response = d.getVersion(ctx)
	case "DEVICES":
		response = d.getDevices()
	case "REFRESH":
		response = d.refresh()
	case "CONNECT":
		response = d.connect(ctx, args)
	case "DISCONNECT":
		response = d.disconnect(ctx, args)
	case "PAIR":
		response = d.pair(ctx, args)
	case "AUTOCONNECT":
		response = d.autoConnectNow(ctx)
	case "NAME":
		response = d.setName(line, args)
	case "FORGET":
		response = d.forget(args)
	case "HISTORY":
		response = d.getHistory()
	case "REVERSE_LIST", "FORWARD_LIST":
		response = d.listForwards(ctx, command, args)
	case "REVERSE_ADD", "FORWARD_ADD":
		response = d.addForward(ctx, command, args)
	case "REVERSE_REMOVE", "FORWARD_REMOVE":
		response = d.removeForward(ctx, command, args)
	case "REVERSE_CLEAR":
		response = d.clearReverse(ctx, args)
	case "SCREENSHOT":
		response = d.screenshot(ctx, args)
	case "REBOOT":
		response = d.reboot(ctx, args)
	case "INPUT_TEXT":
		response = d.inputText(ctx, line, args)
	case "KEYEVENT":
		response = d.keyEvent(ctx, args)
	case "EVENTS":
		response = d.getEvents(args)
	case "RELOAD":
		if err := d.reloadConfig(); err != nil {
			response.AddMessage(fmt.Sprintf("Reload failed: %v", err), "ERROR")
		} else {
			response.AddMessage("Configuration reloaded", "INFO")
		}
	default:
		response.AddMessage("Unknown command.", "ERROR")
	}
	conn.Write([]byte(response.ToJSON()))
}

func (d *Daemon) stopDaemon() Response {
	response := Response{}
	response.AddMessage("Stopping daemon...", "INFO")
	return response
}

func (d *Daemon) shutdown() {
	d.shutdownOnce.Do(func() {
		slog.Info("Executing shutdown sequence...")

		if d.monitor != nil {
			d.monitor.Stop()
		}
		if d.cancelFunc != nil {
			d.cancelFunc()
		}

		d.mu.Lock()
		defer d.mu.Unlock()

		if d.database == nil {
			return
		}

		devices := 0
		if d.monitor != nil {
			devices = len(d.monitor.Snapshot().Devices)
		}
		version := core.FormatVersion(core.Version)
		details := fmt.Sprintf("daemon stopped - version: %s, PID: %d, devices: %d", version, os.Getpid(), devices)
		if err := d.database.LogDaemonEvent("stop", details); err != nil {
			slog.Error("Failed to log daemon stop event", "error", err)
		}
		if err := d.database.Flush(); err != nil {
			slog.Error("Failed to flush database during shutdown", "error", err)
		}
		if err := d.database.Close(); err != nil {
			slog.Error("Failed to close database during shutdown", "error", err)
		} else {
			slog.Info("Database closed successfully")
		}
		d.database = nil
	})
}
