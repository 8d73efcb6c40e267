package daemon

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.olrik.dev/adbwatch/internal/adb"
	"go.olrik.dev/adbwatch/internal/core"
	"go.olrik.dev/adbwatch/internal/db"
	"go.olrik.dev/adbwatch/internal/device"
	"go.olrik.dev/adbwatch/internal/history"
	"go.olrik.dev/adbwatch/internal/monitor"
)

// tcpipSettle is how long adbd needs to restart in TCP mode before it
// accepts connections.
var tcpipSettle = 2 * time.Second

// DaemonStatus is the payload of STATUS.
type DaemonStatus struct {
	State     monitor.State   `json:"state"`
	Error     string          `json:"error,omitempty"`
	Devices   int             `json:"devices"`
	Connected int             `json:"connected"`
	Cycles    uint64          `json:"cycles"`
	UpdatedAt string          `json:"updated_at,omitempty"`
	Interval  string          `json:"interval"`
	ADBPath   string          `json:"adb_path"`
	Server    *adb.ServerInfo `json:"server,omitempty"`
	Sleeping  bool            `json:"sleeping"`
	StartDate string          `json:"start_date"`
	Pid       int             `json:"pid"`
}

// HistoryEntry is one remembered device together with its latest event.
type HistoryEntry struct {
	history.Record
	LastEvent *db.DeviceEvent `json:"last_event,omitempty"`
}

// EventsData is the payload of EVENTS.
type EventsData struct {
	DeviceEvents []db.DeviceEvent `json:"device_events"`
	DaemonEvents []db.DaemonEvent `json:"daemon_events"`
}

func errorResponse(err error) Response {
	response := Response{}
	response.AddMessage(err.Error(), "ERROR")
	return response
}

func usage(text string) Response {
	response := Response{}
	response.AddMessage("Usage: "+text, "ERROR")
	return response
}

// restAfter returns the raw text of line after the first n fields, so that
// free text keeps its inner spacing.
func restAfter(line string, n int) string {
	rest := strings.TrimLeft(line, " \t")
	for i := 0; i < n; i++ {
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = strings.TrimLeft(rest[idx:], " \t")
	}
	return rest
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", s)
	}
	return port, nil
}

func (d *Daemon) getStatus(ctx context.Context) Response {
	snap := d.monitor.Snapshot()

	status := DaemonStatus{
		State:     snap.State,
		Error:     snap.Error,
		Devices:   len(snap.Devices),
		Cycles:    snap.Cycles,
		Interval:  d.monitor.Interval().String(),
		StartDate: d.startTime.Format(time.RFC3339),
		Pid:       os.Getpid(),
	}
	for _, dev := range snap.Devices {
		if dev.State.IsConnected() {
			status.Connected++
		}
	}
	if !snap.UpdatedAt.IsZero() {
		status.UpdatedAt = snap.UpdatedAt.Format(time.RFC3339)
	}
	if d.client != nil {
		status.ADBPath = d.client.Path()
	}
	if d.sleep != nil {
		status.Sleeping = d.sleep.IsSleeping()
	}
	if info, ok := adb.FindServer(ctx); ok {
		status.Server = &info
	}

	response := Response{}
	if snap.State == monitor.StateError {
		response.AddMessage(fmt.Sprintf("Last poll failed: %s", snap.Error), "WARN")
	} else {
		response.AddMessage("OK", "INFO")
	}
	response.AddData(status)
	return response
}

func (d *Daemon) getVersion(ctx context.Context) Response {
	response := Response{}
	response.AddMessage("OK", "INFO")

	data := map[string]interface{}{
		"version": core.Version,
		"pid":     os.Getpid(),
	}
	if d.client != nil {
		if v, err := d.client.Version(ctx); err == nil {
			data["adb_version"] = v
		}
	}
	response.AddData(data)
	return response
}

func (d *Daemon) getDevices() Response {
	snap := d.monitor.Snapshot()
	response := Response{}

	switch {
	case snap.State == monitor.StateError:
		response.AddMessage(fmt.Sprintf("Last poll failed: %s", snap.Error), "WARN")
	case len(snap.Devices) == 0:
		response.AddMessage("No devices found", "WARN")
	default:
		response.AddMessage("OK", "INFO")
	}
	response.AddData(snap.Devices)
	return response
}

func (d *Daemon) refresh() Response {
	response := Response{}
	if !d.monitor.Refresh() {
		response.AddMessage("A refresh is already in progress", "WARN")
		return response
	}
	snap := d.monitor.Snapshot()
	if snap.State == monitor.StateError {
		response.AddMessage(fmt.Sprintf("Refresh failed: %s", snap.Error), "ERROR")
	} else {
		response.AddMessage(fmt.Sprintf("Found %d device(s)", len(snap.Devices)), "INFO")
	}
	response.AddData(snap.Devices)
	return response
}

func (d *Daemon) connect(ctx context.Context, args []string) Response {
	if len(args) != 1 {
		return usage("CONNECT <ip:port>")
	}
	if err := d.monitor.Connect(ctx, args[0]); err != nil {
		return errorResponse(err)
	}
	response := Response{}
	response.AddMessage(fmt.Sprintf("Connected to %s", args[0]), "INFO")
	return response
}

func (d *Daemon) disconnect(ctx context.Context, args []string) Response {
	if len(args) != 1 {
		return usage("DISCONNECT <device>")
	}
	addresses, err := d.monitor.Disconnect(ctx, args[0])
	if err != nil {
		return errorResponse(err)
	}
	response := Response{}
	for _, addr := range addresses {
		response.AddMessage(fmt.Sprintf("Disconnected %s", addr), "INFO")
	}
	return response
}

func (d *Daemon) pair(ctx context.Context, args []string) Response {
	if len(args) != 2 {
		return usage("PAIR <ip:port> <code>")
	}
	if err := d.monitor.Pair(ctx, args[0], args[1]); err != nil {
		return errorResponse(err)
	}
	response := Response{}
	response.AddMessage(fmt.Sprintf("Paired with %s", args[0]), "INFO")
	return response
}

// enableTCPIPStreaming restarts adbd on the device in TCP mode and, when its
// address is known, connects to it once adbd is back.
func (d *Daemon) enableTCPIPStreaming(ctx context.Context, args []string, stream *StreamingResponse) {
	port := 0
	if len(args) > 1 {
		p, err := parsePort(args[1])
		if err != nil {
			stream.WriteMessage(err.Error(), "ERROR")
			return
		}
		port = p
	}

	stream.WriteMessage(fmt.Sprintf("Switching %s to TCP/IP mode...", args[0]), "INFO")
	address, err := d.monitor.EnableTCPIP(ctx, args[0], port)
	if err != nil {
		stream.WriteMessage(err.Error(), "ERROR")
		return
	}
	if address == "" {
		stream.WriteMessage("TCP/IP mode enabled, but the device address is unknown. Connect manually with 'adbwatch connect <ip:port>'.", "WARN")
		return
	}

	stream.WriteMessage(fmt.Sprintf("Connecting to %s...", address), "INFO")
	select {
	case <-time.After(tcpipSettle):
	case <-ctx.Done():
		stream.WriteMessage("Daemon is shutting down", "ERROR")
		return
	}
	if err := d.monitor.Connect(ctx, address); err != nil {
		stream.WriteMessage(err.Error(), "ERROR")
		return
	}
	stream.WriteMessage(fmt.Sprintf("Connected to %s", address), "INFO")
}

func (d *Daemon) autoConnectNow(ctx context.Context) Response {
	n := d.monitor.AutoConnect(ctx, autoConnectSpacing)
	response := Response{}
	response.AddMessage(fmt.Sprintf("Connected to %d remembered device(s)", n), "INFO")
	return response
}

func (d *Daemon) setName(line string, args []string) Response {
	if len(args) == 0 {
		return usage("NAME <device> [name]")
	}
	name := restAfter(line, 2)
	serial, err := d.monitor.SetCustomName(args[0], name)
	if err != nil {
		return errorResponse(err)
	}

	d.logDeviceEvent(serial, name, string(monitor.EventRenamed), name)

	response := Response{}
	if name == "" {
		response.AddMessage(fmt.Sprintf("Cleared name of %s", serial), "INFO")
	} else {
		response.AddMessage(fmt.Sprintf("Named %s %q", serial, name), "INFO")
	}
	return response
}

func (d *Daemon) forget(args []string) Response {
	if len(args) != 1 {
		return usage("FORGET <serial>")
	}
	if err := d.monitor.Forget(args[0]); err != nil {
		return errorResponse(err)
	}
	d.logDeviceEvent(args[0], "", string(monitor.EventForgotten), "")

	response := Response{}
	response.AddMessage(fmt.Sprintf("Forgot %s", args[0]), "INFO")
	return response
}

func (d *Daemon) getHistory() Response {
	records := d.monitor.History()

	last := make(map[string]db.DeviceEvent)
	if events, err := d.lastDeviceEvents(); err == nil {
		for _, e := range events {
			last[e.CanonicalID] = e
		}
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entry := HistoryEntry{Record: rec}
		if e, ok := last[rec.PersistentSerial]; ok {
			entry.LastEvent = &e
		}
		entries = append(entries, entry)
	}

	response := Response{}
	if len(entries) == 0 {
		response.AddMessage("No remembered devices", "WARN")
	} else {
		response.AddMessage("OK", "INFO")
	}
	response.AddData(entries)
	return response
}

func (d *Daemon) listForwards(ctx context.Context, command string, args []string) Response {
	var (
		forwards []device.PortForward
		err      error
	)
	if command == "REVERSE_LIST" {
		if len(args) != 1 {
			return usage("REVERSE_LIST <device>")
		}
		forwards, err = d.monitor.ReverseList(ctx, args[0])
	} else {
		target := ""
		if len(args) > 0 {
			target = args[0]
		}
		forwards, err = d.monitor.ForwardList(ctx, target)
	}
	if err != nil {
		return errorResponse(err)
	}
	if forwards == nil {
		forwards = []device.PortForward{}
	}

	response := Response{}
	response.AddMessage("OK", "INFO")
	response.AddData(forwards)
	return response
}

func (d *Daemon) addForward(ctx context.Context, command string, args []string) Response {
	if len(args) != 3 {
		return usage(command + " <device> <local-port> <remote-port>")
	}
	local, err := parsePort(args[1])
	if err != nil {
		return errorResponse(err)
	}
	remote, err := parsePort(args[2])
	if err != nil {
		return errorResponse(err)
	}

	if command == "REVERSE_ADD" {
		err = d.monitor.ReverseAdd(ctx, args[0], local, remote)
	} else {
		err = d.monitor.ForwardAdd(ctx, args[0], local, remote)
	}
	if err != nil {
		return errorResponse(err)
	}

	response := Response{}
	if command == "REVERSE_ADD" {
		response.AddMessage(fmt.Sprintf("Device port %d now reaches host port %d", local, remote), "INFO")
	} else {
		response.AddMessage(fmt.Sprintf("Host port %d now reaches device port %d", local, remote), "INFO")
	}
	return response
}

func (d *Daemon) removeForward(ctx context.Context, command string, args []string) Response {
	if len(args) != 2 {
		return usage(command + " <device> <port>")
	}
	port, err := parsePort(args[1])
	if err != nil {
		return errorResponse(err)
	}

	if command == "REVERSE_REMOVE" {
		err = d.monitor.ReverseRemove(ctx, args[0], port)
	} else {
		err = d.monitor.ForwardRemove(ctx, args[0], port)
	}
	if err != nil {
		return errorResponse(err)
	}

	response := Response{}
	response.AddMessage(fmt.Sprintf("Removed forward on port %d", port), "INFO")
	return response
}

func (d *Daemon) clearReverse(ctx context.Context, args []string) Response {
	if len(args) != 1 {
		return usage("REVERSE_CLEAR <device>")
	}
	if err := d.monitor.ReverseRemoveAll(ctx, args[0]); err != nil {
		return errorResponse(err)
	}
	response := Response{}
	response.AddMessage("Removed all reverse forwards", "INFO")
	return response
}

func (d *Daemon) screenshot(ctx context.Context, args []string) Response {
	if len(args) == 0 {
		return usage("SCREENSHOT <device> [directory]")
	}
	dir := core.Config.ScreenshotDir
	if len(args) > 1 {
		dir = args[1]
	}

	path, err := d.monitor.Screenshot(ctx, args[0], dir)
	if err != nil {
		return errorResponse(err)
	}
	response := Response{}
	response.AddMessage(fmt.Sprintf("Screenshot saved to %s", path), "INFO")
	response.AddData(map[string]string{"path": path})
	return response
}

func (d *Daemon) reboot(ctx context.Context, args []string) Response {
	if len(args) == 0 || len(args) > 2 {
		return usage("REBOOT <device> [recovery|bootloader|sideload|sideload-auto-reboot]")
	}
	mode := ""
	if len(args) == 2 {
		mode = args[1]
	}
	if err := d.monitor.Reboot(ctx, args[0], mode); err != nil {
		return errorResponse(err)
	}

	response := Response{}
	if mode == "" {
		response.AddMessage(fmt.Sprintf("Rebooting %s", args[0]), "INFO")
	} else {
		response.AddMessage(fmt.Sprintf("Rebooting %s into %s", args[0], mode), "INFO")
	}
	return response
}

func (d *Daemon) inputText(ctx context.Context, line string, args []string) Response {
	text := restAfter(line, 2)
	if len(args) < 2 || text == "" {
		return usage("INPUT_TEXT <device> <text>")
	}
	if err := d.monitor.InputText(ctx, args[0], text); err != nil {
		return errorResponse(err)
	}
	response := Response{}
	response.AddMessage(fmt.Sprintf("Sent %d character(s)", len([]rune(text))), "INFO")
	return response
}

func (d *Daemon) keyEvent(ctx context.Context, args []string) Response {
	if len(args) != 2 {
		return usage("KEYEVENT <device> <keycode>")
	}
	code, err := strconv.Atoi(args[1])
	if err != nil || code < 0 {
		return errorResponse(fmt.Errorf("invalid key code %q", args[1]))
	}
	if err := d.monitor.KeyEvent(ctx, args[0], code); err != nil {
		return errorResponse(err)
	}
	response := Response{}
	response.AddMessage(fmt.Sprintf("Sent key event %d", code), "INFO")
	return response
}

func (d *Daemon) getEvents(args []string) Response {
	limit := 20
	deviceID := ""
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil && n > 0 {
			limit = n
			continue
		}
		deviceID = arg
	}
	if deviceID != "" {
		if dev, ok := d.monitor.Snapshot().Device(deviceID); ok {
			deviceID = dev.ID
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.database == nil {
		return errorResponse(fmt.Errorf("event database is not available"))
	}

	deviceEvents, err := d.database.GetRecentDeviceEvents(deviceID, limit)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to read device events: %w", err))
	}
	daemonEvents, err := d.database.GetRecentDaemonEvents(limit)
	if err != nil {
		return errorResponse(fmt.Errorf("failed to read daemon events: %w", err))
	}

	response := Response{}
	response.AddMessage("OK", "INFO")
	response.AddData(EventsData{DeviceEvents: deviceEvents, DaemonEvents: daemonEvents})
	return response
}
