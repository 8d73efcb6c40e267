package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/time/rate"

	"go.olrik.dev/adbwatch/internal/device"
	"go.olrik.dev/adbwatch/internal/history"
)

// ErrNoSerial is returned for actions that need a persistent serial on a
// device whose serial is unknown.
var ErrNoSerial = errors.New("device has no persistent serial")

// target resolves a user supplied id to the raw id adb should address. Ids
// that match no published device are passed through unchanged.
func (m *Monitor) target(id string) (string, device.Device, bool) {
	d, ok := m.Snapshot().Device(id)
	if !ok {
		return id, device.Device{}, false
	}
	return d.BestRawID(), d, true
}

func (m *Monitor) checkRunning() error {
	if m.stopped.Load() {
		return ErrStopped
	}
	return nil
}

// Connect attaches to a network device and refreshes.
func (m *Monitor) Connect(ctx context.Context, address string) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if err := m.bridge.Connect(ctx, address); err != nil {
		return err
	}
	m.Refresh()
	return nil
}

// Disconnect detaches target. For a known device every network transport
// it has is disconnected; an unknown target is handed to adb as is.
func (m *Monitor) Disconnect(ctx context.Context, target string) ([]string, error) {
	if err := m.checkRunning(); err != nil {
		return nil, err
	}

	addresses := []string{target}
	if d, ok := m.Snapshot().Device(target); ok {
		addresses = d.NetworkRawIDs()
		if len(addresses) == 0 {
			return nil, fmt.Errorf("device %s has no network connection to disconnect", d.DisplayName())
		}
	}

	var errs []error
	var disconnected []string
	for _, addr := range addresses {
		if err := m.bridge.Disconnect(ctx, addr); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
			continue
		}
		disconnected = append(disconnected, addr)
	}

	m.Refresh()
	return disconnected, errors.Join(errs...)
}

// Pair pairs with a device in wireless debugging mode.
func (m *Monitor) Pair(ctx context.Context, address, code string) error {
	if err := m.checkRunning(); err != nil {
		return err
	}
	if err := m.bridge.Pair(ctx, address, code); err != nil {
		return err
	}
	m.Refresh()
	return nil
}

// EnableTCPIP switches target to TCP/IP mode on port (the configured default
// when port is 0). It returns the address to connect to when the device's
// IP is known.
func (m *Monitor) EnableTCPIP(ctx context.Context, target string, port int) (string, error) {
	if err := m.checkRunning(); err != nil {
		return "", err
	}
	if port == 0 {
		port = m.tcpPort
	}

	rawID, d, _ := m.target(target)
	if err := m.bridge.EnableTCPIP(ctx, rawID, port); err != nil {
		return "", err
	}

	address := ""
	for _, c := range d.AllConnections() {
		if c.HasAddress() {
			address = fmt.Sprintf("%s:%d", c.IP, port)
			break
		}
	}
	if address == "" && d.PersistentSerial != "" && m.history != nil {
		if rec, ok := m.history.Get(d.PersistentSerial); ok && rec.LastKnownIP != "" {
			address = fmt.Sprintf("%s:%d", rec.LastKnownIP, port)
		}
	}

	m.Refresh()
	return address, nil
}

// SetCustomName names a device by its persistent serial. An empty name
// clears it. The published snapshot is patched immediately.
func (m *Monitor) SetCustomName(target, name string) (string, error) {
	if m.history == nil {
		return "", errors.New("no device history configured")
	}

	serial := ""
	if d, ok := m.Snapshot().Device(target); ok {
		serial = d.PersistentSerial
		if serial == "" {
			return "", fmt.Errorf("%s: %w", d.DisplayName(), ErrNoSerial)
		}
	} else if _, ok := m.history.Get(target); ok {
		serial = target
	} else {
		return "", fmt.Errorf("unknown device: %s", target)
	}

	if err := m.history.SetCustomName(serial, name); err != nil {
		return "", err
	}
	m.patch(serial, func(d *device.Device) { d.CustomName = name })
	return serial, nil
}

// Forget removes the history record of serial.
func (m *Monitor) Forget(serial string) error {
	if m.history == nil {
		return errors.New("no device history configured")
	}
	removed, err := m.history.Remove(serial)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no history for %s", serial)
	}
	m.patch(serial, func(d *device.Device) { d.CustomName = "" })
	return nil
}

// History returns every history record, most recently seen first.
func (m *Monitor) History() []history.Record {
	if m.history == nil {
		return nil
	}
	return m.history.All()
}

// ReverseList lists reverse forwards of target.
func (m *Monitor) ReverseList(ctx context.Context, target string) ([]device.PortForward, error) {
	rawID, _, _ := m.target(target)
	return m.bridge.ReverseList(ctx, rawID)
}

// ReverseAdd adds a reverse forward on target.
func (m *Monitor) ReverseAdd(ctx context.Context, target string, localPort, remotePort int) error {
	if err := validatePorts(localPort, remotePort); err != nil {
		return err
	}
	rawID, _, _ := m.target(target)
	return m.bridge.ReverseAdd(ctx, rawID, localPort, remotePort)
}

// ReverseRemove removes a reverse forward from target.
func (m *Monitor) ReverseRemove(ctx context.Context, target string, localPort int) error {
	if err := validatePorts(localPort); err != nil {
		return err
	}
	rawID, _, _ := m.target(target)
	return m.bridge.ReverseRemove(ctx, rawID, localPort)
}

// ReverseRemoveAll removes every reverse forward from target.
func (m *Monitor) ReverseRemoveAll(ctx context.Context, target string) error {
	rawID, _, _ := m.target(target)
	return m.bridge.ReverseRemoveAll(ctx, rawID)
}

// ForwardList lists forwards of target, or of every device when target is
// empty.
func (m *Monitor) ForwardList(ctx context.Context, target string) ([]device.PortForward, error) {
	if target == "" {
		return m.bridge.ForwardList(ctx, "")
	}
	rawID, d, ok := m.target(target)
	if !ok {
		return m.bridge.ForwardList(ctx, rawID)
	}

	// adb lists forwards by the raw id they were created on.
	all, err := m.bridge.ForwardList(ctx, "")
	if err != nil {
		return nil, err
	}
	var forwards []device.PortForward
	for _, f := range all {
		if d.Matches(f.DeviceID) {
			forwards = append(forwards, f)
		}
	}
	return forwards, nil
}

// ForwardAdd adds a forward on target.
func (m *Monitor) ForwardAdd(ctx context.Context, target string, localPort, remotePort int) error {
	if err := validatePorts(localPort, remotePort); err != nil {
		return err
	}
	rawID, _, _ := m.target(target)
	return m.bridge.ForwardAdd(ctx, rawID, localPort, remotePort)
}

// ForwardRemove removes a forward from target.
func (m *Monitor) ForwardRemove(ctx context.Context, target string, localPort int) error {
	if err := validatePorts(localPort); err != nil {
		return err
	}
	rawID, _, _ := m.target(target)
	return m.bridge.ForwardRemove(ctx, rawID, localPort)
}

func validatePorts(ports ...int) error {
	for _, p := range ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("invalid port %d", p)
		}
	}
	return nil
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ScreenshotFileName builds the file name of a screenshot of name taken at t.
func ScreenshotFileName(name string, t time.Time) string {
	safe := unsafeFileChars.ReplaceAllString(name, "_")
	if safe == "" {
		safe = "device"
	}
	return fmt.Sprintf("screenshot_%s_%s.png", safe, t.Format("2006-01-02_15-04-05"))
}

// Screenshot captures target's screen into dir and returns the file path.
func (m *Monitor) Screenshot(ctx context.Context, target, dir string) (string, error) {
	rawID, d, ok := m.target(target)
	name := rawID
	if ok {
		name = d.DisplayName()
	}

	data, err := m.bridge.Screenshot(ctx, rawID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	path := filepath.Join(dir, ScreenshotFileName(name, m.now()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}

	m.logger.Info("Screenshot saved", "device", name, "path", path, "bytes", len(data))
	return path, nil
}

// Reboot reboots target into mode.
func (m *Monitor) Reboot(ctx context.Context, target, mode string) error {
	rawID, _, _ := m.target(target)
	if err := m.bridge.Reboot(ctx, rawID, mode); err != nil {
		return err
	}
	m.Refresh()
	return nil
}

// InputText types text on target.
func (m *Monitor) InputText(ctx context.Context, target, text string) error {
	rawID, _, _ := m.target(target)
	return m.bridge.InputText(ctx, rawID, text)
}

// KeyEvent sends an Android key code to target.
func (m *Monitor) KeyEvent(ctx context.Context, target string, keyCode int) error {
	rawID, _, _ := m.target(target)
	return m.bridge.InputKeyEvent(ctx, rawID, keyCode)
}

// AutoConnect connects to the last known address of every remembered
// device that is not connected right now, at most one attempt per spacing. Failures are logged and the
// number of successful connections is returned.
func (m *Monitor) AutoConnect(ctx context.Context, spacing time.Duration) int {
	if m.history == nil {
		return 0
	}

	attached := make(map[string]bool)
	for _, d := range m.Snapshot().Devices {
		if d.PersistentSerial != "" && d.State.IsConnected() {
			attached[d.PersistentSerial] = true
		}
	}

	limiter := rate.NewLimiter(rate.Every(spacing), 1)
	connected := 0

	for _, rec := range m.history.All() {
		addr := rec.Address()
		if addr == "" || attached[rec.PersistentSerial] {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return connected
		}
		if err := m.bridge.Connect(ctx, addr); err != nil {
			m.logger.Info("Auto-connect failed", "serial", rec.PersistentSerial, "address", addr, "error", err)
			continue
		}
		m.logger.Info("Auto-connected", "serial", rec.PersistentSerial, "address", addr)
		connected++
	}

	if connected > 0 {
		m.Refresh()
	}
	return connected
}
