package adb

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.olrik.dev/adbwatch/internal/device"
)

const (
	DefaultCommandTimeout = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
)

// RebootModes are the targets accepted by Reboot. The empty mode reboots
// into the system.
var RebootModes = []string{"", "recovery", "bootloader", "sideload", "sideload-auto-reboot"}

// Client is a typed wrapper around the adb binary.
type Client struct {
	exec   Executor
	path   string
	logger *slog.Logger

	mu             sync.RWMutex
	commandTimeout time.Duration
	connectTimeout time.Duration
}

// NewClient creates a client running the adb binary at path through exec.
func NewClient(exec Executor, path string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		exec:           exec,
		path:           path,
		logger:         logger.With("component", "adb"),
		commandTimeout: DefaultCommandTimeout,
		connectTimeout: DefaultConnectTimeout,
	}
}

// SetTimeouts changes the timeouts used for subsequent commands. Zero
// values leave the current setting unchanged.
func (c *Client) SetTimeouts(command, connect time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if command > 0 {
		c.commandTimeout = command
	}
	if connect > 0 {
		c.connectTimeout = connect
	}
}

func (c *Client) timeouts() (time.Duration, time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.commandTimeout, c.connectTimeout
}

// Path returns the adb binary in use.
func (c *Client) Path() string {
	return c.path
}

func (c *Client) run(ctx context.Context, args []string, timeout time.Duration) (Result, error) {
	if c.path == "" {
		return Result{}, ErrExecutorUnavailable
	}
	if timeout <= 0 {
		timeout, _ = c.timeouts()
	}

	result, err := c.exec.Execute(ctx, c.path, args, timeout)
	if err != nil {
		return Result{}, err
	}
	if !result.Success() {
		c.logger.Debug("adb command failed", "args", strings.Join(args, " "), "exit_code", result.ExitCode, "output", result.Combined())
	}
	return result, nil
}

func (c *Client) runDevice(ctx context.Context, deviceID string, args ...string) (Result, error) {
	return c.run(ctx, append([]string{"-s", deviceID}, args...), 0)
}

// requireSuccess turns a non-zero exit code into a *CommandFailedError.
func requireSuccess(result Result, command string) error {
	if result.Success() {
		return nil
	}
	return &CommandFailedError{Command: command, ExitCode: result.ExitCode, Output: result.Combined()}
}

// Available reports whether adb can be found and runs.
func (c *Client) Available(ctx context.Context) bool {
	_, err := c.Version(ctx)
	return err == nil
}

// Version returns the first line of "adb version".
func (c *Client) Version(ctx context.Context) (string, error) {
	result, err := c.run(ctx, []string{"version"}, 0)
	if err != nil {
		return "", err
	}
	if err := requireSuccess(result, "version"); err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(result.Stdout, "\n")
	return strings.TrimSpace(line), nil
}

// ListDevices runs "adb devices -l" and parses the listing.
func (c *Client) ListDevices(ctx context.Context) ([]device.Observation, error) {
	result, err := c.run(ctx, []string{"devices", "-l"}, 0)
	if err != nil {
		return nil, err
	}
	if err := requireSuccess(result, "devices -l"); err != nil {
		return nil, err
	}
	return device.ParseDeviceList(result.Stdout), nil
}

// GetProperty reads one system property from a device.
func (c *Client) GetProperty(ctx context.Context, deviceID, property string) (string, error) {
	result, err := c.runDevice(ctx, deviceID, "shell", "getprop", property)
	if err != nil {
		return "", err
	}
	if err := requireSuccess(result, "getprop "+property); err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// Connect attaches to a device listening on address ("ip:port").
func (c *Client) Connect(ctx context.Context, address string) error {
	_, connectTimeout := c.timeouts()
	result, err := c.run(ctx, []string{"connect", address}, connectTimeout)
	if err != nil {
		return err
	}

	output := result.Stdout
	if strings.Contains(output, "connected to") || strings.Contains(output, "already connected") {
		c.logger.Info("Connected", "address", address)
		return nil
	}
	if strings.Contains(output, "failed") || strings.Contains(output, "unable") {
		return &ConnectionFailedError{Detail: output}
	}
	if !result.Success() {
		return &ConnectionFailedError{Detail: result.Combined()}
	}
	return nil
}

// Disconnect detaches a network device.
func (c *Client) Disconnect(ctx context.Context, address string) error {
	result, err := c.run(ctx, []string{"disconnect", address}, 0)
	if err != nil {
		return err
	}
	if !result.Success() && !strings.Contains(result.Stdout, "disconnected") {
		return requireSuccess(result, "disconnect "+address)
	}
	return nil
}

// Pair pairs with a device in wireless debugging mode using the code shown
// on its screen. The pairing address differs from the connect address.
func (c *Client) Pair(ctx context.Context, address, code string) error {
	_, connectTimeout := c.timeouts()
	result, err := c.run(ctx, []string{"pair", address, code}, connectTimeout)
	if err != nil {
		return err
	}

	output := result.Combined()
	if strings.Contains(output, "Successfully paired") {
		c.logger.Info("Paired", "address", address)
		return nil
	}
	lower := strings.ToLower(output)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "unable") || !result.Success() {
		return &ConnectionFailedError{Detail: output}
	}
	return nil
}

// EnableTCPIP restarts adbd on the device listening on port.
func (c *Client) EnableTCPIP(ctx context.Context, deviceID string, port int) error {
	result, err := c.runDevice(ctx, deviceID, "tcpip", strconv.Itoa(port))
	if err != nil {
		return err
	}
	return requireSuccess(result, fmt.Sprintf("tcpip %d", port))
}

// Shell runs a shell command on the device and returns its output.
func (c *Client) Shell(ctx context.Context, deviceID, command string) (string, error) {
	result, err := c.runDevice(ctx, deviceID, "shell", command)
	if err != nil {
		return "", err
	}
	if err := requireSuccess(result, "shell "+command); err != nil {
		return "", err
	}
	return result.Stdout, nil
}

// ReverseList lists the reverse port forwards of a device.
func (c *Client) ReverseList(ctx context.Context, deviceID string) ([]device.PortForward, error) {
	result, err := c.runDevice(ctx, deviceID, "reverse", "--list")
	if err != nil {
		return nil, err
	}
	// Devices without any reverse forwards may exit non-zero with no output.
	if !result.Success() && result.Stdout != "" {
		return nil, requireSuccess(result, "reverse --list")
	}
	return device.ParseReverseList(result.Stdout, deviceID), nil
}

// ReverseAdd adds a reverse port forward between localPort and remotePort.
func (c *Client) ReverseAdd(ctx context.Context, deviceID string, localPort, remotePort int) error {
	local, remote := device.TCPSpec(localPort), device.TCPSpec(remotePort)
	result, err := c.runDevice(ctx, deviceID, "reverse", local, remote)
	if err != nil {
		return err
	}
	return requireSuccess(result, "reverse "+local+" "+remote)
}

// ReverseRemove removes one reverse port forward.
func (c *Client) ReverseRemove(ctx context.Context, deviceID string, localPort int) error {
	local := device.TCPSpec(localPort)
	result, err := c.runDevice(ctx, deviceID, "reverse", "--remove", local)
	if err != nil {
		return err
	}
	return requireSuccess(result, "reverse --remove "+local)
}

// ReverseRemoveAll removes every reverse port forward of a device.
func (c *Client) ReverseRemoveAll(ctx context.Context, deviceID string) error {
	result, err := c.runDevice(ctx, deviceID, "reverse", "--remove-all")
	if err != nil {
		return err
	}
	return requireSuccess(result, "reverse --remove-all")
}

// ForwardList lists forward port forwards. adb reports forwards of every
// device; only those of deviceID are returned unless deviceID is empty.
func (c *Client) ForwardList(ctx context.Context, deviceID string) ([]device.PortForward, error) {
	result, err := c.run(ctx, []string{"forward", "--list"}, 0)
	if err != nil {
		return nil, err
	}
	if err := requireSuccess(result, "forward --list"); err != nil {
		return nil, err
	}
	return device.ParseForwardList(result.Stdout, deviceID), nil
}

// ForwardAdd makes localPort on this host reach remotePort on the device.
func (c *Client) ForwardAdd(ctx context.Context, deviceID string, localPort, remotePort int) error {
	local, remote := device.TCPSpec(localPort), device.TCPSpec(remotePort)
	result, err := c.runDevice(ctx, deviceID, "forward", local, remote)
	if err != nil {
		return err
	}
	return requireSuccess(result, "forward "+local+" "+remote)
}

// ForwardRemove removes one forward port forward.
func (c *Client) ForwardRemove(ctx context.Context, deviceID string, localPort int) error {
	local := device.TCPSpec(localPort)
	result, err := c.runDevice(ctx, deviceID, "forward", "--remove", local)
	if err != nil {
		return err
	}
	return requireSuccess(result, "forward --remove "+local)
}

// Screenshot captures the device screen as PNG bytes.
func (c *Client) Screenshot(ctx context.Context, deviceID string) ([]byte, error) {
	if c.path == "" {
		return nil, ErrExecutorUnavailable
	}
	timeout, _ := c.timeouts()
	data, err := c.exec.ExecuteRaw(ctx, c.path, []string{"-s", deviceID, "exec-out", "screencap", "-p"}, timeout)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, &CommandFailedError{Command: "screencap", ExitCode: -1, Output: "empty screenshot"}
	}
	c.logger.Debug("Screenshot captured", "device", deviceID, "bytes", len(data))
	return data, nil
}

// Reboot reboots the device into mode (see RebootModes).
func (c *Client) Reboot(ctx context.Context, deviceID, mode string) error {
	if !slices.Contains(RebootModes, mode) {
		return fmt.Errorf("unknown reboot mode %q", mode)
	}

	args := []string{"reboot"}
	if mode != "" {
		args = append(args, mode)
	}
	result, err := c.runDevice(ctx, deviceID, args...)
	if err != nil {
		return err
	}
	return requireSuccess(result, strings.Join(args, " "))
}

// InputText types text on the device.
func (c *Client) InputText(ctx context.Context, deviceID, text string) error {
	result, err := c.runDevice(ctx, deviceID, "shell", "input", "text", EscapeInputText(text))
	if err != nil {
		return err
	}
	return requireSuccess(result, "input text")
}

// InputKeyEvent sends an Android key code to the device.
func (c *Client) InputKeyEvent(ctx context.Context, deviceID string, keyCode int) error {
	result, err := c.runDevice(ctx, deviceID, "shell", "input", "keyevent", strconv.Itoa(keyCode))
	if err != nil {
		return err
	}
	return requireSuccess(result, fmt.Sprintf("input keyevent %d", keyCode))
}

var inputTextEscaper = strings.NewReplacer(
	" ", "%s",
	"'", `\'`,
	`"`, `\"`,
	"&", `\&`,
	"<", `\<`,
	">", `\>`,
	";", `\;`,
	"(", `\(`,
	")", `\)`,
)

// EscapeInputText escapes text for "input text", which runs through the
// device shell and uses %s for spaces.
func EscapeInputText(text string) string {
	return inputTextEscaper.Replace(text)
}
