package core

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Config is the global configuration instance
var Config *Configuration

// Configuration represents the complete adbwatch configuration
type Configuration struct {
	ConfigPath string // Directory containing config files
	Verbose    int    // Verbosity level

	ADBPath          string        // Explicit adb binary, empty means search
	RefreshInterval  time.Duration // Time between device polls
	CommandTimeout   time.Duration // Hard limit for a single adb invocation
	ConnectTimeout   time.Duration // Limit for adb connect and adb pair
	DefaultTCPIPPort int

	MaxConcurrentCommands  int  // Cap on parallel getprop calls
	AutoConnectLastDevices bool // Reconnect known network devices on start
	Notifications          bool // Desktop notifications on connect/disconnect

	ScreenshotDir string

	EventHistory   int           // Log lines kept for `adbwatch logs`
	EventRetention time.Duration // Device events older than this are pruned, 0 keeps all
}

// HCL parsing structs

type hclConfig struct {
	Verbose       int        `hcl:"verbose,optional"`
	ADBPath       string     `hcl:"adb_path,optional"`
	ScreenshotDir string     `hcl:"screenshot_dir,optional"`
	Polling       *hclPoll   `hcl:"polling,block"`
	Devices       *hclDevice `hcl:"devices,block"`
	Daemon        *hclDaemon `hcl:"daemon,block"`
}

type hclPoll struct {
	RefreshInterval       string `hcl:"refresh_interval,optional"`
	CommandTimeout        string `hcl:"command_timeout,optional"`
	ConnectTimeout        string `hcl:"connect_timeout,optional"`
	MaxConcurrentCommands int    `hcl:"max_concurrent_commands,optional"`
}

type hclDevice struct {
	DefaultTCPIPPort       int   `hcl:"default_tcpip_port,optional"`
	AutoConnectLastDevices *bool `hcl:"auto_connect_last_devices,optional"`
}

type hclDaemon struct {
	Notifications  *bool  `hcl:"notifications,optional"`
	EventHistory   int    `hcl:"event_history,optional"`
	EventRetention string `hcl:"event_retention,optional"`
}

// LoadConfig loads the HCL configuration file and returns a Configuration struct
func LoadConfig(filename string) (*Configuration, error) {
	var hclCfg hclConfig

	err := hclsimple.DecodeFile(filename, nil, &hclCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HCL config: %w", err)
	}

	cfg := GetDefaultConfig()
	cfg.Verbose = hclCfg.Verbose
	cfg.ADBPath = hclCfg.ADBPath
	if hclCfg.ScreenshotDir != "" {
		cfg.ScreenshotDir = expandHome(hclCfg.ScreenshotDir)
	}

	if p := hclCfg.Polling; p != nil {
		if cfg.RefreshInterval, err = parseDuration("polling.refresh_interval", p.RefreshInterval, cfg.RefreshInterval); err != nil {
			return nil, err
		}
		if cfg.CommandTimeout, err = parseDuration("polling.command_timeout", p.CommandTimeout, cfg.CommandTimeout); err != nil {
			return nil, err
		}
		if cfg.ConnectTimeout, err = parseDuration("polling.connect_timeout", p.ConnectTimeout, cfg.ConnectTimeout); err != nil {
			return nil, err
		}
		if p.MaxConcurrentCommands < 0 {
			return nil, fmt.Errorf("polling.max_concurrent_commands must not be negative")
		}
		if p.MaxConcurrentCommands > 0 {
			cfg.MaxConcurrentCommands = p.MaxConcurrentCommands
		}
	}

	if d := hclCfg.Devices; d != nil {
		if d.DefaultTCPIPPort != 0 {
			if d.DefaultTCPIPPort < 1 || d.DefaultTCPIPPort > 65535 {
				return nil, fmt.Errorf("devices.default_tcpip_port %d out of range", d.DefaultTCPIPPort)
			}
			cfg.DefaultTCPIPPort = d.DefaultTCPIPPort
		}
		if d.AutoConnectLastDevices != nil {
			cfg.AutoConnectLastDevices = *d.AutoConnectLastDevices
		}
	}

	if d := hclCfg.Daemon; d != nil {
		if d.Notifications != nil {
			cfg.Notifications = *d.Notifications
		}
		if d.EventHistory > 0 {
			cfg.EventHistory = d.EventHistory
		}
		if cfg.EventRetention, err = parseDuration("daemon.event_retention", d.EventRetention, cfg.EventRetention); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// parseDuration returns fallback for an empty value. Non-positive durations
// are rejected.
func parseDuration(key, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, value)
	}
	return d, nil
}

func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// GetDefaultConfig returns a Configuration with default values
func GetDefaultConfig() *Configuration {
	return &Configuration{
		Verbose:                0,
		RefreshInterval:        3 * time.Second,
		CommandTimeout:         30 * time.Second,
		ConnectTimeout:         10 * time.Second,
		DefaultTCPIPPort:       5555,
		MaxConcurrentCommands:  16,
		AutoConnectLastDevices: false,
		Notifications:          true,
		ScreenshotDir:          expandHome("~/Downloads"),
		EventHistory:           1000,
	}
}

// ConfigExists checks if a config file exists
func ConfigExists(configPath string) bool {
	_, err := os.Stat(configPath)
	return err == nil
}
