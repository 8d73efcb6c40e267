package daemon

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"go.olrik.dev/adbwatch/internal/core"
	"go.olrik.dev/adbwatch/internal/notify"
)

// reloadDebounce is how long the config file must be quiet before reloading.
var reloadDebounce = 500 * time.Millisecond

// reloadConfig re-reads the config file and applies what can change at
// runtime. On a parse error the current configuration is kept.
func (d *Daemon) reloadConfig() error {
	oldConfig := core.Config
	configPath := core.GetConfigFilePath()

	newConfig, err := core.LoadConfig(configPath)
	if err != nil {
		slog.Error("Configuration file has errors, keeping previous configuration",
			"file", configPath,
			"error", err)
		return fmt.Errorf("config parse error: %w", err)
	}

	newConfig.ConfigPath = oldConfig.ConfigPath
	if oldConfig.Verbose > newConfig.Verbose {
		newConfig.Verbose = oldConfig.Verbose
	}
	core.Config = newConfig

	d.applyConfig(oldConfig, newConfig)

	d.logDaemonEvent("config_reload", fmt.Sprintf("refresh interval: %s", newConfig.RefreshInterval))
	slog.Info("Configuration reloaded successfully")
	return nil
}

func (d *Daemon) applyConfig(oldConfig, newConfig *core.Configuration) {
	if d.monitor != nil && oldConfig.RefreshInterval != newConfig.RefreshInterval {
		d.monitor.SetInterval(newConfig.RefreshInterval)
		slog.Info("Refresh interval changed", "interval", newConfig.RefreshInterval)
	}
	if d.client != nil {
		d.client.SetTimeouts(newConfig.CommandTimeout, newConfig.ConnectTimeout)
	}
	if oldConfig.Notifications != newConfig.Notifications {
		notifier := notify.New(newConfig.Notifications, slog.Default())
		d.mu.Lock()
		d.notifier = notifier
		d.mu.Unlock()
	}

	if oldConfig.ADBPath != newConfig.ADBPath {
		slog.Warn("adb_path changed, restart the daemon to apply it", "adb_path", newConfig.ADBPath)
	}
	if oldConfig.MaxConcurrentCommands != newConfig.MaxConcurrentCommands {
		slog.Warn("max_concurrent_commands changed, restart the daemon to apply it",
			"max_concurrent_commands", newConfig.MaxConcurrentCommands)
	}
	if oldConfig.DefaultTCPIPPort != newConfig.DefaultTCPIPPort {
		slog.Warn("default_tcpip_port changed, restart the daemon to apply it",
			"default_tcpip_port", newConfig.DefaultTCPIPPort)
	}
}

// watchConfig reloads the configuration when the config file changes. A
// missing config file is not watched.
func (d *Daemon) watchConfig() {
	configPath := core.GetConfigFilePath()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Error("Failed to create config file watcher", "error", err)
		return
	}

	if err := watcher.Add(configPath); err != nil {
		slog.Debug("Not watching config file", "error", err, "path", configPath)
		watcher.Close()
		return
	}

	var reloadTimer *time.Timer
	var reloadMutex sync.Mutex

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-d.ctx.Done():
				reloadMutex.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadMutex.Unlock()
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				slog.Debug("Filesystem event on config file", "event", event.Op.String(), "file", event.Name)

				// Editors that save atomically drop the file from the watch list.
				if event.Op&(fsnotify.Rename|fsnotify.Remove|fsnotify.Create) != 0 {
					go rewatch(watcher, configPath)
				}

				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				reloadMutex.Lock()
				if reloadTimer != nil {
					reloadTimer.Stop()
				}
				reloadTimer = time.AfterFunc(reloadDebounce, func() {
					if d.ctx.Err() != nil {
						return
					}
					slog.Info("Configuration file changed, reloading...", "file", configPath)
					if err := d.reloadConfig(); err != nil {
						slog.Debug("Config reload failed", "error", err)
					}
				})
				reloadMutex.Unlock()

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config file watcher error", "error", err)
			}
		}
	}()
}

// rewatch re-adds path to the watcher, retrying while an atomic save is
// still in progress.
func rewatch(watcher *fsnotify.Watcher, path string) {
	for attempt := 0; attempt < 5; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(10<<uint(attempt-1)) * time.Millisecond)
		}
		watcher.Remove(path)
		err := watcher.Add(path)
		if err == nil {
			slog.Debug("Re-added config watch", "path", path, "attempt", attempt+1)
			return
		}
		if attempt == 4 {
			slog.Error("Failed to re-add config watch", "error", err, "path", path)
		}
	}
}
