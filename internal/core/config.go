package core

import (
	"os"
	"path/filepath"
)

const (
	BaseDirName    = ".config/adbwatch"
	ConfigFileName = "config.hcl"
	PidFileName    = "daemon.pid"
	SocketName     = "daemon.sock"
	HistoryName    = "devices.json"
	DatabaseName   = "events.db"
)

// DefaultConfigPath returns ~/.config/adbwatch, or a relative path when the
// home directory cannot be determined.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return BaseDirName
	}
	return filepath.Join(home, BaseDirName)
}

func GetConfigFilePath() string {
	return filepath.Join(Config.ConfigPath, ConfigFileName)
}

func GetSocketPath() string {
	return filepath.Join(Config.ConfigPath, SocketName)
}

func GetPIDFilePath() string {
	return filepath.Join(Config.ConfigPath, PidFileName)
}

func GetHistoryPath() string {
	return filepath.Join(Config.ConfigPath, HistoryName)
}

func GetDBPath() string {
	return filepath.Join(Config.ConfigPath, DatabaseName)
}

// InitializeConfig loads config.hcl from configPath into the global Config.
// A missing file yields the defaults. Flags given on the command line win
// over the file.
func InitializeConfig(configPath string, verbose int) error {
	cfg := GetDefaultConfig()

	file := filepath.Join(configPath, ConfigFileName)
	if ConfigExists(file) {
		loaded, err := LoadConfig(file)
		if err != nil {
			Config = cfg
			Config.ConfigPath = configPath
			return err
		}
		cfg = loaded
	}

	cfg.ConfigPath = configPath
	if verbose > cfg.Verbose {
		cfg.Verbose = verbose
	}
	Config = cfg
	return nil
}
