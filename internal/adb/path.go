package adb

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// platformToolsDirs returns the directories adb is commonly installed in,
// in search order.
func platformToolsDirs() []string {
	var dirs []string
	for _, env := range []string{"ANDROID_HOME", "ANDROID_SDK_ROOT"} {
		if root := os.Getenv(env); root != "" {
			dirs = append(dirs, filepath.Join(root, "platform-tools"))
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs,
			filepath.Join(home, "Library", "Android", "sdk", "platform-tools"),
			filepath.Join(home, "Android", "Sdk", "platform-tools"),
		)
	}
	return append(dirs, "/usr/local/bin", "/opt/homebrew/bin")
}

// FindPath resolves the adb binary. A non-empty configured path always wins
// and must exist. Otherwise the usual SDK locations are tried before PATH.
func FindPath(configured string) (string, error) {
	if configured != "" {
		if isExecutable(configured) {
			return configured, nil
		}
		return "", fmt.Errorf("%w: %s", ErrExecutorUnavailable, configured)
	}

	for _, dir := range platformToolsDirs() {
		candidate := filepath.Join(dir, "adb")
		if isExecutable(candidate) {
			return candidate, nil
		}
	}

	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", ErrExecutorUnavailable
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return info.Mode().Perm()&0o111 != 0
}
