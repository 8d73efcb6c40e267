package adb

import (
	"errors"
	"fmt"
)

var (
	// ErrExecutorUnavailable means the adb binary could not be found.
	ErrExecutorUnavailable = errors.New("adb executable not found")

	// ErrTimeout means the adb process did not exit in time and was killed.
	ErrTimeout = errors.New("adb command timed out")
)

// CommandFailedError is returned when adb exits with a non-zero status.
type CommandFailedError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandFailedError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("adb %s failed (exit %d): %s", e.Command, e.ExitCode, e.Output)
	}
	return fmt.Sprintf("adb %s failed (exit %d)", e.Command, e.ExitCode)
}

// ConnectionFailedError is returned when adb reports it could not reach a
// network device.
type ConnectionFailedError struct {
	Detail string
}

func (e *ConnectionFailedError) Error() string {
	return fmt.Sprintf("connection failed: %s", e.Detail)
}

// ParseError is returned when adb output has an unexpected shape.
type ParseError struct {
	Detail string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected adb output: %s", e.Detail)
}
