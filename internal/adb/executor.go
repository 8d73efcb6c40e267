// Package adb runs the adb command line tool and exposes its operations as
// typed Go calls.
package adb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Result is the captured outcome of one command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports a zero exit code.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Combined returns stdout followed by stderr.
func (r Result) Combined() string {
	if r.Stderr == "" {
		return r.Stdout
	}
	if r.Stdout == "" {
		return r.Stderr
	}
	return r.Stdout + "\n" + r.Stderr
}

// Executor runs external commands with a hard deadline.
type Executor interface {
	// Execute runs path with args and returns trimmed stdout/stderr and
	// the exit code. A non-zero exit code is not an error.
	Execute(ctx context.Context, path string, args []string, timeout time.Duration) (Result, error)

	// ExecuteRaw runs path with args and returns stdout unmodified. A
	// non-zero exit code is returned as *CommandFailedError.
	ExecuteRaw(ctx context.Context, path string, args []string, timeout time.Duration) ([]byte, error)
}

// ProcessExecutor runs commands as child processes. Each child gets its own
// process group so the whole group can be killed when the deadline passes.
type ProcessExecutor struct {
	logger *slog.Logger
}

// NewProcessExecutor creates an executor backed by os/exec.
func NewProcessExecutor(logger *slog.Logger) *ProcessExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProcessExecutor{logger: logger.With("component", "executor")}
}

func (e *ProcessExecutor) command(ctx context.Context, path string, args []string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Env = buildEnvironment()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		// Negative pid addresses the process group.
		if err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL); err != nil {
			return cmd.Process.Kill()
		}
		return nil
	}
	cmd.WaitDelay = time.Second
	return cmd
}

// Execute implements Executor.
func (e *ProcessExecutor) Execute(ctx context.Context, path string, args []string, timeout time.Duration) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := e.command(ctx, path, args)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("Command timed out", "command", commandLine(path, args), "timeout", timeout)
		return Result{}, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, commandLine(path, args))
	}

	result := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
				return Result{}, fmt.Errorf("%w: %s", ErrExecutorUnavailable, path)
			}
			return Result{}, fmt.Errorf("failed to run %s: %w", commandLine(path, args), err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	e.logger.Debug("Command finished",
		"command", commandLine(path, args),
		"exit_code", result.ExitCode,
		"duration", time.Since(start).Round(time.Millisecond))

	return result, nil
}

// ExecuteRaw implements Executor.
func (e *ProcessExecutor) ExecuteRaw(ctx context.Context, path string, args []string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := e.command(ctx, path, args)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		e.logger.Warn("Raw command timed out", "command", commandLine(path, args), "timeout", timeout)
		return nil, fmt.Errorf("%w after %s: %s", ErrTimeout, timeout, commandLine(path, args))
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &CommandFailedError{
				Command:  strings.Join(args, " "),
				ExitCode: exitErr.ExitCode(),
				Output:   strings.TrimSpace(stderr.String()),
			}
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrExecutorUnavailable, path)
		}
		return nil, fmt.Errorf("failed to run %s: %w", commandLine(path, args), err)
	}

	return stdout.Bytes(), nil
}

func commandLine(path string, args []string) string {
	return filepath.Base(path) + " " + strings.Join(args, " ")
}

// buildEnvironment prepends the usual platform-tools locations to PATH so
// adb can find its own helpers.
func buildEnvironment() []string {
	env := os.Environ()
	extra := strings.Join(platformToolsDirs(), string(os.PathListSeparator))

	for i, kv := range env {
		if rest, ok := strings.CutPrefix(kv, "PATH="); ok {
			env[i] = "PATH=" + extra + string(os.PathListSeparator) + rest
			return env
		}
	}
	return append(env, "PATH="+extra)
}
