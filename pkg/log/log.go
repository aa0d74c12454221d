// Package log is the process-wide structured logger for tailor.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

var (
	logger atomic.Pointer[slog.Logger]
	level  = new(slog.LevelVar)

	// mu guards out and runFile while the handler is being swapped.
	mu      sync.Mutex
	out     io.Writer = os.Stderr
	runFile *os.File
)

func init() {
	// Warnings and errors only until a command asks for more.
	level.Set(slog.LevelWarn)
	install(out)
}

func install(w io.Writer) {
	l := slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
	logger.Store(l)
}

// SetVerbose enables debug logging
func SetVerbose(verbose bool) {
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelWarn)
	}
}

// SetQuiet disables all logging except errors
func SetQuiet(quiet bool) {
	if quiet {
		level.Set(slog.LevelError)
	}
}

// SetOutput changes the log output destination. Any run log opened with
// AddFile is detached.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeRunFile()
	out = w
	install(w)
}

// AddFile tees log output into path (appending), typically a run's
// logs/run.log. The returned func detaches and closes the file.
func AddFile(path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	mu.Lock()
	closeRunFile()
	runFile = f
	install(io.MultiWriter(out, f))
	mu.Unlock()

	return func() error {
		mu.Lock()
		defer mu.Unlock()
		if runFile != f {
			return nil
		}
		install(out)
		return closeRunFile()
	}, nil
}

func closeRunFile() error {
	if runFile == nil {
		return nil
	}
	err := runFile.Close()
	runFile = nil
	return err
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	logger.Load().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	logger.Load().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	logger.Load().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	logger.Load().Error(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return logger.Load().With(args...)
}
