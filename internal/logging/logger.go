// Package logging builds the slog loggers used across wirebench.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// InitLogger opens the JSON log file of appName (see LogPath), rotating
// it first when it has grown too large. The closer releases the file.
func InitLogger(appName string, debug bool) (*slog.Logger, io.Closer, error) {
	path, err := LogPath(appName)
	if err != nil {
		return nil, nil, err
	}
	return NewFileLogger(path, debug)
}

// NewFileLogger appends JSON records to path. Debug lowers the level to
// DEBUG and adds source locations.
func NewFileLogger(path string, debug bool) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	if err := defaultRotation.apply(path); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
		opts.AddSource = true
	}
	return slog.New(slog.NewJSONHandler(f, opts)), f, nil
}

// NewConsoleLogger returns a text logger on w. Without debug only
// warnings and errors are written.
func NewConsoleLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NewNopLogger returns a logger that discards everything, for tests.
func NewNopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
