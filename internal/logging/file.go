package logging

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

// rotation shifts path to path.1, path.1 to path.2 and so on once path
// reaches maxSize, dropping anything past backups.
type rotation struct {
	maxSize int64
	backups int
}

var defaultRotation = rotation{maxSize: 5 << 20, backups: 3}

func (r rotation) apply(path string) error {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return fmt.Errorf("stat log file: %w", err)
	case info.Size() < r.maxSize:
		return nil
	}

	backup := func(n int) string { return fmt.Sprintf("%s.%d", path, n) }
	_ = os.Remove(backup(r.backups))
	for n := r.backups - 1; n >= 1; n-- {
		_ = os.Rename(backup(n), backup(n+1))
	}
	if err := os.Rename(path, backup(1)); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	return nil
}

// LogPath returns where appName writes its log:
//   - macOS:   ~/Library/Logs/<app>/<app>.log
//   - Windows: %LOCALAPPDATA%\<app>\Logs\<app>.log
//   - others:  $XDG_STATE_HOME/<app>/<app>.log, defaulting to ~/.local/state
func LogPath(appName string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	file := appName + ".log"

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", appName, file), nil
	case "windows":
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(base, appName, "Logs", file), nil
	}

	state := os.Getenv("XDG_STATE_HOME")
	if !filepath.IsAbs(state) {
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, appName, file), nil
}
