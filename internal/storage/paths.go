package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	storageDirName = ".wirebench"
	workspacesDir  = "workspaces"
	workspaceExt   = ".json"
	historyFile    = "history.json"
)

// DefaultStoragePath returns ~/.wirebench, or %USERPROFILE%\.wirebench on Windows.
func DefaultStoragePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, storageDirName), nil
}

// layout maps logical records onto files below one base directory.
type layout string

func (l layout) workspaces() string { return filepath.Join(string(l), workspacesDir) }
func (l layout) history() string    { return filepath.Join(string(l), historyFile) }

// workspace returns the file of the named workspace. The name must be a
// plain file name and the result must stay inside the workspaces dir.
func (l layout) workspace(name string) (string, error) {
	if err := validateWorkspaceName(name); err != nil {
		return "", fmt.Errorf("invalid workspace name: %w", err)
	}
	dir := l.workspaces()
	path := filepath.Join(dir, name+workspaceExt)
	rel, err := filepath.Rel(dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspaces directory", path)
	}
	return path, nil
}

// workspaceName reverses workspace for a directory entry. ok is false for
// entries that are not workspace files.
func workspaceName(entry os.DirEntry) (name string, ok bool) {
	if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
		return "", false
	}
	return strings.CutSuffix(entry.Name(), workspaceExt)
}

func validateWorkspaceName(name string) error {
	switch {
	case name == "":
		return errors.New("workspace name must not be empty")
	case strings.Contains(name, ".."):
		return fmt.Errorf("workspace name must not contain %q", "..")
	case strings.ContainsAny(name, `/\`):
		return errors.New("workspace name must not contain path separators")
	case strings.IndexByte(name, 0) >= 0:
		return errors.New("workspace name must not contain null bytes")
	}
	return nil
}
