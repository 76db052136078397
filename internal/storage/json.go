package storage

import (
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/shhac/wirebench/internal/domain"
)

// JSONRepository stores each workspace as workspaces/<name>.json and the
// history as a single history.json below a base directory.
type JSONRepository struct {
	files      layout
	maxHistory int
	logger     *slog.Logger
}

// NewJSONRepository returns a repository rooted at basePath. Nothing is
// created on disk until the first write.
func NewJSONRepository(basePath string, logger *slog.Logger) *JSONRepository {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &JSONRepository{
		files:      layout(basePath),
		maxHistory: DefaultMaxHistory,
		logger:     logger,
	}
}

// SetMaxHistory caps the number of kept history entries. Values below one
// restore the default.
func (r *JSONRepository) SetMaxHistory(n int) {
	if n < 1 {
		n = DefaultMaxHistory
	}
	r.maxHistory = n
}

func (r *JSONRepository) SaveWorkspace(workspace domain.Workspace) error {
	path, err := r.files.workspace(workspace.Name)
	if err != nil {
		return err
	}
	if workspace.Version == 0 {
		workspace.Version = domain.WorkspaceVersion
	}
	if err := writeJSON(path, workspace); err != nil {
		return fmt.Errorf("save workspace %q: %w", workspace.Name, err)
	}
	r.logger.Debug("saved workspace", slog.String("name", workspace.Name), slog.String("path", path))
	return nil
}

func (r *JSONRepository) LoadWorkspace(name string) (*domain.Workspace, error) {
	path, err := r.files.workspace(name)
	if err != nil {
		return nil, err
	}
	var ws domain.Workspace
	if err := readJSON(path, &ws); err != nil {
		if isNotExist(err) {
			return nil, notFound(name)
		}
		return nil, fmt.Errorf("load workspace %q: %w", name, err)
	}
	if err := upgrade(&ws); err != nil {
		return nil, err
	}
	r.logger.Debug("loaded workspace", slog.String("name", name), slog.String("path", path))
	return &ws, nil
}

// ListWorkspaces returns the saved workspace names in sorted order. A
// missing workspaces directory is an empty list.
func (r *JSONRepository) ListWorkspaces() ([]string, error) {
	entries, err := os.ReadDir(r.files.workspaces())
	if err != nil {
		if isNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("read workspaces directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if name, ok := workspaceName(entry); ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

func (r *JSONRepository) DeleteWorkspace(name string) error {
	path, err := r.files.workspace(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if isNotExist(err) {
			return notFound(name)
		}
		return fmt.Errorf("delete workspace %q: %w", name, err)
	}
	r.logger.Debug("deleted workspace", slog.String("name", name))
	return nil
}

func (r *JSONRepository) AddHistoryEntry(entry domain.HistoryEntry) error {
	list, err := r.readHistory()
	if err != nil {
		return err
	}
	if err := writeJSON(r.files.history(), prepend(list, entry, r.maxHistory)); err != nil {
		return fmt.Errorf("save history: %w", err)
	}
	r.logger.Debug("recorded history entry",
		slog.String("id", entry.ID),
		slog.String("protocol", entry.Protocol),
		slog.String("target", entry.Target))
	return nil
}

func (r *JSONRepository) GetHistory(limit int) ([]domain.HistoryEntry, error) {
	list, err := r.readHistory()
	if err != nil {
		return nil, err
	}
	return head(list, limit), nil
}

func (r *JSONRepository) ClearHistory() error {
	if err := os.Remove(r.files.history()); err != nil && !isNotExist(err) {
		return fmt.Errorf("clear history: %w", err)
	}
	r.logger.Debug("cleared history")
	return nil
}

func (r *JSONRepository) readHistory() ([]domain.HistoryEntry, error) {
	var list []domain.HistoryEntry
	if err := readJSON(r.files.history(), &list); err != nil {
		if isNotExist(err) {
			return []domain.HistoryEntry{}, nil
		}
		return nil, fmt.Errorf("load history: %w", err)
	}
	return list, nil
}
