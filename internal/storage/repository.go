package storage

import (
	"errors"
	"fmt"

	"github.com/shhac/wirebench/internal/domain"
)

// DefaultMaxHistory is the history cap used when none is configured.
const DefaultMaxHistory = 100

var (
	// ErrNotFound is returned when a named workspace does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUnsupportedVersion is returned for trees written by a newer layout.
	ErrUnsupportedVersion = errors.New("unsupported workspace version")
)

// Repository persists workspace trees by name
type Repository interface {
	SaveWorkspace(workspace domain.Workspace) error
	LoadWorkspace(name string) (*domain.Workspace, error)
	ListWorkspaces() ([]string, error)
	DeleteWorkspace(name string) error
}

// HistoryStore records resolved request attempts, most recent first
type HistoryStore interface {
	AddHistoryEntry(entry domain.HistoryEntry) error
	GetHistory(limit int) ([]domain.HistoryEntry, error)
	ClearHistory() error
}

// upgrade accepts trees of the current layout and stamps unversioned ones.
func upgrade(ws *domain.Workspace) error {
	switch {
	case ws.Version == 0:
		ws.Version = domain.WorkspaceVersion
	case ws.Version > domain.WorkspaceVersion:
		return fmt.Errorf("workspace %q has version %d: %w", ws.Name, ws.Version, ErrUnsupportedVersion)
	}
	return nil
}

// prepend puts entry in front of list and trims the result to limit.
func prepend(list []domain.HistoryEntry, entry domain.HistoryEntry, limit int) []domain.HistoryEntry {
	if limit < 1 {
		limit = DefaultMaxHistory
	}
	out := make([]domain.HistoryEntry, 0, min(len(list)+1, limit))
	out = append(out, entry)
	for _, e := range list {
		if len(out) == limit {
			break
		}
		out = append(out, e)
	}
	return out
}

// head returns at most limit entries; limit below one means all.
func head(list []domain.HistoryEntry, limit int) []domain.HistoryEntry {
	if limit > 0 && limit < len(list) {
		return list[:limit]
	}
	return list
}

func notFound(name string) error {
	return fmt.Errorf("workspace %q: %w", name, ErrNotFound)
}
