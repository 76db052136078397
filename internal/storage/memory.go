package storage

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/shhac/wirebench/internal/domain"
)

// MemoryRepository keeps workspaces and history in process. Workspaces are
// held encoded so callers never share slices with the store.
type MemoryRepository struct {
	mu         sync.RWMutex
	workspaces map[string][]byte
	history    []domain.HistoryEntry
	maxHistory int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		workspaces: make(map[string][]byte),
		maxHistory: DefaultMaxHistory,
	}
}

func (m *MemoryRepository) SaveWorkspace(workspace domain.Workspace) error {
	if err := validateWorkspaceName(workspace.Name); err != nil {
		return fmt.Errorf("invalid workspace name: %w", err)
	}
	if workspace.Version == 0 {
		workspace.Version = domain.WorkspaceVersion
	}
	data, err := json.Marshal(workspace)
	if err != nil {
		return fmt.Errorf("save workspace %q: %w", workspace.Name, err)
	}

	m.mu.Lock()
	m.workspaces[workspace.Name] = data
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) LoadWorkspace(name string) (*domain.Workspace, error) {
	m.mu.RLock()
	data, ok := m.workspaces[name]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(name)
	}

	var ws domain.Workspace
	if err := json.Unmarshal(data, &ws); err != nil {
		return nil, fmt.Errorf("load workspace %q: %w", name, err)
	}
	return &ws, nil
}

func (m *MemoryRepository) ListWorkspaces() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.workspaces)), nil
}

func (m *MemoryRepository) DeleteWorkspace(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workspaces[name]; !ok {
		return notFound(name)
	}
	delete(m.workspaces, name)
	return nil
}

func (m *MemoryRepository) AddHistoryEntry(entry domain.HistoryEntry) error {
	m.mu.Lock()
	m.history = prepend(m.history, entry, m.maxHistory)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) GetHistory(limit int) ([]domain.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(head(m.history, limit)), nil
}

func (m *MemoryRepository) ClearHistory() error {
	m.mu.Lock()
	m.history = nil
	m.mu.Unlock()
	return nil
}
