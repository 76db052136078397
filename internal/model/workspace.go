package model

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	apperrors "github.com/shhac/wirebench/internal/errors"
)

// DefaultCollectionName names the collection created for a new workspace.
const DefaultCollectionName = "Default"

// Workspace owns the collections and, through them, every tab. A single
// lock guards membership so a tab is always in exactly one collection.
type Workspace struct {
	mu sync.RWMutex
	n  notifier

	name        string
	collections []*Collection

	release func(*Tab)

	// moveFault runs between the remove and insert steps of MoveTab.
	moveFault func() error
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithName sets the persistence name of the workspace.
func WithName(name string) Option {
	return func(w *Workspace) { w.name = name }
}

// WithTabReleaser registers fn to run for every tab that is closed or
// discarded, after it has left the workspace.
func WithTabReleaser(fn func(*Tab)) Option {
	return func(w *Workspace) { w.release = fn }
}

// NewWorkspace returns a workspace holding the default collection.
func NewWorkspace(opts ...Option) *Workspace {
	w := newBareWorkspace(opts...)
	w.collections = append(w.collections, w.newCollection("", DefaultCollectionName))
	return w
}

func newBareWorkspace(opts ...Option) *Workspace {
	w := &Workspace{name: "default"}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Subscribe registers an observer for FieldCollections changes.
func (w *Workspace) Subscribe(fn Observer) (unsubscribe func()) {
	return w.n.Subscribe(fn)
}

// Name returns the persistence name.
func (w *Workspace) Name() string {
	return w.name
}

// SetTabReleaser replaces the release hook.
func (w *Workspace) SetTabReleaser(fn func(*Tab)) {
	w.mu.Lock()
	w.release = fn
	w.mu.Unlock()
}

// Collections returns the collections in order.
func (w *Workspace) Collections() []*Collection {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return slices.Clone(w.collections)
}

// Collection finds a collection by id.
func (w *Workspace) Collection(id string) *Collection {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.collections {
		if c.id == id {
			return c
		}
	}
	return nil
}

// CollectionByName finds a collection by case-insensitive name.
func (w *Workspace) CollectionByName(name string) *Collection {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.byNameLocked(name, nil)
}

// FindTab finds a tab by id in any collection.
func (w *Workspace) FindTab(id string) *Tab {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, c := range w.collections {
		for _, t := range c.tabs {
			if t.id == id {
				return t
			}
		}
	}
	return nil
}

// CreateCollection appends a new empty collection. Names are unique
// across the workspace, ignoring case.
func (w *Workspace) CreateCollection(name string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.InvalidInput("collection.create", "name must not be empty")
	}
	var c *Collection
	err := w.mutate(func(p *pending) error {
		if w.byNameLocked(name, nil) != nil {
			return apperrors.DuplicateName("collection.create", name)
		}
		c = w.newCollection("", name)
		w.collections = append(w.collections, c)
		p.workspace = true
		return nil
	})
	return c, err
}

// DeleteCollection removes c. A collection that still has tabs is only
// removed when discardTabs is set; its tabs are then released.
func (w *Workspace) DeleteCollection(c *Collection, discardTabs bool) error {
	return w.mutate(func(p *pending) error {
		i := slices.Index(w.collections, c)
		if i < 0 {
			return apperrors.InvalidInput("collection.delete", "collection is not part of this workspace")
		}
		if len(c.tabs) > 0 && !discardTabs {
			return apperrors.InvalidState("collection.delete", "collection %q still has %d tabs", c.name, len(c.tabs))
		}
		for _, t := range c.tabs {
			t.owner = nil
			p.released = append(p.released, t)
		}
		c.tabs = nil
		c.selected = nil
		w.collections = slices.Delete(w.collections, i, i+1)
		p.workspace = true
		return nil
	})
}

// MoveTab moves t from one collection to another as a single step. If the
// insert fails the tab is put back where it was.
func (w *Workspace) MoveTab(t *Tab, from, to *Collection) error {
	return w.mutate(func(p *pending) error {
		if t == nil || from == nil || to == nil {
			return apperrors.InvalidInput("tab.move", "tab, source and destination are required")
		}
		if t.owner != from {
			return apperrors.InvalidInput("tab.move", "tab is not in collection %q", from.name)
		}
		if !slices.Contains(w.collections, to) {
			return apperrors.InvalidInput("tab.move", "destination is not part of this workspace")
		}
		if from == to {
			return nil
		}

		idx := slices.Index(from.tabs, t)
		oldSel := from.selected
		from.tabs = slices.Delete(from.tabs, idx, idx+1)
		t.owner = nil

		rollback := func() {
			from.tabs = slices.Insert(from.tabs, idx, t)
			t.owner = from
			from.selected = oldSel
		}
		if ferr := w.runMoveFault(); ferr != nil {
			rollback()
			return fmt.Errorf("move tab: %w", ferr)
		}

		to.tabs = append(to.tabs, t)
		t.owner = to
		if from.selected == t {
			from.selected = neighbour(from.tabs, idx)
		}
		prevTo := to.selected
		to.selected = t

		p.collections = append(p.collections, from, to)
		p.selection = append(p.selection, t)
		if prevTo != nil {
			p.selection = append(p.selection, prevTo)
		}
		if from.selected != nil && from.selected != oldSel {
			p.selection = append(p.selection, from.selected)
		}
		return nil
	})
}

func (w *Workspace) runMoveFault() (err error) {
	if w.moveFault == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.moveFault()
}

func (w *Workspace) newCollection(id, name string) *Collection {
	if id == "" {
		id = uuid.NewString()
	}
	return &Collection{space: w, id: id, name: name}
}

func (w *Workspace) byNameLocked(name string, except *Collection) *Collection {
	for _, c := range w.collections {
		if c != except && strings.EqualFold(c.name, name) {
			return c
		}
	}
	return nil
}

// pending collects the notifications of one structural change so they can
// be delivered after the workspace lock is released.
type pending struct {
	workspace   bool
	collections []*Collection
	selection   []*Tab
	renamed     []*Collection
	released    []*Tab
}

func (w *Workspace) mutate(fn func(p *pending) error) error {
	var p pending
	w.mu.Lock()
	err := fn(&p)
	release := w.release
	w.mu.Unlock()
	if err != nil {
		return err
	}

	if p.workspace {
		w.n.publish([]Field{FieldCollections})
	}
	for _, c := range slices.Compact(p.collections) {
		c.n.publish([]Field{FieldTabs})
	}
	for _, c := range p.renamed {
		c.n.publish([]Field{FieldName})
	}
	for _, t := range p.selection {
		t.notifySelected()
	}
	if release != nil {
		for _, t := range p.released {
			release(t)
		}
	}
	return nil
}

// neighbour picks the tab that takes over selection after index i was
// removed: the one now at i, else the one before it.
func neighbour(tabs []*Tab, i int) *Tab {
	switch {
	case len(tabs) == 0:
		return nil
	case i < len(tabs):
		return tabs[i]
	default:
		return tabs[len(tabs)-1]
	}
}

// Collection is a named, ordered group of tabs with at most one selected.
type Collection struct {
	space *Workspace
	n     notifier

	// Guarded by space.mu.
	id       string
	name     string
	tabs     []*Tab
	selected *Tab
}

// Subscribe registers an observer for FieldName and FieldTabs changes.
func (c *Collection) Subscribe(fn Observer) (unsubscribe func()) {
	return c.n.Subscribe(fn)
}

// ID returns the persistent collection id.
func (c *Collection) ID() string { return c.id }

func (c *Collection) Name() string {
	c.space.mu.RLock()
	defer c.space.mu.RUnlock()
	return c.name
}

// Rename changes the name. Renaming to the current name, in any case,
// always succeeds.
func (c *Collection) Rename(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.InvalidInput("collection.rename", "name must not be empty")
	}
	return c.space.mutate(func(p *pending) error {
		if c.space.byNameLocked(name, c) != nil {
			return apperrors.DuplicateName("collection.rename", name)
		}
		if c.name != name {
			c.name = name
			p.renamed = append(p.renamed, c)
		}
		return nil
	})
}

// Tabs returns the tabs in order.
func (c *Collection) Tabs() []*Tab {
	c.space.mu.RLock()
	defer c.space.mu.RUnlock()
	return slices.Clone(c.tabs)
}

// Len returns the number of tabs.
func (c *Collection) Len() int {
	c.space.mu.RLock()
	defer c.space.mu.RUnlock()
	return len(c.tabs)
}

// Find returns the tab with the given id, or nil.
func (c *Collection) Find(id string) *Tab {
	c.space.mu.RLock()
	defer c.space.mu.RUnlock()
	for _, t := range c.tabs {
		if t.id == id {
			return t
		}
	}
	return nil
}

// Selected returns the selected tab, or nil.
func (c *Collection) Selected() *Tab {
	c.space.mu.RLock()
	defer c.space.mu.RUnlock()
	return c.selected
}

// CreateTab appends a tab with a fresh id and an empty record of the
// given kind, and selects it.
func (c *Collection) CreateTab(kind Kind) (*Tab, error) {
	if kind < KindHTTP || kind > KindGRPC {
		return nil, apperrors.InvalidInput("tab.create", "unknown tab kind %d", int(kind))
	}
	t := newTab(c.space, "", kind, nil)
	err := c.space.mutate(func(p *pending) error {
		if !slices.Contains(c.space.collections, c) {
			return apperrors.InvalidState("tab.create", "collection %q was deleted", c.name)
		}
		c.tabs = append(c.tabs, t)
		t.owner = c
		prev := c.selected
		c.selected = t
		p.collections = append(p.collections, c)
		p.selection = append(p.selection, t)
		if prev != nil {
			p.selection = append(p.selection, prev)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Select makes t the only selected tab of the collection.
func (c *Collection) Select(t *Tab) error {
	return c.space.mutate(func(p *pending) error {
		if t.owner != c {
			return apperrors.InvalidInput("tab.select", "tab is not in collection %q", c.name)
		}
		if c.selected == t {
			return nil
		}
		if c.selected != nil {
			p.selection = append(p.selection, c.selected)
		}
		c.selected = t
		p.selection = append(p.selection, t)
		return nil
	})
}

// CloseTab removes t and releases it. If t was selected its neighbour is
// selected instead.
func (c *Collection) CloseTab(t *Tab) error {
	return c.space.mutate(func(p *pending) error {
		i := slices.Index(c.tabs, t)
		if i < 0 {
			return apperrors.InvalidInput("tab.close", "tab is not in collection %q", c.name)
		}
		c.tabs = slices.Delete(c.tabs, i, i+1)
		t.owner = nil
		if c.selected == t {
			c.selected = neighbour(c.tabs, i)
			if c.selected != nil {
				p.selection = append(p.selection, c.selected)
			}
		}
		p.collections = append(p.collections, c)
		p.selection = append(p.selection, t)
		p.released = append(p.released, t)
		return nil
	})
}
