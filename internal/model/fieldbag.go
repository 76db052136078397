package model

import (
	"iter"

	apperrors "github.com/shhac/wirebench/internal/errors"
)

// Entry is one row of a FieldBag.
type Entry struct {
	Key     string
	Value   string
	Enabled bool
}

// FieldBag is an ordered list of key/value rows used for headers, query
// parameters and gRPC metadata. Only the last row may have an empty key.
// Duplicate keys are kept in order and never merged.
type FieldBag struct {
	g         *guard
	n         notifier
	entries   []Entry
	autoBlank bool

	// derive runs under the owner's lock after every change so derived
	// fields on the owner are fresh before anyone is notified.
	derive func(e *emitter)
}

// NewFieldBag returns an empty bag. With autoBlank the bag always ends in
// exactly one empty-key row that acts as the add-new-row affordance.
func NewFieldBag(autoBlank bool) *FieldBag {
	b := &FieldBag{g: &guard{}, autoBlank: autoBlank}
	b.ensureBlank()
	return b
}

func newOwnedBag(g *guard, autoBlank bool, derive func(e *emitter)) *FieldBag {
	b := &FieldBag{g: g, autoBlank: autoBlank, derive: derive}
	b.ensureBlank()
	return b
}

// Subscribe registers an observer for FieldEntries changes.
func (b *FieldBag) Subscribe(fn Observer) (unsubscribe func()) {
	return b.n.Subscribe(fn)
}

// Len returns the number of rows including the trailing blank row.
func (b *FieldBag) Len() int {
	b.g.mu.RLock()
	defer b.g.mu.RUnlock()
	return len(b.entries)
}

// Entries returns a copy of all rows.
func (b *FieldBag) Entries() []Entry {
	b.g.mu.RLock()
	defer b.g.mu.RUnlock()
	return append([]Entry(nil), b.entries...)
}

// EnabledEntries yields, in order, the rows that are enabled and have a
// key. The sequence reads a fresh copy each time it is ranged over.
func (b *FieldBag) EnabledEntries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, en := range b.Entries() {
			if en.Enabled && en.Key != "" {
				if !yield(en) {
					return
				}
			}
		}
	}
}

// Add makes sure an empty-key row exists and returns its index.
func (b *FieldBag) Add() int {
	var idx int
	_ = b.write(func() error {
		if n := len(b.entries); n > 0 && b.entries[n-1].Key == "" {
			idx = n - 1
			return nil
		}
		b.entries = append(b.entries, Entry{Enabled: true})
		idx = len(b.entries) - 1
		return nil
	})
	return idx
}

// Append inserts a keyed row ahead of the trailing blank row.
func (b *FieldBag) Append(key, value string, enabled bool) error {
	if key == "" {
		return apperrors.InvalidInput("fieldbag.append", "key must not be empty")
	}
	return b.write(func() error {
		b.insertKeyed(Entry{Key: key, Value: value, Enabled: enabled})
		return nil
	})
}

// SetKey changes the key of row i. Clearing the key is only allowed on
// the last row.
func (b *FieldBag) SetKey(i int, key string) error {
	return b.write(func() error {
		if err := b.checkIndex("fieldbag.set_key", i); err != nil {
			return err
		}
		if key == "" && i != len(b.entries)-1 {
			return apperrors.InvalidInput("fieldbag.set_key", "only the last row may have an empty key")
		}
		b.entries[i].Key = key
		return nil
	})
}

// SetValue changes the value of row i.
func (b *FieldBag) SetValue(i int, value string) error {
	return b.write(func() error {
		if err := b.checkIndex("fieldbag.set_value", i); err != nil {
			return err
		}
		b.entries[i].Value = value
		return nil
	})
}

// SetEnabled toggles row i.
func (b *FieldBag) SetEnabled(i int, enabled bool) error {
	return b.write(func() error {
		if err := b.checkIndex("fieldbag.set_enabled", i); err != nil {
			return err
		}
		b.entries[i].Enabled = enabled
		return nil
	})
}

// Remove deletes row i.
func (b *FieldBag) Remove(i int) error {
	return b.write(func() error {
		if err := b.checkIndex("fieldbag.remove", i); err != nil {
			return err
		}
		b.entries = append(b.entries[:i], b.entries[i+1:]...)
		return nil
	})
}

func (b *FieldBag) write(fn func() error) error {
	var e emitter
	b.g.mu.Lock()
	if err := fn(); err != nil {
		b.g.mu.Unlock()
		return err
	}
	b.ensureBlank()
	if b.derive != nil {
		b.derive(&e)
	}
	b.g.pub.Lock()
	b.g.mu.Unlock()
	defer b.g.pub.Unlock()
	b.n.publish([]Field{FieldEntries})
	b.g.publish(e.fields)
	return nil
}

func (b *FieldBag) checkIndex(op string, i int) error {
	if i < 0 || i >= len(b.entries) {
		return apperrors.InvalidInput(op, "row %d out of range [0,%d)", i, len(b.entries))
	}
	return nil
}

// ensureBlank keeps exactly one trailing empty-key row on autoBlank bags.
// Callers hold the write lock.
func (b *FieldBag) ensureBlank() {
	if !b.autoBlank {
		return
	}
	if n := len(b.entries); n == 0 || b.entries[n-1].Key != "" {
		b.entries = append(b.entries, Entry{Enabled: true})
	}
}

func (b *FieldBag) insertKeyed(en Entry) {
	n := len(b.entries)
	if n > 0 && b.entries[n-1].Key == "" {
		b.entries = append(b.entries[:n-1], en, b.entries[n-1])
		return
	}
	b.entries = append(b.entries, en)
}

// enabledLocked is EnabledEntries for callers already holding the lock.
func (b *FieldBag) enabledLocked() []Entry {
	var out []Entry
	for _, en := range b.entries {
		if en.Enabled && en.Key != "" {
			out = append(out, en)
		}
	}
	return out
}

// load replaces all rows without notifying. Used while restoring, before
// the bag is reachable by observers.
func (b *FieldBag) load(rows []Entry) {
	b.entries = b.entries[:0]
	for _, en := range rows {
		if en.Key == "" {
			continue
		}
		b.entries = append(b.entries, en)
	}
	b.ensureBlank()
}
