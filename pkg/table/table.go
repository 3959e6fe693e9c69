// Package table implements the concurrent key→object map described in spec
// §4.B: wait-free-for-readers Get, atomically-published Put. The heap
// component owns the actual bytes; a table only holds handles.
package table

import (
	"sync"

	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/types"
)

// Table is a single tenant-scoped key→ObjectRef map.
type Table struct {
	ID types.TableId

	mu      sync.RWMutex
	entries map[string]heap.ObjectRef
}

// New returns an empty table with the given id.
func New(id types.TableId) *Table {
	return &Table{ID: id, entries: make(map[string]heap.ObjectRef)}
}

// Get looks up key, returning the most recently published ObjectRef.
func (t *Table) Get(key []byte) (heap.ObjectRef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ref, ok := t.entries[string(key)]
	return ref, ok
}

// Put atomically publishes ref under key, replacing any prior value. A
// concurrent Get either observes the old or the new ref, never a partial
// one, because ObjectRef is an immutable handle.
func (t *Table) Put(key []byte, ref heap.ObjectRef) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[string(key)] = ref
}

// Len returns the number of live keys, for metrics and tests.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
