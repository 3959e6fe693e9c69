// Package heap implements the allocator/heap component (spec §4.C): it
// allocates typed object records and resolves an opaque object handle back
// to the key/value bytes it was allocated with. Tables and tasks never see
// the backing storage directly, only ObjectRef handles.
package heap

import (
	"fmt"
	"sync"

	"github.com/cuemby/grainstore/pkg/types"
)

// ObjectRef is an opaque, freely cloneable handle returned by the
// allocator. It must be resolved through the Allocator that produced it
// before the underlying bytes can be read.
type ObjectRef struct {
	id uint64
}

// Valid reports whether the handle was ever produced by an Allocator
// (the zero value is never valid).
func (r ObjectRef) Valid() bool { return r.id != 0 }

type record struct {
	tenant types.TenantId
	table  types.TableId
	key    []byte
	value  []byte
}

// Allocator owns the backing storage for every object in a deployment. It
// is concurrency-safe and shared across every worker core.
type Allocator struct {
	mu     sync.RWMutex
	objs   map[uint64]*record
	nextID uint64
}

// New returns an empty Allocator.
func New() *Allocator {
	return &Allocator{objs: make(map[uint64]*record)}
}

// Object allocates a record containing both key and value in one step.
// Used by native put and by the replica client when seeding its local
// table; an extension's Put goes through Raw and Freeze instead.
func (a *Allocator) Object(tenant types.TenantId, table types.TableId, key, value []byte) (ObjectRef, bool) {
	k := append([]byte(nil), key...)
	v := append([]byte(nil), value...)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.objs[id] = &record{tenant: tenant, table: table, key: k, value: v}
	return ObjectRef{id: id}, true
}

// WriteBuffer is an uninitialized value region the caller fills before
// calling Freeze. It is not visible to Resolve until frozen.
type WriteBuffer struct {
	tenant types.TenantId
	table  types.TableId
	key    []byte
	Value  []byte
	frozen bool
}

// Raw allocates an uninitialized value region of length valLen for the
// given key. The caller writes into Value and then calls Freeze.
func (a *Allocator) Raw(tenant types.TenantId, table types.TableId, key []byte, valLen int) (*WriteBuffer, bool) {
	if valLen < 0 {
		return nil, false
	}
	k := append([]byte(nil), key...)
	return &WriteBuffer{tenant: tenant, table: table, key: k, Value: make([]byte, valLen)}, true
}

// Table reports which table a WriteBuffer was allocated against, needed by
// callers (the request context) that only hold the buffer.
func (b *WriteBuffer) Table() types.TableId { return b.table }

// Key returns the key the buffer was allocated for.
func (b *WriteBuffer) Key() []byte { return b.key }

// Freeze converts a filled WriteBuffer into a resolvable object, returning
// the table it belongs to and its handle. A buffer can only be frozen
// once.
func (a *Allocator) Freeze(b *WriteBuffer) (types.TableId, ObjectRef, error) {
	if b == nil {
		return 0, ObjectRef{}, fmt.Errorf("heap: freeze of nil write buffer")
	}
	if b.frozen {
		return 0, ObjectRef{}, fmt.Errorf("heap: write buffer already frozen")
	}
	b.frozen = true

	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.objs[id] = &record{tenant: b.tenant, table: b.table, key: b.key, value: b.Value}
	return b.table, ObjectRef{id: id}, nil
}

// Len returns the number of live objects, for metrics.
func (a *Allocator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.objs)
}

// Resolve returns the key and value bytes behind a handle without copying.
// Callers must not mutate the returned slices.
func (a *Allocator) Resolve(ref ObjectRef) (key, value []byte, ok bool) {
	if !ref.Valid() {
		return nil, nil, false
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, found := a.objs[ref.id]
	if !found {
		return nil, nil, false
	}
	return rec.key, rec.value, true
}
