// Package tenant implements the tenant record and the sharded tenant
// registry described in spec §3 and §4.A: a fixed array of read/write
// locked buckets, selected by the low byte of the tenant id, so that each
// RPC takes one short read-lock instead of contending on a single map.
package tenant

import (
	"sync"

	"github.com/cuemby/grainstore/pkg/table"
	"github.com/cuemby/grainstore/pkg/types"
)

// Tenant is an isolation unit: it owns a set of tables and a set of
// extension names it is authorized to invoke. Tables are created once and
// not removed; extension authorization may grow over a tenant's lifetime
// (spec §3, §9 decision 4) but existing authorizations are never revoked
// out from under an in-flight task.
type Tenant struct {
	ID types.TenantId

	tablesMu sync.RWMutex
	tables   map[types.TableId]*table.Table

	extMu sync.RWMutex
	exts  map[string]bool
}

// New returns a tenant with no tables and no extension authorizations.
func New(id types.TenantId) *Tenant {
	return &Tenant{
		ID:     id,
		tables: make(map[types.TableId]*table.Table),
		exts:   make(map[string]bool),
	}
}

// CreateTable adds a table to the tenant, overwriting any existing table
// with the same id: re-creating an id replaces it with a new, empty table
// and the old table's entries are no longer reachable through the tenant.
func (t *Tenant) CreateTable(id types.TableId) *table.Table {
	tbl := table.New(id)
	t.tablesMu.Lock()
	t.tables[id] = tbl
	t.tablesMu.Unlock()
	return tbl
}

// TableCount returns the number of tables the tenant owns, for metrics.
func (t *Tenant) TableCount() int {
	t.tablesMu.RLock()
	defer t.tablesMu.RUnlock()
	return len(t.tables)
}

// GetTable returns the table with the given id, if the tenant owns one.
func (t *Tenant) GetTable(id types.TableId) (*table.Table, bool) {
	t.tablesMu.RLock()
	defer t.tablesMu.RUnlock()
	tbl, ok := t.tables[id]
	return tbl, ok
}

// Authorize grants the tenant permission to invoke the named extension.
func (t *Tenant) Authorize(name string) {
	t.extMu.Lock()
	t.exts[name] = true
	t.extMu.Unlock()
}

// Revoke removes the tenant's authorization for the named extension.
// In-flight container tasks already holding a LoadedExtension handle are
// unaffected; only future invoke dispatch is rejected (spec §9 decision 4).
func (t *Tenant) Revoke(name string) {
	t.extMu.Lock()
	delete(t.exts, name)
	t.extMu.Unlock()
}

// Authorized reports whether the tenant may invoke the named extension.
func (t *Tenant) Authorized(name string) bool {
	t.extMu.RLock()
	defer t.extMu.RUnlock()
	return t.exts[name]
}

const defaultShardCount = 32

// Registry is the sharded TenantId → *Tenant map (spec §4.A).
type Registry struct {
	shards []*shard
	mask   uint64
}

type shard struct {
	mu sync.RWMutex
	m  map[types.TenantId]*Tenant
}

// NewRegistry returns a registry with shardCount buckets. shardCount must
// be a power of two; 0 selects the default (32).
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	if shardCount&(shardCount-1) != 0 {
		panic("tenant: shard count must be a power of two")
	}
	shards := make([]*shard, shardCount)
	for i := range shards {
		shards[i] = &shard{m: make(map[types.TenantId]*Tenant)}
	}
	return &Registry{shards: shards, mask: uint64(shardCount - 1)}
}

func (r *Registry) shardFor(id types.TenantId) *shard {
	return r.shards[uint64(id)&0xff&r.mask]
}

// Get returns the tenant with the given id, if one has been inserted.
func (r *Registry) Get(id types.TenantId) (*Tenant, bool) {
	s := r.shardFor(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.m[id]
	return t, ok
}

// Insert adds or overwrites the tenant under its own id.
func (r *Registry) Insert(t *Tenant) {
	s := r.shardFor(t.ID)
	s.mu.Lock()
	s.m[t.ID] = t
	s.mu.Unlock()
}

// Len returns the total number of tenants across all shards, for metrics.
func (r *Registry) Len() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.m)
		s.mu.RUnlock()
	}
	return total
}

// ForEach calls fn once for every tenant currently registered, across all
// shards. fn must not call back into the registry (Insert/Get would
// deadlock on the shard's own lock). Used by a metrics Sampler to total
// per-tenant counts (tables, objects, extensions) into one Snapshot.
func (r *Registry) ForEach(fn func(*Tenant)) {
	for _, s := range r.shards {
		s.mu.RLock()
		tenants := make([]*Tenant, 0, len(s.m))
		for _, t := range s.m {
			tenants = append(tenants, t)
		}
		s.mu.RUnlock()
		for _, t := range tenants {
			fn(t)
		}
	}
}
