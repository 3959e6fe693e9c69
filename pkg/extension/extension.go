// Package extension implements the extension manager (spec §4.D): it owns
// every loaded extension, keyed per tenant, and is the only component that
// dereferences an extension's capability interface (Init/Next, per spec
// §6's "init(context)"/"next(context)"). Grounded on
// original_source/db/src/master.rs's ExtensionManager usage and
// sandstorm/src/extension_interface.rs.
package extension

import (
	"fmt"
	"sync"

	"github.com/cuemby/grainstore/pkg/extcache"
	"github.com/cuemby/grainstore/pkg/reqcontext"
	"github.com/cuemby/grainstore/pkg/types"
)

// Invocation is the resumable step generator an extension produces from
// Init. One Next call is one cooperative slice (spec §9: "a queue of
// primitive operations consumed per slice" is one valid hand-rolling of
// this; grainstore's builtins instead keep a little per-invocation state,
// such as sum's index into its pre-read values and running total).
// cycles is how many cycles this slice consumed, charged by the container
// task against both the tick budget and the task's lifetime budget.
type Invocation interface {
	Next(ctx *reqcontext.Context) (done bool, cycles uint64, err error)
}

// LoadedExtension is the opaque callable the extension manager hands to a
// container task. Init begins a fresh invocation bound to one context; the
// same LoadedExtension can have many concurrent Invocations in flight,
// one per in-progress container task.
type LoadedExtension interface {
	Init(ctx *reqcontext.Context) (Invocation, error)
}

// Factory builds a fresh LoadedExtension for a given extension name. The
// on-disk loader format is out of scope (spec §1); grainstore resolves
// "path" to one of a small set of builtins registered at process start,
// standing in for whatever the real loader would dlopen/instantiate.
type Factory func() LoadedExtension

// Manager owns every loaded extension, keyed by (tenant, name). A
// LoadedExtension value is shared, not copied, across tenants via Share.
type Manager struct {
	mu        sync.RWMutex
	byTenant  map[types.TenantId]map[string]LoadedExtension
	factories map[string]Factory
	cache     *extcache.Cache
}

// NewManager returns an empty manager. cache may be nil (no persistent
// record of loaded extensions across restarts).
func NewManager(cache *extcache.Cache) *Manager {
	return &Manager{
		byTenant:  make(map[types.TenantId]map[string]LoadedExtension),
		factories: make(map[string]Factory),
		cache:     cache,
	}
}

// Register makes a builtin extension available to be Load-ed by path
// name. Call during process startup, before serving traffic.
func (m *Manager) Register(path string, factory Factory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[path] = factory
}

// Load instantiates the extension at path and installs it under
// (tenant, name). Returns false if path does not name a registered
// builtin.
func (m *Manager) Load(path string, tenant types.TenantId, name string) (bool, error) {
	m.mu.Lock()
	factory, ok := m.factories[path]
	if !ok {
		m.mu.Unlock()
		return false, nil
	}
	ext := factory()
	if m.byTenant[tenant] == nil {
		m.byTenant[tenant] = make(map[string]LoadedExtension)
	}
	m.byTenant[tenant][name] = ext
	m.mu.Unlock()

	if m.cache != nil {
		if err := m.cache.Put(extcache.Entry{Tenant: uint64(tenant), Name: name, Path: path}); err != nil {
			return true, fmt.Errorf("extension: cache load record: %w", err)
		}
	}
	return true, nil
}

// Share installs the same LoadedExtension handle already loaded for
// fromTenant under toTenant, with no deep copy (spec §9 "shared mutable
// extensions"). Returns false if fromTenant has no such extension loaded.
func (m *Manager) Share(from, to types.TenantId, name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.byTenant[from]
	if !ok {
		return false
	}
	ext, ok := src[name]
	if !ok {
		return false
	}
	if m.byTenant[to] == nil {
		m.byTenant[to] = make(map[string]LoadedExtension)
	}
	m.byTenant[to][name] = ext
	return true
}

// Get returns the loaded extension installed for (tenant, name).
func (m *Manager) Get(tenant types.TenantId, name string) (LoadedExtension, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byName, ok := m.byTenant[tenant]
	if !ok {
		return nil, false
	}
	ext, ok := byName[name]
	return ext, ok
}

// Count returns the total number of (tenant, name) installations across
// every tenant, for metrics. A shared extension installed for N tenants
// counts N times, matching what an operator means by "extensions loaded."
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, byName := range m.byTenant {
		total += len(byName)
	}
	return total
}

// Restore re-populates the manager from a persisted extcache, re-running
// Load for every recorded entry. Call once at startup after Register.
func (m *Manager) Restore() error {
	if m.cache == nil {
		return nil
	}
	entries, err := m.cache.List()
	if err != nil {
		return fmt.Errorf("extension: restore: %w", err)
	}
	for _, e := range entries {
		if _, err := m.Load(e.Path, types.TenantId(e.Tenant), e.Name); err != nil {
			return fmt.Errorf("extension: restore %s/%s: %w", e.Path, e.Name, err)
		}
	}
	return nil
}
