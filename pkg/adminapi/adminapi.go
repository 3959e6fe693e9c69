// Package adminapi is the in-process control plane: create tenants and
// tables, load and share extensions, and authorize a tenant to invoke a
// named extension. The core itself never exposes admin operations over
// the wire (spec §1's "out of scope" list has no admin RPC); these are
// the Go-level calls cmd/grainstore-server's CLI issues directly against
// an in-process registry/extension manager, replacing the teacher's
// gRPC+mTLS cluster API (dropped — see DESIGN.md).
package adminapi

import (
	"fmt"

	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/log"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/google/uuid"
)

// API wraps the tenant registry and extension manager with the handful
// of administrative operations a deployment needs at startup or during
// reconfiguration.
type API struct {
	tenants    *tenant.Registry
	extensions *extension.Manager
}

// New builds an admin API over the given registry and extension manager.
func New(tenants *tenant.Registry, extensions *extension.Manager) *API {
	return &API{tenants: tenants, extensions: extensions}
}

// CreateTenant registers a new tenant. Returns an error if the tenant
// already exists.
func (a *API) CreateTenant(id types.TenantId) error {
	corr := uuid.New()
	logger := log.WithComponent("adminapi")
	if _, ok := a.tenants.Get(id); ok {
		return fmt.Errorf("adminapi: tenant %d already exists", id)
	}
	a.tenants.Insert(tenant.New(id))
	logger.Info().Str("correlation_id", corr.String()).Uint64("tenant", uint64(id)).Msg("tenant created")
	return nil
}

// CreateTable creates (or replaces) a table under an existing tenant.
func (a *API) CreateTable(tenantID types.TenantId, tableID types.TableId) error {
	corr := uuid.New()
	logger := log.WithComponent("adminapi")
	t, ok := a.tenants.Get(tenantID)
	if !ok {
		return fmt.Errorf("adminapi: tenant %d does not exist", tenantID)
	}
	t.CreateTable(tableID)
	logger.Info().Str("correlation_id", corr.String()).Uint64("tenant", uint64(tenantID)).Uint64("table", uint64(tableID)).Msg("table created")
	return nil
}

// LoadExtension loads an extension from path under (tenant, name) and
// authorizes the tenant to invoke it. These two steps are performed
// together here because an unauthorized-but-loaded extension has no
// observable effect in this core — dispatch always checks authorization
// first (spec §4.I) — so there is no use case for loading without
// authorizing.
func (a *API) LoadExtension(tenantID types.TenantId, path, name string) error {
	corr := uuid.New()
	logger := log.WithComponent("adminapi")
	t, ok := a.tenants.Get(tenantID)
	if !ok {
		return fmt.Errorf("adminapi: tenant %d does not exist", tenantID)
	}
	loaded, err := a.extensions.Load(path, tenantID, name)
	if err != nil {
		return fmt.Errorf("adminapi: load extension: %w", err)
	}
	if !loaded {
		return fmt.Errorf("adminapi: unknown extension path %q", path)
	}
	t.Authorize(name)
	logger.Info().Str("correlation_id", corr.String()).Uint64("tenant", uint64(tenantID)).Str("name", name).Msg("extension loaded")
	return nil
}

// ShareExtension shares an already-loaded extension from one tenant to
// another and authorizes the recipient (spec §9 "shared mutable
// extensions").
func (a *API) ShareExtension(from, to types.TenantId, name string) error {
	corr := uuid.New()
	logger := log.WithComponent("adminapi")
	toTenant, ok := a.tenants.Get(to)
	if !ok {
		return fmt.Errorf("adminapi: tenant %d does not exist", to)
	}
	if !a.extensions.Share(from, to, name) {
		return fmt.Errorf("adminapi: tenant %d has no extension %q loaded", from, name)
	}
	toTenant.Authorize(name)
	logger.Info().Str("correlation_id", corr.String()).Uint64("from", uint64(from)).Uint64("to", uint64(to)).Str("name", name).Msg("extension shared")
	return nil
}

// Authorize grants an already-loaded extension's name to a tenant
// without re-loading it — used for the revocation-recovery case (DESIGN
// decision on Open Question iv): reinstating authorization after an
// administrator has revoked and now wants to restore it, without paying
// the cost of Load again.
func (a *API) Authorize(tenantID types.TenantId, name string) error {
	t, ok := a.tenants.Get(tenantID)
	if !ok {
		return fmt.Errorf("adminapi: tenant %d does not exist", tenantID)
	}
	t.Authorize(name)
	return nil
}

// Revoke removes a tenant's authorization for an extension. In-flight
// tasks already dispatched continue to completion; only new invokes are
// affected (spec Open Question iv decision, recorded in SPEC_FULL.md).
func (a *API) Revoke(tenantID types.TenantId, name string) error {
	t, ok := a.tenants.Get(tenantID)
	if !ok {
		return fmt.Errorf("adminapi: tenant %d does not exist", tenantID)
	}
	t.Revoke(name)
	return nil
}
