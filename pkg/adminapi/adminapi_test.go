package adminapi

import (
	"testing"

	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAPI() (*API, *tenant.Registry, *extension.Manager) {
	registry := tenant.NewRegistry(0)
	extMgr := extension.NewManager(nil)
	extension.RegisterBuiltins(extMgr)
	return New(registry, extMgr), registry, extMgr
}

func TestCreateTenantAndTable(t *testing.T) {
	api, registry, _ := newTestAPI()

	require.NoError(t, api.CreateTenant(1))
	require.Error(t, api.CreateTenant(1), "duplicate tenant must fail")

	require.NoError(t, api.CreateTable(1, 10))
	tnt, ok := registry.Get(1)
	require.True(t, ok)
	_, ok = tnt.GetTable(10)
	assert.True(t, ok)

	require.Error(t, api.CreateTable(2, 10), "unknown tenant must fail")
}

func TestLoadExtensionAuthorizes(t *testing.T) {
	api, registry, _ := newTestAPI()
	require.NoError(t, api.CreateTenant(1))

	require.NoError(t, api.LoadExtension(1, extension.BuiltinEcho, "echo"))

	tnt, _ := registry.Get(1)
	assert.True(t, tnt.Authorized("echo"))

	require.Error(t, api.LoadExtension(1, "builtin:nonsense", "nope"))
}

func TestShareExtension(t *testing.T) {
	api, registry, _ := newTestAPI()
	require.NoError(t, api.CreateTenant(1))
	require.NoError(t, api.CreateTenant(2))
	require.NoError(t, api.LoadExtension(1, extension.BuiltinSum, "sum"))

	require.NoError(t, api.ShareExtension(1, 2, "sum"))

	recipient, _ := registry.Get(2)
	assert.True(t, recipient.Authorized("sum"))

	require.Error(t, api.ShareExtension(1, 2, "missing"), "sharing an unloaded extension must fail")
}

func TestAuthorizeAndRevoke(t *testing.T) {
	api, registry, _ := newTestAPI()
	require.NoError(t, api.CreateTenant(1))

	require.NoError(t, api.Authorize(1, "echo"))
	tnt, _ := registry.Get(1)
	assert.True(t, tnt.Authorized("echo"))

	require.NoError(t, api.Revoke(1, "echo"))
	assert.False(t, tnt.Authorized("echo"))

	require.Error(t, api.Authorize(99, "echo"), "unknown tenant must fail")
}
