package dispatch

import (
	"testing"

	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDispatcher(t *testing.T) (*Dispatcher, *tenant.Tenant) {
	t.Helper()
	registry := tenant.NewRegistry(0)
	tnt := tenant.New(1)
	tnt.CreateTable(1)
	registry.Insert(tnt)

	h := heap.New()
	extMgr := extension.NewManager(nil)
	extension.RegisterBuiltins(extMgr)
	ok, err := extMgr.Load(extension.BuiltinEcho, tnt.ID, "echo")
	require.NoError(t, err)
	require.True(t, ok)
	tnt.Authorize("echo")

	return New(registry, h, extMgr, 1000, 4096), tnt
}

// Validation must run in order: payload length before tenant existence
// before extension authorization (spec §4.I), so a malformed request
// against an unknown tenant is reported as malformed, not as an unknown
// tenant.
func TestDispatchValidationOrder(t *testing.T) {
	d, _ := newDispatcher(t)

	task, resp, err := d.Dispatch(&wire.Request{
		Opcode: types.OpGet, Tenant: 99, TableID: 1,
		KeyLength: 10, Payload: []byte("short"),
	})
	require.NoError(t, err)
	assert.Nil(t, task)
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusMalformedRequest, resp.Status)
}

func TestDispatchUnknownTenant(t *testing.T) {
	d, _ := newDispatcher(t)

	task, resp, err := d.Dispatch(&wire.Request{
		Opcode: types.OpGet, Tenant: 99, TableID: 1,
		KeyLength: 3, Payload: []byte("key"),
	})
	require.NoError(t, err)
	assert.Nil(t, task)
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusTenantDoesNotExist, resp.Status)
}

func TestDispatchNativeGetBuildsTask(t *testing.T) {
	d, _ := newDispatcher(t)

	task, resp, err := d.Dispatch(&wire.Request{
		Opcode: types.OpGet, Tenant: 1, TableID: 1,
		KeyLength: 3, Payload: []byte("key"),
	})
	require.NoError(t, err)
	assert.Nil(t, resp)
	require.NotNil(t, task)
}

func TestDispatchInvokeUnauthorized(t *testing.T) {
	d, tnt := newDispatcher(t)
	tnt.Revoke("echo")

	name := "echo"
	req := &wire.Request{
		Opcode: types.OpInvoke, Tenant: 1,
		NameLength: uint32(len(name)), ArgsLength: 2,
		Payload: append([]byte(name), []byte("hi")...),
	}

	task, resp, err := d.Dispatch(req)
	require.NoError(t, err)
	assert.Nil(t, task)
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusInvalidExtension, resp.Status)
}

func TestDispatchInvokeBuildsContainerTask(t *testing.T) {
	d, _ := newDispatcher(t)

	name := "echo"
	args := []byte("hello")
	req := &wire.Request{
		Opcode: types.OpInvoke, Tenant: 1,
		NameLength: uint32(len(name)), ArgsLength: uint32(len(args)),
		Payload: append([]byte(name), args...),
	}

	task, resp, err := d.Dispatch(req)
	require.NoError(t, err)
	assert.Nil(t, resp)
	require.NotNil(t, task)
}
