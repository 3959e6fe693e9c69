package replicaclient

import (
	"encoding/binary"
	"testing"

	"github.com/cuemby/grainstore/pkg/dispatch"
	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sumArgs(tableID uint64, keys []string) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[0:8], tableID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(keys)))
	for _, k := range keys {
		buf = append(buf, []byte(k)...)
	}
	return buf
}

// TestReplayMatchesUninterruptedSum exercises spec §8 scenario 6's
// idempotence property: replaying a pushback against a local replica
// produces the same final answer an uninterrupted, unbudgeted run would.
func TestReplayMatchesUninterruptedSum(t *testing.T) {
	const tenantID = types.TenantId(1)
	const tableID = types.TableId(1)
	keys := []string{"a", "b", "c", "d"}

	// Server-side: force an early pushback with a tiny budget.
	registry := tenant.NewRegistry(0)
	tnt := tenant.New(tenantID)
	tbl := tnt.CreateTable(tableID)
	registry.Insert(tnt)

	h := heap.New()
	var want uint64
	for i, k := range keys {
		val := uint64(i + 1)
		want += val
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, val)
		ref, ok := h.Object(tenantID, tableID, []byte(k), buf)
		require.True(t, ok)
		tbl.Put([]byte(k), ref)
	}

	extMgr := extension.NewManager(nil)
	extension.RegisterBuiltins(extMgr)
	ok, err := extMgr.Load(extension.BuiltinSum, tenantID, "sum")
	require.NoError(t, err)
	require.True(t, ok)
	tnt.Authorize("sum")

	d := dispatch.New(registry, h, extMgr, 15, 4096) // cyclesPerKey=10: overruns after 2 keys

	name := "sum"
	args := sumArgs(uint64(tableID), keys)
	req := &wire.Request{
		Opcode: types.OpInvoke, Stamp: 42, Tenant: tenantID,
		NameLength: uint32(len(name)), ArgsLength: uint32(len(args)),
		Payload: append([]byte(name), args...),
	}

	task, faultResp, err := d.Dispatch(req)
	require.NoError(t, err)
	require.Nil(t, faultResp)
	require.NotNil(t, task)

	var pushback *wire.Response
	for i := 0; i < 10; i++ {
		state, _ := task.Run()
		if state == types.TaskYielded && task.PushbackReady() {
			_, pushback, err = task.Pushback(1, 8)
			require.NoError(t, err)
			break
		}
	}
	require.NotNil(t, pushback)
	assert.Equal(t, types.StatusPushback, pushback.Status)

	// Client-side: replay the pushback to completion.
	client := New()
	resp, err := client.Replay(tenantID, tableID, 42, "sum", args, pushback, 1, 8)
	require.NoError(t, err)
	require.Equal(t, types.StatusOk, resp.Status)
	require.Len(t, resp.Payload, 8)
	got := binary.BigEndian.Uint64(resp.Payload)
	assert.Equal(t, want, got)
}
