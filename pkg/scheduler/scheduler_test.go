package scheduler

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/cuemby/grainstore/pkg/dispatch"
	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReceiver hands back one batch of requests, then nothing.
type fakeReceiver struct {
	pending []*wire.Request
}

func (f *fakeReceiver) Receive(max int) []*wire.Request {
	if len(f.pending) == 0 {
		return nil
	}
	n := max
	if n > len(f.pending) {
		n = len(f.pending)
	}
	batch := f.pending[:n]
	f.pending = f.pending[n:]
	return batch
}

// fakeTransmitter records every response handed to it.
type fakeTransmitter struct {
	sent []*wire.Response
}

func (f *fakeTransmitter) Transmit(resp *wire.Response) {
	f.sent = append(f.sent, resp)
}

func newHarness(t *testing.T, cyclesBudget uint64) (*Scheduler, *fakeReceiver, *fakeTransmitter, *tenant.Tenant, *heap.Allocator) {
	t.Helper()

	registry := tenant.NewRegistry(0)
	tnt := tenant.New(types.TenantId(1))
	tnt.CreateTable(types.TableId(1))
	registry.Insert(tnt)

	h := heap.New()
	extMgr := extension.NewManager(nil)
	extension.RegisterBuiltins(extMgr)

	ok, err := extMgr.Load(extension.BuiltinEcho, tnt.ID, "echo")
	require.NoError(t, err)
	require.True(t, ok)
	tnt.Authorize("echo")

	ok, err = extMgr.Load(extension.BuiltinSum, tnt.ID, "sum")
	require.NoError(t, err)
	require.True(t, ok)
	tnt.Authorize("sum")

	d := dispatch.New(registry, h, extMgr, cyclesBudget, 4096)
	recv := &fakeReceiver{}
	xmit := &fakeTransmitter{}
	sched := New(d, recv, xmit, nil, Config{
		ReceiveBatch: 16,
		TickBudget:   100000,
		KeyLen:       4,
		ValLen:       8,
		TickInterval: time.Millisecond,
	})
	return sched, recv, xmit, tnt, h
}

func putValue(t *testing.T, tnt *tenant.Tenant, h *heap.Allocator, tableID types.TableId, key string, value uint64) {
	t.Helper()
	tbl, ok := tnt.GetTable(tableID)
	require.True(t, ok)
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, value)
	ref, ok := h.Object(tnt.ID, tableID, []byte(key), buf)
	require.True(t, ok)
	tbl.Put([]byte(key), ref)
}

func TestSchedulerNativeGetPresent(t *testing.T) {
	sched, recv, xmit, tnt, h := newHarness(t, 1000)
	putValue(t, tnt, h, 1, "key", 7)

	recv.pending = []*wire.Request{{
		Opcode: types.OpGet, Stamp: 1, Tenant: 1, TableID: 1,
		KeyLength: 3, Payload: []byte("key"),
	}}

	sched.Tick()

	require.Len(t, xmit.sent, 1)
	assert.Equal(t, types.StatusOk, xmit.sent[0].Status)
	assert.EqualValues(t, binary.BigEndian.Uint64(xmit.sent[0].Payload), 7)
}

func TestSchedulerNativeGetAbsent(t *testing.T) {
	sched, recv, xmit, _, _ := newHarness(t, 1000)

	recv.pending = []*wire.Request{{
		Opcode: types.OpGet, Stamp: 2, Tenant: 1, TableID: 1,
		KeyLength: 7, Payload: []byte("missing"),
	}}

	sched.Tick()

	require.Len(t, xmit.sent, 1)
	assert.Equal(t, types.StatusObjectDoesNotExist, xmit.sent[0].Status)
}

func TestSchedulerNativePutThenGet(t *testing.T) {
	sched, recv, xmit, _, _ := newHarness(t, 1000)

	value := make([]byte, 8)
	binary.BigEndian.PutUint64(value, 99)
	putPayload := append([]byte("key"), value...)

	recv.pending = []*wire.Request{{
		Opcode: types.OpPut, Stamp: 3, Tenant: 1, TableID: 1,
		KeyLength: 3, Payload: putPayload,
	}}
	sched.Tick()
	require.Len(t, xmit.sent, 1)
	require.Equal(t, types.StatusOk, xmit.sent[0].Status)

	recv.pending = []*wire.Request{{
		Opcode: types.OpGet, Stamp: 4, Tenant: 1, TableID: 1,
		KeyLength: 3, Payload: []byte("key"),
	}}
	sched.Tick()
	require.Len(t, xmit.sent, 2)
	assert.Equal(t, types.StatusOk, xmit.sent[1].Status)
	assert.EqualValues(t, binary.BigEndian.Uint64(xmit.sent[1].Payload), 99)
}

func invokeRequest(stamp uint64, name string, args []byte) *wire.Request {
	payload := append([]byte(name), args...)
	return &wire.Request{
		Opcode: types.OpInvoke, Stamp: stamp, Tenant: 1,
		NameLength: uint32(len(name)), ArgsLength: uint32(len(args)),
		Payload: payload,
	}
}

func TestSchedulerInvokeWithinBudget(t *testing.T) {
	sched, recv, xmit, _, _ := newHarness(t, 1000)

	recv.pending = []*wire.Request{invokeRequest(5, "echo", []byte("hello"))}
	sched.Tick()

	require.Len(t, xmit.sent, 1)
	assert.Equal(t, types.StatusOk, xmit.sent[0].Status)
	assert.Equal(t, "hello", string(xmit.sent[0].Payload))
}

func sumArgs(tableID uint64, keys []string) []byte {
	buf := make([]byte, 12)
	binary.BigEndian.PutUint64(buf[0:8], tableID)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(keys)))
	for _, k := range keys {
		buf = append(buf, []byte(k)...)
	}
	return buf
}

func TestSchedulerInvokeExceedsBudgetPushesBack(t *testing.T) {
	// cyclesPerKey is 10; a budget of 15 completes after the first key's
	// cost (10) but overruns on the second (20 > 15), forcing pushback
	// before the scan finishes.
	sched, recv, xmit, tnt, h := newHarness(t, 15)

	keys := []string{"key0", "key1", "key2", "key3"}
	for i, k := range keys {
		putValue(t, tnt, h, 1, k, uint64(i+1))
	}

	recv.pending = []*wire.Request{invokeRequest(6, "sum", sumArgs(1, keys))}
	sched.Tick()

	require.Len(t, xmit.sent, 1)
	resp := xmit.sent[0]
	assert.Equal(t, types.StatusPushback, resp.Status)

	reads, writes, err := wire.DecodePushback(resp.Payload, 4, 8)
	require.NoError(t, err)
	assert.Empty(t, writes)
	assert.NotEmpty(t, reads)
	assert.LessOrEqual(t, len(reads), len(keys))
}

func TestSchedulerInvokeUnauthorizedExtension(t *testing.T) {
	sched, recv, xmit, _, _ := newHarness(t, 1000)

	recv.pending = []*wire.Request{invokeRequest(7, "nope", nil)}
	sched.Tick()

	require.Len(t, xmit.sent, 1)
	assert.Equal(t, types.StatusInvalidExtension, xmit.sent[0].Status)
}
