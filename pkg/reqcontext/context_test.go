package reqcontext

import (
	"testing"

	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	reads  [][2]string
	writes [][2]string
}

func (f *fakeRecorder) RecordRead(key, value []byte) {
	f.reads = append(f.reads, [2]string{string(key), string(value)})
}

func (f *fakeRecorder) RecordWrite(key, value []byte) {
	f.writes = append(f.writes, [2]string{string(key), string(value)})
}

func newTestContext(t *testing.T, payload []byte, argsOffset, argsLength int, rec RWSetRecorder) (*Context, *tenant.Tenant, *heap.Allocator) {
	t.Helper()
	tnt := tenant.New(1)
	h := heap.New()
	req := &wire.Request{Opcode: types.OpInvoke, Stamp: 1, Tenant: 1, Payload: payload}
	resp := wire.NewResponse(req)
	ctx := New(req, argsOffset, argsLength, resp, tnt, h, rec, 4096)
	return ctx, tnt, h
}

func TestArgsSlicesPayload(t *testing.T) {
	ctx, _, _ := newTestContext(t, []byte("headerARGS"), 6, 4, nil)
	assert.Equal(t, []byte("ARGS"), ctx.Args())
}

func TestArgsClampsPastPayloadEnd(t *testing.T) {
	ctx, _, _ := newTestContext(t, []byte("abc"), 1, 100, nil)
	assert.Equal(t, []byte("bc"), ctx.Args())
}

func TestArgsBeyondPayloadReturnsNil(t *testing.T) {
	ctx, _, _ := newTestContext(t, []byte("abc"), 10, 4, nil)
	assert.Nil(t, ctx.Args())
}

func TestRespAppendsAndRejectsOverflow(t *testing.T) {
	tnt := tenant.New(1)
	h := heap.New()
	req := &wire.Request{Opcode: types.OpInvoke, Stamp: 1, Tenant: 1}
	resp := wire.NewResponse(req)
	ctx := New(req, 0, 0, resp, tnt, h, nil, 4)

	require.NoError(t, ctx.Resp([]byte("ab")))
	require.NoError(t, ctx.Resp([]byte("cd")))
	assert.Equal(t, []byte("abcd"), resp.Payload)

	err := ctx.Resp([]byte("e"))
	assert.Error(t, err)
}

func TestRespAfterCommitFails(t *testing.T) {
	ctx, _, _ := newTestContext(t, nil, 0, 0, nil)
	_, _, err := ctx.Commit()
	require.NoError(t, err)

	err = ctx.Resp([]byte("x"))
	assert.Error(t, err)
}

func TestGetRecordsReadOnHit(t *testing.T) {
	rec := &fakeRecorder{}
	ctx, tnt, h := newTestContext(t, nil, 0, 0, rec)
	tbl := tnt.CreateTable(5)
	ref, ok := h.Object(1, 5, []byte("k"), []byte("v"))
	require.True(t, ok)
	tbl.Put([]byte("k"), ref)

	value, ok := ctx.Get(5, []byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("v"), value)
	require.Len(t, rec.reads, 1)
	assert.Equal(t, "k", rec.reads[0][0])
	assert.Equal(t, "v", rec.reads[0][1])
}

func TestGetMissingTableOrKeyDoesNotRecord(t *testing.T) {
	rec := &fakeRecorder{}
	ctx, tnt, _ := newTestContext(t, nil, 0, 0, rec)
	tnt.CreateTable(5)

	_, ok := ctx.Get(5, []byte("missing"))
	assert.False(t, ok)

	_, ok = ctx.Get(9, []byte("k"))
	assert.False(t, ok)

	assert.Empty(t, rec.reads)
}

func TestAllocPutRoundTripRecordsWrite(t *testing.T) {
	rec := &fakeRecorder{}
	ctx, tnt, _ := newTestContext(t, nil, 0, 0, rec)
	tnt.CreateTable(5)

	buf, ok := ctx.Alloc(5, []byte("k"), 3)
	require.True(t, ok)
	copy(buf.Value, "val")

	assert.True(t, ctx.Put(buf))
	require.Len(t, rec.writes, 1)
	assert.Equal(t, "k", rec.writes[0][0])
	assert.Equal(t, "val", rec.writes[0][1])

	value, ok := ctx.Get(5, []byte("k"))
	require.True(t, ok)
	assert.Equal(t, []byte("val"), value)
}

func TestAllocUnknownTableFails(t *testing.T) {
	ctx, _, _ := newTestContext(t, nil, 0, 0, nil)
	_, ok := ctx.Alloc(99, []byte("k"), 3)
	assert.False(t, ok)
}

func TestPutOnAlreadyFrozenBufferFails(t *testing.T) {
	ctx, tnt, h := newTestContext(t, nil, 0, 0, nil)
	tnt.CreateTable(1)
	buf, ok := h.Raw(1, 1, []byte("k"), 2)
	require.True(t, ok)
	copy(buf.Value, "ab")

	assert.True(t, ctx.Put(buf))
	assert.False(t, ctx.Put(buf))
}

func TestCommitReturnsPacketsOnce(t *testing.T) {
	ctx, _, _ := newTestContext(t, nil, 0, 0, nil)
	req, resp, err := ctx.Commit()
	require.NoError(t, err)
	assert.NotNil(t, req)
	assert.NotNil(t, resp)

	_, _, err = ctx.Commit()
	assert.Error(t, err)
}

func TestDebugLogIsNoop(t *testing.T) {
	ctx, _, _ := newTestContext(t, nil, 0, 0, nil)
	ctx.DebugLog("anything")
}
