// Package reqcontext implements the request context described in spec
// §4.E: the sole capability object an extension is given. It exposes
// Args/Resp/Get/Alloc/Put/DebugLog and, once the extension is done,
// Commit — which surrenders the wrapped request/response back to the
// scheduler. Grounded directly on original_source/db/src/context.rs.
package reqcontext

import (
	"fmt"
	"sync"

	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
)

// RWSetRecorder receives a notification every time the context performs a
// successful read or write, so the owning container task can accumulate
// the read-set/write-set used for pushback (spec §4.H, §4.K). The order
// these methods are called in is the order replayed on the client.
type RWSetRecorder interface {
	RecordRead(key, value []byte)
	RecordWrite(key, value []byte)
}

// Context is constructed once per invoke RPC and consumed by exactly one
// Commit call.
type Context struct {
	req        *wire.Request
	argsOffset int
	argsLength int

	mu       sync.Mutex
	resp     *wire.Response
	maxResp  int
	committed bool

	tenant   *tenant.Tenant
	heap     *heap.Allocator
	recorder RWSetRecorder
}

// New builds a context for one invoke RPC. argsOffset/argsLength locate
// the extension's argument blob inside req.Payload (spec §4.E). maxResp
// bounds the response payload; exceeding it surfaces InternalError from
// Resp, per spec §7.
func New(req *wire.Request, argsOffset, argsLength int, resp *wire.Response, t *tenant.Tenant, h *heap.Allocator, rec RWSetRecorder, maxResp int) *Context {
	return &Context{
		req:        req,
		argsOffset: argsOffset,
		argsLength: argsLength,
		resp:       resp,
		maxResp:    maxResp,
		tenant:     t,
		heap:       h,
		recorder:   rec,
	}
}

// Args returns a zero-copy view of the extension's arguments.
func (c *Context) Args() []byte {
	payload := c.req.Payload
	if c.argsOffset > len(payload) {
		return nil
	}
	end := c.argsOffset + c.argsLength
	if end > len(payload) {
		end = len(payload)
	}
	return payload[c.argsOffset:end]
}

// Resp appends data to the response payload. Returns an error if the
// response has already been committed or the payload would exceed maxResp.
func (c *Context) Resp(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed {
		return fmt.Errorf("reqcontext: resp called after commit")
	}
	if c.maxResp > 0 && len(c.resp.Payload)+len(data) > c.maxResp {
		return fmt.Errorf("reqcontext: response payload overflow (%d + %d > %d)", len(c.resp.Payload), len(data), c.maxResp)
	}
	c.resp.Payload = append(c.resp.Payload, data...)
	return nil
}

// Get behaves exactly like the server's native get: a table lookup
// through the allocator, resolved to a value slice. A successful read is
// recorded into the read-set (spec §4.H).
func (c *Context) Get(tableID types.TableId, key []byte) ([]byte, bool) {
	tbl, ok := c.tenant.GetTable(tableID)
	if !ok {
		return nil, false
	}
	ref, ok := tbl.Get(key)
	if !ok {
		return nil, false
	}
	_, value, ok := c.heap.Resolve(ref)
	if !ok {
		return nil, false
	}
	if c.recorder != nil {
		c.recorder.RecordRead(key, value)
	}
	return value, true
}

// Alloc delegates to the allocator, returning an uninitialized write
// buffer for the caller to fill and later Put.
func (c *Context) Alloc(tableID types.TableId, key []byte, valLen int) (*heap.WriteBuffer, bool) {
	if _, ok := c.tenant.GetTable(tableID); !ok {
		return nil, false
	}
	return c.heap.Raw(c.tenant.ID, tableID, key, valLen)
}

// Put freezes a write buffer and installs it into its table. Returns
// false if the table is unknown. A successful put is recorded into the
// write-set (spec §4.H).
func (c *Context) Put(buf *heap.WriteBuffer) bool {
	tableID, ref, err := c.heap.Freeze(buf)
	if err != nil {
		return false
	}
	tbl, ok := c.tenant.GetTable(tableID)
	if !ok {
		return false
	}
	tbl.Put(buf.Key(), ref)
	if c.recorder != nil {
		c.recorder.RecordWrite(buf.Key(), buf.Value)
	}
	return true
}

// DebugLog is a no-op in release builds, matching spec §4.E. It exists so
// extensions compiled against this interface do not need a build tag.
func (c *Context) DebugLog(string) {}

// Commit consumes the context and surrenders the wrapped request/response
// packets, ready for transmit. After Commit the context is no longer
// usable (spec invariant).
func (c *Context) Commit() (*wire.Request, *wire.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.committed {
		return nil, nil, fmt.Errorf("reqcontext: already committed")
	}
	c.committed = true
	return c.req, c.resp, nil
}
