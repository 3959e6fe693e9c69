package task

import (
	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
)

// NativeTask wraps a single-shot get or put (spec §4.G). It never yields
// and never pushes back: the handler runs to completion inside one Run
// call.
type NativeTask struct {
	req    *wire.Request
	resp   *wire.Response
	tenant *tenant.Tenant
	heap   *heap.Allocator

	state types.TaskState
}

// NewNativeTask builds a native get/put task. t is the resolved tenant
// (dispatch has already verified it exists, spec §4.I).
func NewNativeTask(req *wire.Request, resp *wire.Response, t *tenant.Tenant, h *heap.Allocator) *NativeTask {
	return &NativeTask{req: req, resp: resp, tenant: t, heap: h, state: types.TaskInitialized}
}

func (n *NativeTask) ID() uint64              { return n.req.Stamp }
func (n *NativeTask) Priority() types.Priority { return types.PriorityRequest }
func (n *NativeTask) State() types.TaskState   { return n.state }
func (n *NativeTask) PushbackReady() bool      { return false }

// nativeCycles is the fixed cost charged for a native get/put slice: the
// work is O(1) (one table lookup, one allocator call), so a constant
// stand-in for "one slice of work" is enough for the tick-budget
// accounting the scheduler does across native and container tasks alike.
const nativeCycles = 1

// Run performs the entire get or put in one slice and transitions
// straight to COMPLETED, per spec §4.G.
func (n *NativeTask) Run() (types.TaskState, uint64) {
	if n.state == types.TaskCompleted {
		return n.state, 0
	}
	switch n.req.Opcode {
	case types.OpGet:
		n.runGet()
	case types.OpPut:
		n.runPut()
	default:
		n.resp.Status = types.StatusMalformedRequest
	}
	n.state = types.TaskCompleted
	return n.state, nativeCycles
}

func (n *NativeTask) runGet() {
	tbl, ok := n.tenant.GetTable(n.req.TableID)
	if !ok {
		n.resp.Status = types.StatusTableDoesNotExist
		return
	}
	key := keyBytes(n.req)
	ref, ok := tbl.Get(key)
	if !ok {
		n.resp.Status = types.StatusObjectDoesNotExist
		return
	}
	_, value, ok := n.heap.Resolve(ref)
	if !ok {
		n.resp.Status = types.StatusObjectDoesNotExist
		return
	}
	n.resp.Status = types.StatusOk
	n.resp.ValueLength = uint32(len(value))
	n.resp.Payload = value
}

func (n *NativeTask) runPut() {
	tbl, ok := n.tenant.GetTable(n.req.TableID)
	if !ok {
		n.resp.Status = types.StatusTableDoesNotExist
		return
	}
	key := keyBytes(n.req)
	value := n.req.Payload[n.req.KeyLength:]
	ref, ok := n.heap.Object(n.tenant.ID, n.req.TableID, key, value)
	if !ok {
		n.resp.Status = types.StatusInternalError
		return
	}
	tbl.Put(key, ref)
	n.resp.Status = types.StatusOk
}

func keyBytes(req *wire.Request) []byte {
	end := int(req.KeyLength)
	if end > len(req.Payload) {
		end = len(req.Payload)
	}
	return req.Payload[:end]
}

// Commit returns the finished packets. Only legal once Run has returned
// COMPLETED.
func (n *NativeTask) Commit() (*wire.Request, *wire.Response, error) {
	if n.state != types.TaskCompleted {
		return nil, nil, errNotCompleted
	}
	return n.req, n.resp, nil
}

// Pushback never applies to a native task (spec §4.G).
func (n *NativeTask) Pushback(int, int) (*wire.Request, *wire.Response, error) {
	return nil, nil, errNoPushback
}
