// Package dispatch implements the service dispatcher (spec §4.I): it
// parses the RPC opcode already decoded by pkg/wire, validates the
// request against the tenant registry and extension manager, and
// constructs the right task for the scheduler to run. Grounded on
// original_source/db/src/master.rs's dispatch_rpc arm for
// GetRpc/PutRpc/InvokeRpc.
package dispatch

import (
	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/task"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
)

// Dispatcher owns the read-only collaborators the dispatch step consults:
// the tenant registry and extension manager (spec §4.I, "consults the
// tenant registry (A) and extension manager (D)").
type Dispatcher struct {
	tenants    *tenant.Registry
	heap       *heap.Allocator
	extensions *extension.Manager

	cyclesBudget uint64
	maxResp      int
}

// New builds a dispatcher. cyclesBudget and maxResp are deployment
// constants (internal/config) threaded into every container task it
// constructs.
func New(tenants *tenant.Registry, h *heap.Allocator, exts *extension.Manager, cyclesBudget uint64, maxResp int) *Dispatcher {
	return &Dispatcher{tenants: tenants, heap: h, extensions: exts, cyclesBudget: cyclesBudget, maxResp: maxResp}
}

// Dispatch validates req and constructs the task that will run it. On
// success it returns (t, nil, nil). On a dispatch-time fault it returns
// (nil, resp, nil) with the response status already set, ready for
// immediate transmit (spec §4.I: "error — drop or send immediately, the
// scheduler decides"). A failed extension Init is also reported this
// way, as StatusInternalError; the error return is always nil.
func (d *Dispatcher) Dispatch(req *wire.Request) (task.Task, *wire.Response, error) {
	resp := wire.NewResponse(req)

	switch req.Opcode {
	case types.OpGet, types.OpPut:
		if len(req.Payload) < int(req.KeyLength) {
			resp.Status = types.StatusMalformedRequest
			return nil, resp, nil
		}
	case types.OpInvoke:
		if uint32(len(req.Payload)) < req.NameLength+req.ArgsLength {
			resp.Status = types.StatusMalformedRequest
			return nil, resp, nil
		}
	default:
		resp.Status = types.StatusMalformedRequest
		return nil, resp, nil
	}

	t, ok := d.tenants.Get(req.Tenant)
	if !ok {
		resp.Status = types.StatusTenantDoesNotExist
		return nil, resp, nil
	}

	switch req.Opcode {
	case types.OpGet, types.OpPut:
		return task.NewNativeTask(req, resp, t, d.heap), nil, nil
	case types.OpInvoke:
		return d.dispatchInvoke(req, resp, t)
	default:
		resp.Status = types.StatusMalformedRequest
		return nil, resp, nil
	}
}

func (d *Dispatcher) dispatchInvoke(req *wire.Request, resp *wire.Response, t *tenant.Tenant) (task.Task, *wire.Response, error) {
	name := string(req.Payload[:req.NameLength])

	if !t.Authorized(name) {
		resp.Status = types.StatusInvalidExtension
		return nil, resp, nil
	}
	ext, ok := d.extensions.Get(t.ID, name)
	if !ok {
		resp.Status = types.StatusInvalidExtension
		return nil, resp, nil
	}

	argsOffset := int(req.NameLength)
	argsLength := int(req.ArgsLength)
	ct, err := task.NewContainerTask(req, resp, t, d.heap, ext, argsOffset, argsLength, d.cyclesBudget, d.maxResp)
	if err != nil {
		resp.Status = types.StatusInternalError
		return nil, resp, nil
	}
	return ct, nil, nil
}
