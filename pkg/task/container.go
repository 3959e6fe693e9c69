package task

import (
	"fmt"

	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/reqcontext"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
)

// rwSetAccumulator implements reqcontext.RWSetRecorder, building the
// ordered read-set and write-set a container task serializes on pushback
// (spec §4.K: "read-set before write-set, FIFO within each set").
type rwSetAccumulator struct {
	reads  []wire.Record
	writes []wire.Record
}

func (a *rwSetAccumulator) RecordRead(key, value []byte) {
	a.reads = append(a.reads, wire.Record{
		Tag:   types.RecordTagRead,
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
}

func (a *rwSetAccumulator) RecordWrite(key, value []byte) {
	a.writes = append(a.writes, wire.Record{
		Tag:   types.RecordTagWrite,
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
}

// ContainerTask drives a loaded extension through its Init/Next
// invocation across one or more Run slices (spec §4.H). It accumulates a
// read/write-set as the extension touches tables, so that a slice that
// exceeds its lifetime cycle budget can be turned into a pushback
// response instead of discarded work.
type ContainerTask struct {
	req  *wire.Request
	resp *wire.Response

	invocation extension.Invocation
	rwset      *rwSetAccumulator

	cyclesConsumed uint64
	cyclesBudget   uint64

	state         types.TaskState
	pushbackReady bool
}

// NewContainerTask builds a container task bound to one invoke RPC. ext
// is the already-authorized, already-loaded extension (dispatch's job,
// spec §4.I); argsOffset/argsLength locate the argument blob inside
// req.Payload.
func NewContainerTask(
	req *wire.Request,
	resp *wire.Response,
	t *tenant.Tenant,
	h *heap.Allocator,
	ext extension.LoadedExtension,
	argsOffset, argsLength int,
	cyclesBudget uint64,
	maxResp int,
) (*ContainerTask, error) {
	rwset := &rwSetAccumulator{}
	ctx := reqcontext.New(req, argsOffset, argsLength, resp, t, h, rwset, maxResp)
	invocation, err := ext.Init(ctx)
	if err != nil {
		return nil, err
	}
	return &ContainerTask{
		req:          req,
		resp:         resp,
		invocation:   invocationWithContext{inv: invocation, ctx: ctx},
		rwset:        rwset,
		cyclesBudget: cyclesBudget,
		state:        types.TaskInitialized,
	}, nil
}

// invocationWithContext closes an extension.Invocation over the single
// reqcontext.Context it was Init-ed with, so ContainerTask.Run does not
// need to thread the context through itself.
type invocationWithContext struct {
	inv extension.Invocation
	ctx *reqcontext.Context
}

func (i invocationWithContext) Next(*reqcontext.Context) (bool, uint64, error) {
	return i.inv.Next(i.ctx)
}

func (c *ContainerTask) ID() uint64                { return c.req.Stamp }
func (c *ContainerTask) Priority() types.Priority  { return types.PriorityRequest }
func (c *ContainerTask) State() types.TaskState    { return c.state }
func (c *ContainerTask) PushbackReady() bool       { return c.pushbackReady }

// Run performs one cooperative slice, per the algorithm in spec §4.H:
// advance the invocation, update cycles_consumed, and transition to
// COMPLETED, YIELDED (pushback-ready), or YIELDED (routine re-enqueue).
func (c *ContainerTask) Run() (types.TaskState, uint64) {
	if c.state == types.TaskCompleted {
		return c.state, 0
	}
	c.setState(types.TaskRunnable)

	done, cycles, err := c.invocation.Next(nil)
	c.cyclesConsumed += cycles

	if err != nil {
		c.resp.Status = types.StatusInternalError
		c.setState(types.TaskCompleted)
		return c.state, cycles
	}
	if done {
		c.resp.Status = types.StatusOk
		c.setState(types.TaskCompleted)
		return c.state, cycles
	}
	if c.cyclesConsumed > c.cyclesBudget {
		c.setState(types.TaskYielded)
		c.pushbackReady = true
		return c.state, cycles
	}
	c.setState(types.TaskYielded)
	return c.state, cycles
}

// setState enforces the five-state machine from spec §4.F before
// recording a transition; a container task that tried to skip a state
// (e.g. straight from INITIALIZED to COMPLETED) would indicate a bug in
// Run's own control flow, not recoverable input.
func (c *ContainerTask) setState(to types.TaskState) {
	if !validTransition(c.state, to) {
		panic(fmt.Sprintf("task: invalid transition %s -> %s", c.state, to))
	}
	c.state = to
}

// Commit returns the finished packets. Only legal once Run has returned
// COMPLETED.
func (c *ContainerTask) Commit() (*wire.Request, *wire.Response, error) {
	if c.state != types.TaskCompleted {
		return nil, nil, errNotCompleted
	}
	return c.req, c.resp, nil
}

// Pushback serializes the accumulated read/write-set into the response
// payload and hands the packets back, discarding the task (spec §4.K).
// Only legal in YIELDED with PushbackReady true.
func (c *ContainerTask) Pushback(keyLen, valLen int) (*wire.Request, *wire.Response, error) {
	if c.state != types.TaskYielded || !c.pushbackReady {
		return nil, nil, errNotYielded
	}
	c.resp.Status = types.StatusPushback
	c.resp.Payload = wire.EncodePushback(c.rwset.reads, c.rwset.writes, keyLen, valLen)
	return c.req, c.resp, nil
}
