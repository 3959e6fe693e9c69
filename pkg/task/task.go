// Package task implements the task abstraction (spec §4.F), the native
// task (§4.G), and the container task (§4.H): the three shapes of
// resumable work the scheduler drives one `Run` slice at a time.
// Grounded on original_source/db/src/master.rs's get/invoke RPC handlers,
// restructured around a single-method state machine per spec §9's note
// that Go has no stackful coroutine equivalent to the original's
// compiler-generated generator.
package task

import (
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
)

// Task is the common interface the scheduler drives. A single Run call is
// one cooperative slice; the scheduler inspects the returned state to
// decide whether to re-enqueue, move to the waiting-set, commit, or
// pushback (spec §4.F, §4.J).
type Task interface {
	// ID is the request stamp, used as the continuation key for
	// pushback and for waking a WAITING task.
	ID() uint64
	Priority() types.Priority
	State() types.TaskState

	// Run performs one slice and returns the resulting state plus the
	// cycles that slice consumed, per spec §4.F's "run() -> (state,
	// cycles-used)". The scheduler charges cyclesUsed against both the
	// tick budget and (via the task's own bookkeeping) the lifetime
	// budget.
	Run() (state types.TaskState, cyclesUsed uint64)

	// Commit is only legal in COMPLETED; it returns the finished
	// request/response pair for the transmit queue.
	Commit() (*wire.Request, *wire.Response, error)

	// Pushback is only legal in YIELDED with the task marked
	// pushback-ready; it serializes the read/write-set into the
	// response and returns the packets for the transmit queue.
	Pushback(keyLen, valLen int) (*wire.Request, *wire.Response, error)

	// PushbackReady reports whether the task's last slice left it
	// YIELDED because it exceeded its whole-lifetime cycle budget,
	// as opposed to a routine scheduler-policy yield.
	PushbackReady() bool
}

// validTransition validates the five-state machine from spec §4.F: initial
// INITIALIZED, terminal COMPLETED, RUNNABLE<->YIELDED the only cycle.
func validTransition(from, to types.TaskState) bool {
	switch from {
	case types.TaskInitialized:
		return to == types.TaskRunnable
	case types.TaskRunnable:
		switch to {
		case types.TaskRunnable, types.TaskYielded, types.TaskWaiting, types.TaskCompleted:
			return true
		}
	case types.TaskYielded:
		switch to {
		case types.TaskRunnable, types.TaskYielded, types.TaskCompleted:
			return true
		}
	case types.TaskWaiting:
		return to == types.TaskRunnable
	case types.TaskCompleted:
		return false
	}
	return false
}
