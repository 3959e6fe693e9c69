/*
Package types defines the core data structures shared throughout grainstore.

This package contains the value types that represent grainstore's domain
model: tenant and table identifiers, the wire-stable opcode and status
enums, task priority and lifecycle state, and the read/write-set record
tag used by the pushback protocol. These types are used by every other
package for request dispatch, task scheduling, and wire encoding.

# Architecture

The types package is the foundation grainstore's core is built on. It
defines:

  - Tenant and table identity (TenantId, TableId)
  - RPC kind and outcome (Opcode, Status)
  - Task scheduling priority (Priority)
  - Task lifecycle state (TaskState)
  - Pushback read/write-set tagging (RecordTag)

All types are designed to be:
  - Wire-stable (Opcode, Status, RecordTag values are never renumbered)
  - Comparable (used directly as map keys: tenant and table registries)
  - Self-documenting (Opcode and Status have String methods, used in
    logging and metric labels; TaskState is itself a string type)

# Core Types

Identity:
  - TenantId: opaque 64-bit tenant identifier, assigned at tenant creation
  - TableId: table identifier, scoped to the tenant that owns it

RPC Envelope:
  - Opcode: get, put, or invoke, carried in the wire request header
  - Status: ok, or one of the error/pushback outcomes carried in the
    wire response header

Scheduling:
  - Priority: orders tasks within the scheduler's ready queue; REQUEST
    dominates every lower band
  - TaskState: a task's lifecycle stage, from INITIALIZED through
    RUNNABLE/YIELDED/WAITING to COMPLETED

Pushback:
  - RecordTag: distinguishes a read-set entry from a write-set entry
    inside an encoded pushback payload

# Usage

Building a response for a completed invoke:

	resp := &wire.Response{
		Opcode: types.OpInvoke,
		Status: types.StatusOk,
		Stamp:  req.Stamp,
	}

Checking a task's priority before enqueuing:

	if task.Priority() == types.PriorityRequest {
		readyQueue.PushFront(task)
	}

# State Machine

Tasks follow the state machine described in pkg/task:

	INITIALIZED → RUNNABLE ⇄ YIELDED
	                 ↓           ↓
	              WAITING    COMPLETED
	                 ↓
	              RUNNABLE

Valid transitions:
  - INITIALIZED → RUNNABLE (first Run call)
  - RUNNABLE → YIELDED (slice ended, budget not yet exceeded or
    exceeded with more work remaining)
  - RUNNABLE → WAITING (blocked on an external dependency)
  - YIELDED → RUNNABLE (re-enqueued for another slice)
  - WAITING → RUNNABLE (dependency satisfied)
  - RUNNABLE → COMPLETED (invocation reports done)
  - COMPLETED is terminal; no transition leaves it

# Design Patterns

Enumeration Pattern:

	Every enum uses a typed string or uint8 constant block for safety
	and clarity:
	  type TaskState string
	  const (
	      TaskInitialized TaskState = "initialized"
	      TaskRunnable    TaskState = "runnable"
	  )

Wire Stability:

	Opcode, Status, and RecordTag values are part of the wire format
	(spec §6) and are never renumbered once assigned; a new kind gets
	the next unused value instead of reusing one.

# See Also

  - pkg/wire for the request/response/pushback encodings these types
    appear in
  - pkg/task for the state machine TaskState enforces
  - DESIGN.md for the grounding behind this package's conventions
*/
package types
