// Package replicaclient implements the client side of the pushback
// protocol (spec §4.K, §8 scenario 6): on receiving a StatusPushback
// response, restore the task's read/write-set from the payload into a
// local replica of the data service, and run the same extension against
// it. Server and client share one task definition; only the scheduler
// differs (spec §4.K, closing paragraph). Grounded structurally on the
// teacher's pkg/client.Client (a thin wrapper type owning a connection
// plus constructor, Close, and verb methods) though none of its
// gRPC+mTLS transport content applies here — the Non-goals exclude TLS
// and there is no cluster API left to dial.
package replicaclient

import (
	"fmt"

	"github.com/cuemby/grainstore/pkg/dispatch"
	"github.com/cuemby/grainstore/pkg/extension"
	"github.com/cuemby/grainstore/pkg/heap"
	"github.com/cuemby/grainstore/pkg/metrics"
	"github.com/cuemby/grainstore/pkg/tenant"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
)

// maxReplaySteps bounds the local replay loop. The replica is seeded with
// exactly the server's observed read-set and runs the extension with an
// effectively unbounded cycle budget (spec: "runs the same extension
// against a local data service populated from the read-set" — the local
// run is not itself subject to pushback), so this is a safety backstop
// against a runaway extension, not a normal exit path.
const maxReplaySteps = 1_000_000

// unlimitedBudget is large enough that no built-in extension's lifetime
// cost will ever trip the pushback-ready check during a local replay.
const unlimitedBudget = ^uint64(0)

// ReplicaClient owns the set of extensions the client can run locally —
// the same builtins the server links, per spec's "server and client
// share one task definition."
type ReplicaClient struct {
	extensions *extension.Manager
}

// New builds a replica client with the built-in extensions registered.
func New() *ReplicaClient {
	mgr := extension.NewManager(nil)
	extension.RegisterBuiltins(mgr)
	return &ReplicaClient{extensions: mgr}
}

// Replay restores the continuation carried in pushback and runs it to
// completion against a freshly seeded local replica, returning the final
// response exactly as if the server had been allowed to finish the
// invocation itself (spec §8's idempotence property). tableID is the
// table the original invoke's arguments reference — the caller already
// knows this, having constructed those arguments; the wire-level
// read/write-set records themselves carry no table id (spec §4.K).
func (c *ReplicaClient) Replay(
	tenantID types.TenantId,
	tableID types.TableId,
	taskID uint64,
	extensionName string,
	args []byte,
	pushback *wire.Response,
	keyLen, valLen int,
) (*wire.Response, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReplayLatency)

	reads, writes, err := wire.DecodePushback(pushback.Payload, keyLen, valLen)
	if err != nil {
		return nil, fmt.Errorf("replicaclient: decode pushback: %w", err)
	}

	localTenant := tenant.New(tenantID)
	localTable := localTenant.CreateTable(tableID)
	localHeap := heap.New()

	for _, rec := range append(append([]wire.Record(nil), reads...), writes...) {
		ref, ok := localHeap.Object(tenantID, tableID, rec.Key, rec.Value)
		if !ok {
			return nil, fmt.Errorf("replicaclient: seed local replica for key %q", rec.Key)
		}
		localTable.Put(rec.Key, ref)
	}

	ok, err := c.extensions.Load(builtinPath(extensionName), tenantID, extensionName)
	if err != nil {
		return nil, fmt.Errorf("replicaclient: load %s locally: %w", extensionName, err)
	}
	if !ok {
		return nil, fmt.Errorf("replicaclient: unknown extension %q", extensionName)
	}
	localTenant.Authorize(extensionName)

	registry := tenant.NewRegistry(0)
	registry.Insert(localTenant)
	d := dispatch.New(registry, localHeap, c.extensions, unlimitedBudget, 1<<20)

	req := &wire.Request{
		Opcode:     types.OpInvoke,
		Stamp:      taskID,
		Tenant:     tenantID,
		NameLength: uint32(len(extensionName)),
		ArgsLength: uint32(len(args)),
		Payload:    append([]byte(extensionName), args...),
	}

	t, faultResp, err := d.Dispatch(req)
	if err != nil {
		return nil, fmt.Errorf("replicaclient: dispatch replay: %w", err)
	}
	if t == nil {
		return faultResp, nil
	}

	for i := 0; i < maxReplaySteps; i++ {
		state, _ := t.Run()
		if state == types.TaskCompleted {
			metrics.ReplayedPushbacksTotal.Inc()
			_, resp, err := t.Commit()
			return resp, err
		}
	}
	return nil, fmt.Errorf("replicaclient: replay of task %d did not complete within %d steps", taskID, maxReplaySteps)
}

// builtinPath maps an extension name back to the path the built-in
// registry used to register it (spec §1: extension loading/naming is out
// of scope; grainstore's builtins use a fixed "builtin:<name>" scheme).
func builtinPath(name string) string {
	return "builtin:" + name
}
