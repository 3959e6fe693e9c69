package extension

import (
	"encoding/binary"
	"errors"

	"github.com/cuemby/grainstore/pkg/reqcontext"
	"github.com/cuemby/grainstore/pkg/types"
)

var errTooShort = errors.New("extension: sum arguments too short")

// BuiltinEcho and BuiltinSum are the path names a test or operator passes
// to Manager.Load to install one of the two extensions below.
const (
	BuiltinEcho = "builtin:echo"
	BuiltinSum  = "builtin:sum"
)

// RegisterBuiltins installs the echo and sum factories under their well
// known path names. Call once at startup before Manager.Restore.
func RegisterBuiltins(m *Manager) {
	m.Register(BuiltinEcho, func() LoadedExtension { return echoExtension{} })
	m.Register(BuiltinSum, func() LoadedExtension { return &sumExtension{} })
}

// echoExtension writes its arguments straight back as the response and
// completes in a single Next call, grounded on original_source's
// ext/tao (the simplest possible extension: no table access at all).
// It exists to exercise the "invoke within budget" path (spec §8).
type echoExtension struct{}

func (echoExtension) Init(ctx *reqcontext.Context) (Invocation, error) {
	return &echoInvocation{args: append([]byte(nil), ctx.Args()...)}, nil
}

type echoInvocation struct {
	args []byte
}

func (e *echoInvocation) Next(ctx *reqcontext.Context) (bool, uint64, error) {
	if err := ctx.Resp(e.args); err != nil {
		return true, 1, err
	}
	return true, 1, nil
}

// sumExtension reads a sequence of keys in a table and accumulates a
// running 64-bit sum, one key's contribution per Next call. This gives it
// a natural multi-step shape: a small key count completes within budget,
// a large one runs out of cycles mid-walk and forces a pushback (spec §8
// "invoke exceeding budget"). Grounded on original_source's ext/list,
// which walks a chain of table entries across multiple invocations.
//
// All table reads happen once, during Init, rather than lazily inside
// Next: Init runs once per task and is never charged against the cycle
// budget (spec §4.H only budgets Next slices), so front-loading the reads
// there guarantees the read-set pushback later serializes already
// contains every key the computation depends on — required for the
// idempotence property of spec §8 scenario 6, since a client replay seeds
// its local table from nothing but that read-set.
//
// Argument format: a NameLength-agnostic blob of the form
// tableID(8) keyCount(4) key0(KEY_LEN) key1(KEY_LEN) ...
// where keyCount keys of the deployment's fixed KEY_LEN each follow. The
// extension does not know KEY_LEN itself; it infers it by dividing the
// remaining argument bytes by keyCount.
type sumExtension struct{}

func (e *sumExtension) Init(ctx *reqcontext.Context) (Invocation, error) {
	args := ctx.Args()
	if len(args) < 12 {
		return nil, errTooShort
	}
	tableID := types.TableId(binary.BigEndian.Uint64(args[0:8]))
	keyCount := binary.BigEndian.Uint32(args[8:12])
	rest := args[12:]
	if keyCount == 0 {
		return &sumInvocation{}, nil
	}
	keyLen := len(rest) / int(keyCount)
	values := make([][]byte, 0, keyCount)
	for i := 0; i < int(keyCount); i++ {
		off := i * keyLen
		key := rest[off : off+keyLen]
		value, ok := ctx.Get(tableID, key)
		if !ok {
			values = append(values, nil)
			continue
		}
		values = append(values, append([]byte(nil), value...))
	}
	return &sumInvocation{values: values}, nil
}

type sumInvocation struct {
	values [][]byte
	next   int
	total  uint64
}

// cyclesPerKey is the fixed per-key cost sumInvocation reports, letting a
// test pick a budget that completes in N keys deterministically.
const cyclesPerKey = 10

func (s *sumInvocation) Next(ctx *reqcontext.Context) (bool, uint64, error) {
	if s.next < len(s.values) {
		value := s.values[s.next]
		s.next++
		if len(value) >= 8 {
			s.total += binary.BigEndian.Uint64(value[0:8])
		}
		if s.next < len(s.values) {
			return false, cyclesPerKey, nil
		}
	}

	var out [8]byte
	binary.BigEndian.PutUint64(out[:], s.total)
	if err := ctx.Resp(out[:]); err != nil {
		return true, cyclesPerKey, err
	}
	return true, cyclesPerKey, nil
}
