// Package wire implements the wire format described in spec §6: the
// common header carried on every RPC, the three opcode-specific header
// shapes, and the pushback continuation record format from §4.K. Encoding
// is fixed-width big-endian, matching the original's packed-struct wire
// layout without depending on any packet-I/O library (out of scope per
// spec §1 — the core only ever sees pre-parsed fields).
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/cuemby/grainstore/pkg/types"
)

// Request is the decoded form of an RPC request: the common header plus
// whichever opcode-specific fields apply, plus the raw payload.
type Request struct {
	Opcode types.Opcode
	Stamp  uint64
	Tenant types.TenantId

	// get/put
	TableID   types.TableId
	KeyLength uint16

	// invoke
	NameLength uint32
	ArgsLength uint32

	Payload []byte
}

// Response is the decoded form of an RPC response.
type Response struct {
	Opcode types.Opcode
	Status types.Status
	Stamp  uint64
	Tenant types.TenantId

	// get
	ValueLength uint32

	Payload []byte
}

// NewResponse builds a response echoing the request's stamp and opcode,
// per the spec §8 invariant that the response's stamp always equals the
// request's stamp.
func NewResponse(req *Request) *Response {
	return &Response{Opcode: req.Opcode, Stamp: req.Stamp, Tenant: req.Tenant}
}

const commonHeaderLen = 1 + 1 + 8 + 4 // opcode, status, stamp, tenant

// EncodeRequest serializes a request to the wire format used by
// grainstore's demo transport (cmd/grainstore-server, pkg/replicaclient).
func EncodeRequest(r *Request) []byte {
	buf := make([]byte, 0, commonHeaderLen+14+len(r.Payload))
	buf = append(buf, byte(r.Opcode), 0)
	buf = binary.BigEndian.AppendUint64(buf, r.Stamp)
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.Tenant))

	switch r.Opcode {
	case types.OpGet, types.OpPut:
		buf = binary.BigEndian.AppendUint64(buf, uint64(r.TableID))
		buf = binary.BigEndian.AppendUint16(buf, r.KeyLength)
	case types.OpInvoke:
		buf = binary.BigEndian.AppendUint32(buf, r.NameLength)
		buf = binary.BigEndian.AppendUint32(buf, r.ArgsLength)
	}
	buf = append(buf, r.Payload...)
	return buf
}

// DecodeRequest parses bytes produced by EncodeRequest. It only validates
// enough to read the opcode-specific header; dispatch-time payload-length
// validation against KeyLength/NameLength/ArgsLength happens in
// pkg/dispatch, not here (spec §4.I keeps that check at dispatch time).
func DecodeRequest(b []byte) (*Request, error) {
	if len(b) < commonHeaderLen {
		return nil, fmt.Errorf("wire: request shorter than common header (%d bytes)", len(b))
	}
	r := &Request{
		Opcode: types.Opcode(b[0]),
		Stamp:  binary.BigEndian.Uint64(b[2:10]),
		Tenant: types.TenantId(binary.BigEndian.Uint32(b[10:14])),
	}
	rest := b[commonHeaderLen:]

	switch r.Opcode {
	case types.OpGet, types.OpPut:
		if len(rest) < 10 {
			return nil, fmt.Errorf("wire: get/put header truncated")
		}
		r.TableID = types.TableId(binary.BigEndian.Uint64(rest[0:8]))
		r.KeyLength = binary.BigEndian.Uint16(rest[8:10])
		r.Payload = rest[10:]
	case types.OpInvoke:
		if len(rest) < 8 {
			return nil, fmt.Errorf("wire: invoke header truncated")
		}
		r.NameLength = binary.BigEndian.Uint32(rest[0:4])
		r.ArgsLength = binary.BigEndian.Uint32(rest[4:8])
		r.Payload = rest[8:]
	default:
		r.Payload = rest
	}
	return r, nil
}

// EncodeResponse serializes a response to grainstore's demo wire format.
func EncodeResponse(r *Response) []byte {
	buf := make([]byte, 0, commonHeaderLen+4+len(r.Payload))
	buf = append(buf, byte(r.Opcode), byte(r.Status))
	buf = binary.BigEndian.AppendUint64(buf, r.Stamp)
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.Tenant))

	if r.Opcode == types.OpGet {
		buf = binary.BigEndian.AppendUint32(buf, r.ValueLength)
	}
	buf = append(buf, r.Payload...)
	return buf
}

// DecodeResponse parses bytes produced by EncodeResponse.
func DecodeResponse(b []byte) (*Response, error) {
	if len(b) < commonHeaderLen {
		return nil, fmt.Errorf("wire: response shorter than common header (%d bytes)", len(b))
	}
	r := &Response{
		Opcode: types.Opcode(b[0]),
		Status: types.Status(b[1]),
		Stamp:  binary.BigEndian.Uint64(b[2:10]),
		Tenant: types.TenantId(binary.BigEndian.Uint32(b[10:14])),
	}
	rest := b[commonHeaderLen:]
	if r.Opcode == types.OpGet {
		if len(rest) < 4 {
			return nil, fmt.Errorf("wire: get response header truncated")
		}
		r.ValueLength = binary.BigEndian.Uint32(rest[0:4])
		r.Payload = rest[4:]
	} else {
		r.Payload = rest
	}
	return r, nil
}

// Record is one pushback continuation entry (spec §4.K): a read-set or
// write-set observation of a fixed-width key and value.
type Record struct {
	Tag   types.RecordTag
	Key   []byte
	Value []byte
}

// RecordWidth returns the fixed per-record width for a deployment's
// KEY_LEN/VAL_LEN (spec §4.K: "1 + KEY_LEN + VAL_LEN").
func RecordWidth(keyLen, valLen int) int { return 1 + keyLen + valLen }

// EncodePushback concatenates reads then writes into the fixed-width
// record format, preserving the order in which the extension observed
// them (spec §9: "read-set-before-write-set, FIFO within each set").
// Keys and values are truncated or zero-padded to keyLen/valLen.
func EncodePushback(reads, writes []Record, keyLen, valLen int) []byte {
	width := RecordWidth(keyLen, valLen)
	buf := make([]byte, 0, width*(len(reads)+len(writes)))
	for _, recs := range [][]Record{reads, writes} {
		for _, rec := range recs {
			buf = append(buf, byte(rec.Tag))
			buf = appendFixed(buf, rec.Key, keyLen)
			buf = appendFixed(buf, rec.Value, valLen)
		}
	}
	return buf
}

func appendFixed(buf, data []byte, width int) []byte {
	start := len(buf)
	buf = append(buf, make([]byte, width)...)
	n := copy(buf[start:start+width], data)
	_ = n
	return buf
}

// DecodePushback parses a pushback payload back into its read-set and
// write-set, in the order they were encoded. Round-trips with
// EncodePushback (spec §8 round-trip law).
func DecodePushback(payload []byte, keyLen, valLen int) (reads, writes []Record, err error) {
	width := RecordWidth(keyLen, valLen)
	if width <= 0 || len(payload)%width != 0 {
		return nil, nil, fmt.Errorf("wire: pushback payload length %d not a multiple of record width %d", len(payload), width)
	}

	count := len(payload) / width
	all := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		off := i * width
		tag := types.RecordTag(payload[off])
		key := append([]byte(nil), payload[off+1:off+1+keyLen]...)
		value := append([]byte(nil), payload[off+1+keyLen:off+1+keyLen+valLen]...)
		all = append(all, Record{Tag: tag, Key: key, Value: value})
	}

	for _, rec := range all {
		switch rec.Tag {
		case types.RecordTagRead:
			reads = append(reads, rec)
		case types.RecordTagWrite:
			writes = append(writes, rec)
		default:
			return nil, nil, fmt.Errorf("wire: unknown pushback record tag %d", rec.Tag)
		}
	}
	return reads, writes, nil
}
