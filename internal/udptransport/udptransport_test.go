package udptransport

import (
	"net"
	"testing"
	"time"

	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReceiveAndTransmitRoundTrip(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	client, err := net.Dial("udp", srv.conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	req := &wire.Request{
		Opcode: types.OpGet, Stamp: 7, Tenant: 1,
		TableID: 1, KeyLength: 3, Payload: []byte("key"),
	}
	_, err = client.Write(wire.EncodeRequest(req))
	require.NoError(t, err)

	deadline := time.Now().Add(time.Second)
	var got []*wire.Request
	for time.Now().Before(deadline) {
		got = srv.Receive(16)
		if len(got) > 0 {
			break
		}
	}
	require.Len(t, got, 1)
	assert.Equal(t, req.Stamp, got[0].Stamp)
	assert.Equal(t, req.Payload, got[0].Payload)

	resp := wire.NewResponse(got[0])
	resp.Status = types.StatusOk
	resp.Payload = []byte("value")
	srv.Transmit(resp)

	client.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 4096)
	n, err := client.Read(buf)
	require.NoError(t, err)

	decoded, err := wire.DecodeResponse(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, req.Stamp, decoded.Stamp)
	assert.Equal(t, []byte("value"), decoded.Payload)
}

func TestReceiveReturnsEmptyOnIdleSocket(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	got := srv.Receive(4)
	assert.Empty(t, got)
}

func TestTransmitDropsUnknownStamp(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	resp := &wire.Response{Opcode: types.OpGet, Status: types.StatusOk, Stamp: 999}
	srv.Transmit(resp) // must not panic; no recorded sender for this stamp
}

func TestReceiveKeepsDecodedPayloadsIndependent(t *testing.T) {
	srv, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer srv.Close()

	client, err := net.Dial("udp", srv.conn.LocalAddr().String())
	require.NoError(t, err)
	defer client.Close()

	req1 := &wire.Request{Opcode: types.OpGet, Stamp: 1, Tenant: 1, TableID: 1, KeyLength: 3, Payload: []byte("aaa")}
	req2 := &wire.Request{Opcode: types.OpGet, Stamp: 2, Tenant: 1, TableID: 1, KeyLength: 3, Payload: []byte("bbb")}
	client.Write(wire.EncodeRequest(req1))
	client.Write(wire.EncodeRequest(req2))

	deadline := time.Now().Add(time.Second)
	var got []*wire.Request
	for time.Now().Before(deadline) && len(got) < 2 {
		got = append(got, srv.Receive(16)...)
	}
	require.Len(t, got, 2)
	// Each decoded request's payload must reflect its own datagram, not
	// whichever buffer was last overwritten by a later read.
	assert.Equal(t, []byte("aaa"), got[0].Payload)
	assert.Equal(t, []byte("bbb"), got[1].Payload)
}
