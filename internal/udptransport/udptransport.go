// Package udptransport is the minimal stdlib packet-I/O layer that stands
// in for the UDP/DPDK-style transport spec §1 places out of scope ("the
// core receives pre-parsed request packets and emits pre-allocated
// response packets... assume this layer exists"). No library in the
// example pack offers a packet-I/O abstraction to ground this on, so its
// socket handling is written directly against net.UDPConn (logging still
// goes through pkg/log and zerolog), as described in DESIGN.md.
//
// UDP is connectionless, so unlike a gRPC/TCP transport the transmit side
// cannot simply write back on an accepted connection: this package tracks
// the return address for each in-flight request's stamp and consults it
// when the scheduler later calls Transmit.
package udptransport

import (
	"net"
	"sync"
	"time"

	"github.com/cuemby/grainstore/pkg/log"
	"github.com/cuemby/grainstore/pkg/wire"
	"github.com/rs/zerolog"
)

// maxDatagram bounds a single UDP read; anything larger is dropped, since
// the wire format never produces a datagram this large at grainstore's
// deployment sizes (spec §5, MaxResponsePayload caps the other end).
const maxDatagram = 64 * 1024

// pollInterval bounds how long one Receive call blocks waiting for the
// next datagram before giving up and returning whatever it already has,
// so a scheduler tick's receive phase never stalls indefinitely on an
// idle socket.
const pollInterval = 2 * time.Millisecond

func nowPlusPoll() time.Time { return time.Now().Add(pollInterval) }

// Transport implements both pkg/scheduler.Receiver and
// pkg/scheduler.Transmitter over one UDP socket.
type Transport struct {
	conn   *net.UDPConn
	logger zerolog.Logger

	mu       sync.Mutex
	returnTo map[uint64]*net.UDPAddr
}

// Listen opens a UDP socket on addr for both request receipt and response
// transmission.
func Listen(addr string) (*Transport, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Transport{
		conn:     conn,
		logger:   log.WithComponent("udptransport"),
		returnTo: make(map[uint64]*net.UDPAddr),
	}, nil
}

// Close releases the underlying socket.
func (t *Transport) Close() error { return t.conn.Close() }

// Receive drains up to max pending datagrams without blocking once none
// remain, decoding each into a wire.Request and recording its sender for
// the eventual Transmit (pkg/scheduler.Receiver).
func (t *Transport) Receive(max int) []*wire.Request {
	reqs := make([]*wire.Request, 0, max)

	for i := 0; i < max; i++ {
		// A fresh buffer per datagram: DecodeRequest's Payload slices
		// alias whatever buffer it was given, and every decoded
		// *wire.Request here outlives this loop.
		buf := make([]byte, maxDatagram)
		// Only the first read of a batch waits for pollInterval (so an
		// idle socket doesn't busy-spin the tick loop); once at least
		// one datagram has arrived, drain whatever else is already
		// queued without blocking further.
		deadline := time.Now()
		if i == 0 {
			deadline = nowPlusPoll()
		}
		if err := t.conn.SetReadDeadline(deadline); err != nil {
			t.logger.Error().Err(err).Msg("set read deadline")
			break
		}
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				break
			}
			t.logger.Error().Err(err).Msg("read datagram")
			break
		}
		req, err := wire.DecodeRequest(buf[:n])
		if err != nil {
			t.logger.Warn().Err(err).Msg("malformed datagram dropped")
			continue
		}

		t.mu.Lock()
		t.returnTo[req.Stamp] = addr
		t.mu.Unlock()

		reqs = append(reqs, req)
	}
	return reqs
}

// Transmit encodes resp and sends it to whichever address sent the
// request with the matching stamp (pkg/scheduler.Transmitter). A stamp
// with no recorded sender (e.g. a replayed pushback processed off the
// wire rather than received on it) is dropped with a warning log.
func (t *Transport) Transmit(resp *wire.Response) {
	t.mu.Lock()
	addr, ok := t.returnTo[resp.Stamp]
	if ok {
		delete(t.returnTo, resp.Stamp)
	}
	t.mu.Unlock()
	if !ok {
		t.logger.Warn().Uint64("stamp", resp.Stamp).Msg("no return address for stamp")
		return
	}

	if _, err := t.conn.WriteToUDP(wire.EncodeResponse(resp), addr); err != nil {
		t.logger.Error().Err(err).Uint64("stamp", resp.Stamp).Msg("write datagram")
	}
}
