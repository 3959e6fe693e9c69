// Package scheduler implements the per-worker-core cooperative run loop
// (spec §4.J): receive, dispatch, execute under budget, transmit, with a
// waiting-set for tasks parked pending an external event. Grounded on the
// teacher's pkg/scheduler's overall shape (ticker-driven run loop,
// zerolog component logger, mutex-guarded state, Start/Stop), with the
// scheduling policy itself rewritten from container placement to the
// spec's tick phases.
package scheduler

import (
	"sync"
	"time"

	"strconv"

	"github.com/cuemby/grainstore/pkg/dispatch"
	"github.com/cuemby/grainstore/pkg/events"
	"github.com/cuemby/grainstore/pkg/log"
	"github.com/cuemby/grainstore/pkg/metrics"
	"github.com/cuemby/grainstore/pkg/task"
	"github.com/cuemby/grainstore/pkg/types"
	"github.com/cuemby/grainstore/pkg/wire"
	"github.com/rs/zerolog"
)

// Receiver is the out-of-scope packet-I/O collaborator (spec §1): the
// scheduler treats it as a source of pre-parsed request packets.
type Receiver interface {
	// Receive drains up to max pending requests without blocking past
	// the tick's receive phase. A nil/empty return is not an error.
	Receive(max int) []*wire.Request
}

// Transmitter is the out-of-scope packet-I/O collaborator that accepts
// pre-allocated, now-filled response packets.
type Transmitter interface {
	Transmit(resp *wire.Response)
}

// Config holds the tick's fixed budgets (spec §4.J, §5 deployment
// constants): how many packets to drain per receive phase, how many
// cycles may be spent per tick's execute phase, and the KEY_LEN/VAL_LEN
// used to size a pushback record.
type Config struct {
	ReceiveBatch int
	TickBudget   uint64
	KeyLen       int
	ValLen       int
	TickInterval time.Duration
}

// Scheduler drives one worker core's ready-queue and waiting-set.
type Scheduler struct {
	dispatcher  *dispatch.Dispatcher
	receiver    Receiver
	transmitter Transmitter
	broker      *events.Broker
	cfg         Config
	logger      zerolog.Logger

	mu      sync.Mutex
	ready   []task.Task
	waiting map[uint64]task.Task

	stopCh chan struct{}
}

// New builds a scheduler for one worker core.
func New(d *dispatch.Dispatcher, recv Receiver, xmit Transmitter, broker *events.Broker, cfg Config) *Scheduler {
	if cfg.ReceiveBatch <= 0 {
		cfg.ReceiveBatch = 64
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Millisecond
	}
	return &Scheduler{
		dispatcher:  d,
		receiver:    recv,
		transmitter: xmit,
		broker:      broker,
		cfg:         cfg,
		logger:      log.WithComponent("scheduler"),
		waiting:     make(map[uint64]task.Task),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the tick loop on its own goroutine, one per worker core.
func (s *Scheduler) Start() {
	go s.run()
}

// Stop stops the tick loop.
func (s *Scheduler) Stop() {
	close(s.stopCh)
}

func (s *Scheduler) run() {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopCh:
			return
		}
	}
}

// tick runs one full cooperative round: receive, execute, transmit (spec
// §4.J). Exported for tests that want to drive ticks deterministically
// instead of waiting on the ticker.
func (s *Scheduler) Tick() {
	s.tick()
}

func (s *Scheduler) tick() {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.TickLatency)

	s.receivePhase()
	s.executePhase()
}

// receivePhase drains up to ReceiveBatch packets and dispatches each one
// (spec §4.J step 1).
func (s *Scheduler) receivePhase() {
	reqs := s.receiver.Receive(s.cfg.ReceiveBatch)
	for _, req := range reqs {
		t, faultResp, err := s.dispatcher.Dispatch(req)
		if err != nil {
			s.logger.Error().Err(err).Uint64("stamp", req.Stamp).Msg("dispatch failed")
			continue
		}
		if t == nil {
			metrics.RequestsTotal.WithLabelValues(req.Opcode.String(), faultResp.Status.String()).Inc()
			s.transmitter.Transmit(faultResp)
			continue
		}

		s.mu.Lock()
		s.ready = append(s.ready, t)
		s.mu.Unlock()

		s.publish(events.EventTaskEnqueued, t.ID())
	}
}

// executePhase drains the ready-queue under the tick's cycle budget,
// per spec §4.J step 2.
func (s *Scheduler) executePhase() {
	var tickCycles uint64

	for tickCycles < s.cfg.TickBudget {
		s.mu.Lock()
		if len(s.ready) == 0 {
			s.mu.Unlock()
			return
		}
		t := s.ready[0]
		s.ready = s.ready[1:]
		s.mu.Unlock()

		metrics.TickReadyQueueDepth.Set(float64(len(s.ready)))

		state, cycles := t.Run()
		tickCycles += cycles

		s.handleResult(t, state)
	}
}

// handleResult applies spec §4.J step 2's per-state disposition: commit
// and transmit, re-enqueue at tail, pushback and transmit, or park in the
// waiting-set.
func (s *Scheduler) handleResult(t task.Task, state types.TaskState) {
	switch state {
	case types.TaskCompleted:
		req, resp, err := t.Commit()
		if err != nil {
			s.logger.Error().Err(err).Uint64("stamp", t.ID()).Msg("commit failed")
			return
		}
		_ = req
		metrics.RequestsTotal.WithLabelValues(resp.Opcode.String(), resp.Status.String()).Inc()
		s.transmitter.Transmit(resp)
		s.publish(events.EventTaskCompleted, t.ID())

	case types.TaskYielded:
		if t.PushbackReady() {
			_, resp, err := t.Pushback(s.cfg.KeyLen, s.cfg.ValLen)
			if err != nil {
				s.logger.Error().Err(err).Uint64("stamp", t.ID()).Msg("pushback failed")
				return
			}
			metrics.TasksPushedBack.Inc()
			metrics.RequestsTotal.WithLabelValues(resp.Opcode.String(), resp.Status.String()).Inc()
			s.transmitter.Transmit(resp)
			s.publish(events.EventTaskPushedBack, t.ID())
			return
		}
		s.enqueue(t)
		s.publish(events.EventTaskYielded, t.ID())

	case types.TaskWaiting:
		s.mu.Lock()
		s.waiting[t.ID()] = t
		s.mu.Unlock()
		metrics.TickWaitingSetDepth.Set(float64(len(s.waiting)))
		s.publish(events.EventTaskWaiting, t.ID())

	case types.TaskRunnable:
		s.enqueue(t)

	default:
		s.logger.Error().Uint64("stamp", t.ID()).Str("state", string(state)).Msg("unexpected task state after run")
	}
}

func (s *Scheduler) enqueue(t task.Task) {
	s.mu.Lock()
	s.ready = append(s.ready, t)
	s.mu.Unlock()
}

// Wake moves a WAITING task back to RUNNABLE on its next tick, per spec
// §4.J step 4: "incoming responses that match a waiting-set task-id wake
// the task back to RUNNABLE." Server-side this path is unused (spec §4.F:
// WAITING occurs only client-side), and pkg/replicaclient drives its
// replay with its own Run loop rather than a Scheduler, so nothing in
// this repository calls Wake.
func (s *Scheduler) Wake(taskID uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.waiting[taskID]
	if !ok {
		return false
	}
	delete(s.waiting, taskID)
	s.ready = append(s.ready, t)
	return true
}

// QueueDepths reports the current ready-queue and waiting-set sizes, for
// the metrics.Snapshot the owning process assembles each collection tick.
func (s *Scheduler) QueueDepths() (ready, waiting int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ready), len(s.waiting)
}

func (s *Scheduler) publish(t events.EventType, taskID uint64) {
	if s.broker == nil {
		return
	}
	s.broker.Publish(&events.Event{
		Type:     t,
		Message:  string(t),
		Metadata: map[string]string{"stamp": strconv.FormatUint(taskID, 10)},
	})
}
