package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
)

var (
	ErrNilPool   = errors.New("broker requires a streamer pool")
	ErrNilDialer = errors.New("broker requires a streamer dialer")
	ErrNilSink   = errors.New("broker requires a metrics sink")
)

// Broker owns the waiting queue and matches sessions against the pool. All
// queue and assignment mutations are serialized by one mutex; blocking work
// (dialing the worker leg) happens outside it and re-enters as session
// events.
type Broker struct {
	pool    core.Pool
	dialer  core.StreamerDialer
	sink    core.MetricsSink
	timings core.Timings

	mu          sync.Mutex
	queue       []*core.Session
	queued      map[domain.PlayerID]struct{}
	assignments map[domain.PlayerID]domain.StreamerID
}

// NewBroker rejects missing collaborators synchronously; a broker without a
// pool, dialer or sink must never exist.
func NewBroker(pool core.Pool, dialer core.StreamerDialer, sink core.MetricsSink, timings core.Timings) (*Broker, error) {
	if pool == nil {
		return nil, ErrNilPool
	}
	if dialer == nil {
		return nil, ErrNilDialer
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	b := &Broker{
		pool:        pool,
		dialer:      dialer,
		sink:        sink,
		timings:     timings,
		queued:      make(map[domain.PlayerID]struct{}),
		assignments: make(map[domain.PlayerID]domain.StreamerID),
	}
	if err := b.registerGauges(); err != nil {
		return nil, err
	}
	return b, nil
}

// OnPlayerConnected wraps a fresh client leg in a session and queues it.
func (b *Broker) OnPlayerConnected(conn core.PlayerConnection) *core.Session {
	s := core.NewSession(domain.NewPlayerID(), conn, b.timings, b.handleDrop, b.handleDisconnect)
	b.Enqueue(s)
	return s
}

// Enqueue appends the session to the waiting queue and attempts a drain.
// A session already present is left where it is.
func (b *Broker) Enqueue(s *core.Session) {
	b.mu.Lock()
	if _, ok := b.queued[s.ID()]; ok {
		b.mu.Unlock()
		log.Warn().Str("module", "app.broker").Str("player", string(s.ID())).
			Msg("session already queued")
		return
	}
	b.queue = append(b.queue, s)
	b.queued[s.ID()] = struct{}{}
	depth := len(b.queue)
	b.mu.Unlock()

	log.Info().Str("module", "app.broker").Str("player", string(s.ID())).
		Int("queue_depth", depth).Msg("session queued")
	b.Drain()
}

// OnStreamerSignal is invoked for any inbound data on a streamer control
// channel; any signal may have changed pool eligibility, so drain.
func (b *Broker) OnStreamerSignal() {
	b.Drain()
}

// Drain matches waiting sessions in strict FIFO order. The scan stops at the
// first session with no eligible streamer; later sessions keep their order
// for the next drain rather than jumping ahead.
func (b *Broker) Drain() {
	for {
		b.mu.Lock()
		if len(b.queue) == 0 {
			b.mu.Unlock()
			return
		}
		rec, ok := b.pool.NextEligible(time.Now())
		if !ok {
			b.mu.Unlock()
			return
		}
		s := b.queue[0]
		b.queue = b.queue[1:]
		delete(b.queued, s.ID())
		b.pool.SetAllocated(rec.ID, true)
		b.assignments[s.ID()] = rec.ID
		b.mu.Unlock()

		log.Info().Str("module", "app.broker").Str("player", string(s.ID())).
			Str("streamer", string(rec.ID)).Msg("session assigned")
		b.openLeg(s, rec)
	}
}

// openLeg dials the worker leg off the broker's critical path. A dial that
// never yields a connection frees the allocation and puts the session back in
// the queue, standing in for the error-then-close event pair a live leg
// produces.
func (b *Broker) openLeg(s *core.Session, rec domain.Streamer) {
	go func() {
		if err := b.dialer.Open(context.Background(), rec, s); err != nil {
			log.Warn().Err(err).Str("module", "app.broker").Str("player", string(s.ID())).
				Str("streamer", string(rec.ID)).Msg("streamer leg open failed")
			b.freeAllocation(s.ID())
			if s.PlayerOpen() && s.State() == core.StateWaiting {
				b.Enqueue(s)
			}
		}
	}()
}

// handleDrop consumes the session's drop signal: the streamer returns to the
// eligible pool (no quarantine) and the session re-enters the queue while its
// client leg is still open.
func (b *Broker) handleDrop(s *core.Session) {
	b.freeAllocation(s.ID())
	if !s.Requeue() {
		log.Info().Str("module", "app.broker").Str("player", string(s.ID())).
			Msg("dropped session abandoned, client leg closed")
		return
	}
	b.Enqueue(s)
}

// handleDisconnect consumes the session's disconnect signal: any held
// allocation is freed and the session leaves the queue immediately.
func (b *Broker) handleDisconnect(s *core.Session) {
	b.mu.Lock()
	if _, ok := b.queued[s.ID()]; ok {
		delete(b.queued, s.ID())
		for i, q := range b.queue {
			if q.ID() == s.ID() {
				b.queue = append(b.queue[:i], b.queue[i+1:]...)
				break
			}
		}
	}
	b.mu.Unlock()
	b.freeAllocation(s.ID())
}

// freeAllocation clears the streamer's allocation flag, if the session held
// one, and re-drives the queue since eligibility may have changed.
func (b *Broker) freeAllocation(id domain.PlayerID) {
	b.mu.Lock()
	sid, ok := b.assignments[id]
	delete(b.assignments, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	b.pool.SetAllocated(sid, false)
	log.Info().Str("module", "app.broker").Str("player", string(id)).
		Str("streamer", string(sid)).Msg("allocation freed")
	b.Drain()
}

// QueueDepth reports the number of sessions currently waiting.
func (b *Broker) QueueDepth() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// WaitingSessions returns the queue contents in order.
func (b *Broker) WaitingSessions() []domain.PlayerID {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.PlayerID, 0, len(b.queue))
	for _, s := range b.queue {
		out = append(out, s.ID())
	}
	return out
}
