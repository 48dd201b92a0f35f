package core

import (
	"context"
	"time"

	"github.com/dkeye/Cast/internal/domain"
)

// Frame is a raw text payload relayed verbatim between legs.
type Frame []byte

// PlayerConnection is the inbound client leg transport.
// Owned by the adapter; the adapter must Close() it.
type PlayerConnection interface {
	TrySend(Frame) error
	Ping() error
	Close()
}

// StreamerConnection is the outbound worker leg transport.
type StreamerConnection interface {
	TrySend(Frame) error
	Close()
}

// Pool is the broker-facing view of the shared streamer registry. The broker
// reads records and writes only the allocation flag.
type Pool interface {
	NextEligible(now time.Time) (domain.Streamer, bool)
	SetAllocated(id domain.StreamerID, allocated bool)
	CountEligible(now time.Time) int
	CountReady(now time.Time) int
}

// StreamerDialer opens the worker leg of a session. Open attaches the new leg
// to the session before any relay traffic flows; a session that terminated
// while the dial was in flight must be reported as an error.
type StreamerDialer interface {
	Open(ctx context.Context, streamer domain.Streamer, session *Session) error
}

// MetricsSink exposes named measurement points. The collect callback is
// invoked on every scrape and must report a current value.
type MetricsSink interface {
	RegisterGauge(name, help string, collect func() float64) error
}
