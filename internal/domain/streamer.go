// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrAddressEmpty = errors.New("streamer address empty")
	ErrPortRange    = errors.New("streamer port out of range")
)

type StreamerID string

// Streamer is the pool record for one backend streaming worker. Liveness and
// readiness fields are maintained by the control channel; the broker writes
// only Allocated.
type Streamer struct {
	ID               StreamerID
	Address          string
	Port             int
	Ready            bool
	Allocated        bool
	ConnectedClients int
	LastHeartbeatAt  time.Time
}

// NewStreamer validates the record up front so the pool never holds an
// unreachable entry.
func NewStreamer(address string, port int) (*Streamer, error) {
	if address == "" {
		return nil, ErrAddressEmpty
	}
	if port <= 0 || port > 65535 {
		return nil, ErrPortRange
	}
	return &Streamer{
		ID:              StreamerID(uuid.NewString()),
		Address:         address,
		Port:            port,
		LastHeartbeatAt: time.Now(),
	}, nil
}

// EligibleAt reports whether the streamer can take a new session. forceReady
// bypasses the Ready flag only; all other checks stay in force.
func (s *Streamer) EligibleAt(now time.Time, livenessWindow time.Duration, forceReady bool) bool {
	if s.Allocated || s.ConnectedClients != 0 {
		return false
	}
	if now.Sub(s.LastHeartbeatAt) >= livenessWindow {
		return false
	}
	return s.Ready || forceReady
}
