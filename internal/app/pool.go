package app

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cast/internal/domain"
)

// StreamerPool is the shared registry of backend streamers. The control
// channel adapter maintains readiness, liveness and client counts; the broker
// only reads records and flips the allocation flag. Scans walk streamers in
// registration order so drains are deterministic.
type StreamerPool struct {
	mu             sync.RWMutex
	byID           map[domain.StreamerID]*domain.Streamer
	order          []domain.StreamerID
	livenessWindow time.Duration
	forceReady     bool
}

func NewStreamerPool(livenessWindow time.Duration, forceReady bool) *StreamerPool {
	return &StreamerPool{
		byID:           make(map[domain.StreamerID]*domain.Streamer),
		livenessWindow: livenessWindow,
		forceReady:     forceReady,
	}
}

func (p *StreamerPool) Register(s *domain.Streamer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.byID[s.ID]; !ok {
		p.order = append(p.order, s.ID)
	}
	p.byID[s.ID] = s
	log.Info().Str("module", "app.pool").Str("streamer", string(s.ID)).
		Str("address", s.Address).Int("port", s.Port).Msg("streamer registered")
}

// Heartbeat refreshes the liveness timestamp for a streamer.
func (p *StreamerPool) Heartbeat(id domain.StreamerID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.byID[id]; ok {
		s.LastHeartbeatAt = time.Now()
	} else {
		log.Warn().Str("module", "app.pool").Str("streamer", string(id)).
			Msg("heartbeat from unregistered streamer")
	}
}

func (p *StreamerPool) SetReady(id domain.StreamerID, ready bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.byID[id]; ok {
		s.Ready = ready
		log.Info().Str("module", "app.pool").Str("streamer", string(id)).
			Bool("ready", ready).Msg("streamer readiness updated")
	}
}

// AddClients adjusts the streamer's own connected-client count as reported
// over the control channel. Never driven by the broker.
func (p *StreamerPool) AddClients(id domain.StreamerID, delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.byID[id]; ok {
		s.ConnectedClients += delta
		if s.ConnectedClients < 0 {
			s.ConnectedClients = 0
		}
	}
}

func (p *StreamerPool) SetAllocated(id domain.StreamerID, allocated bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.byID[id]; ok {
		s.Allocated = allocated
		log.Debug().Str("module", "app.pool").Str("streamer", string(id)).
			Bool("allocated", allocated).Msg("allocation updated")
	}
}

// Get returns a snapshot copy of a record.
func (p *StreamerPool) Get(id domain.StreamerID) (domain.Streamer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.byID[id]; ok {
		return *s, true
	}
	return domain.Streamer{}, false
}

// NextEligible returns a snapshot of the first eligible streamer in
// registration order. First match wins; there is no load-based ranking.
func (p *StreamerPool) NextEligible(now time.Time) (domain.Streamer, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, id := range p.order {
		s := p.byID[id]
		if s.EligibleAt(now, p.livenessWindow, p.forceReady) {
			return *s, true
		}
	}
	return domain.Streamer{}, false
}

func (p *StreamerPool) CountEligible(now time.Time) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, s := range p.byID {
		if s.EligibleAt(now, p.livenessWindow, p.forceReady) {
			n++
		}
	}
	return n
}

// CountReady counts streamers advertising readiness within the liveness
// window, allocated or not. Feeds the demand ratio.
func (p *StreamerPool) CountReady(now time.Time) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, s := range p.byID {
		if (s.Ready || p.forceReady) && now.Sub(s.LastHeartbeatAt) < p.livenessWindow {
			n++
		}
	}
	return n
}

func (p *StreamerPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byID)
}
