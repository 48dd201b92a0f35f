package core

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cast/internal/domain"
)

type State int

const (
	StateWaiting State = iota
	StateMatched
	StateDropped
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateWaiting:
		return "waiting"
	case StateMatched:
		return "matched"
	case StateDropped:
		return "dropped"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

const (
	defaultClientPingPeriod    = 30 * time.Second
	defaultStreamerPingTimeout = 31 * time.Second
)

// Timings holds both heartbeat schedules. Zero values fall back to the
// defaults above.
type Timings struct {
	ClientPingPeriod    time.Duration
	StreamerPingTimeout time.Duration
}

var ErrNotWaiting = errors.New("session is not waiting")

// Session is the per-player state machine. It owns the client leg from
// creation and the streamer leg once matched, and is responsible for tearing
// both down on termination. Drop and disconnect each have exactly one
// consumer: the broker.
type Session struct {
	id           domain.PlayerID
	player       PlayerConnection
	timings      Timings
	onDrop       func(*Session)
	onDisconnect func(*Session)

	mu            sync.Mutex
	state         State
	playerOpen    bool
	streamer      StreamerConnection
	pongSeen      bool
	probeStop     chan struct{}
	probeStopped  bool
	streamerTimer *time.Timer
}

// NewSession creates a waiting session, notifies the player and starts the
// client liveness probe.
func NewSession(
	id domain.PlayerID,
	player PlayerConnection,
	timings Timings,
	onDrop func(*Session),
	onDisconnect func(*Session),
) *Session {
	if timings.ClientPingPeriod <= 0 {
		timings.ClientPingPeriod = defaultClientPingPeriod
	}
	if timings.StreamerPingTimeout <= 0 {
		timings.StreamerPingTimeout = defaultStreamerPingTimeout
	}
	s := &Session{
		id:           id,
		player:       player,
		timings:      timings,
		onDrop:       onDrop,
		onDisconnect: onDisconnect,
		state:        StateWaiting,
		playerOpen:   true,
		pongSeen:     true,
		probeStop:    make(chan struct{}),
	}
	s.sendNotice(waitingNotice())
	go s.probeLoop()
	log.Info().Str("module", "core.session").Str("player", string(id)).Msg("session waiting")
	return s
}

func (s *Session) ID() domain.PlayerID { return s.id }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PlayerOpen reports whether the client leg is still up; the broker consults
// it before re-queuing a dropped session.
func (s *Session) PlayerOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playerOpen
}

// AttachStreamer moves the session to matched, arms the worker-leg deadline
// and notifies the player with the streamer descriptor. Returns ErrNotWaiting
// if the session left the waiting state while the dial was in flight.
func (s *Session) AttachStreamer(conn StreamerConnection, desc StreamerDescriptor) error {
	s.mu.Lock()
	if s.state != StateWaiting {
		st := s.state
		s.mu.Unlock()
		log.Warn().Str("module", "core.session").Str("player", string(s.id)).
			Stringer("state", st).Msg("streamer leg opened for a session no longer waiting")
		return ErrNotWaiting
	}
	s.streamer = conn
	s.state = StateMatched
	s.streamerTimer = time.AfterFunc(s.timings.StreamerPingTimeout, s.streamerDeadlineExpired)
	s.mu.Unlock()

	s.sendNotice(matchedNotice(desc))
	log.Info().Str("module", "core.session").Str("player", string(s.id)).
		Str("streamer", string(desc.ID)).Msg("session matched")
	return nil
}

// RenewStreamerDeadline re-arms the worker-leg liveness deadline. Called by
// the leg adapter on every probe received from the streamer.
func (s *Session) RenewStreamerDeadline() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateMatched && s.streamerTimer != nil {
		s.streamerTimer.Reset(s.timings.StreamerPingTimeout)
	}
}

func (s *Session) streamerDeadlineExpired() {
	log.Warn().Str("module", "core.session").Str("player", string(s.id)).
		Msg("streamer liveness deadline expired, terminating leg")
	s.StreamerClosed()
}

// StreamerClosed drives matched → dropped: the leg is torn down, the player
// is told the streamer dropped, and the drop signal is emitted so the broker
// can free the allocation and decide on re-queuing. Safe to call from any
// leg-failure path; only the first call in the matched state has effect.
func (s *Session) StreamerClosed() {
	s.mu.Lock()
	if s.state != StateMatched {
		s.mu.Unlock()
		return
	}
	if s.streamerTimer != nil {
		s.streamerTimer.Stop()
		s.streamerTimer = nil
	}
	leg := s.streamer
	s.streamer = nil
	s.state = StateDropped
	s.mu.Unlock()

	if leg != nil {
		leg.Close()
	}
	s.sendNotice(droppedNotice())
	log.Info().Str("module", "core.session").Str("player", string(s.id)).Msg("streamer dropped")
	if s.onDrop != nil {
		s.onDrop(s)
	}
}

// Requeue performs dropped → waiting on behalf of the broker. It refuses when
// the client leg already closed; such sessions are abandoned.
func (s *Session) Requeue() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateDropped || !s.playerOpen {
		return false
	}
	s.state = StateWaiting
	return true
}

// PlayerClosed drives any non-terminal state to disconnected: the client
// probe stops, the streamer leg (if any) is closed and the disconnect signal
// is emitted. Idempotent.
func (s *Session) PlayerClosed() {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.state = StateDisconnected
	s.playerOpen = false
	if !s.probeStopped {
		s.probeStopped = true
		close(s.probeStop)
	}
	if s.streamerTimer != nil {
		s.streamerTimer.Stop()
		s.streamerTimer = nil
	}
	leg := s.streamer
	s.streamer = nil
	s.mu.Unlock()

	if leg != nil {
		leg.Close()
	}
	s.player.Close()
	log.Info().Str("module", "core.session").Str("player", string(s.id)).Msg("session disconnected")
	if s.onDisconnect != nil {
		s.onDisconnect(s)
	}
}

// ForwardToStreamer relays a client payload to the worker leg. Payloads with
// no open leg are discarded; relay never buffers.
func (s *Session) ForwardToStreamer(data Frame) {
	s.mu.Lock()
	leg := s.streamer
	s.mu.Unlock()
	if leg == nil {
		log.Debug().Str("module", "core.session").Str("player", string(s.id)).
			Int("bytes", len(data)).Msg("discarding client payload, no streamer leg")
		return
	}
	if err := leg.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "core.session").Str("player", string(s.id)).
			Msg("relay to streamer failed")
	}
}

// ForwardToPlayer relays a streamer payload to the client leg.
func (s *Session) ForwardToPlayer(data Frame) {
	s.mu.Lock()
	open := s.playerOpen
	s.mu.Unlock()
	if !open {
		log.Debug().Str("module", "core.session").Str("player", string(s.id)).
			Int("bytes", len(data)).Msg("discarding streamer payload, client leg closed")
		return
	}
	if err := s.player.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "core.session").Str("player", string(s.id)).
			Msg("relay to player failed")
	}
}

// PongReceived marks the current client probe answered.
func (s *Session) PongReceived() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pongSeen = true
}

func (s *Session) probeLoop() {
	t := time.NewTicker(s.timings.ClientPingPeriod)
	defer t.Stop()
	for {
		select {
		case <-s.probeStop:
			return
		case <-t.C:
			if !s.probeTick() {
				return
			}
		}
	}
}

// probeTick terminates the client leg when the previous probe went
// unanswered, otherwise sends the next probe. This bounds an unresponsive
// client to one period past the last answered probe.
func (s *Session) probeTick() bool {
	s.mu.Lock()
	if s.state == StateDisconnected {
		s.mu.Unlock()
		return false
	}
	if !s.pongSeen {
		s.mu.Unlock()
		log.Warn().Str("module", "core.session").Str("player", string(s.id)).
			Msg("client liveness probe unanswered, terminating")
		s.PlayerClosed()
		return false
	}
	s.pongSeen = false
	s.mu.Unlock()

	if err := s.player.Ping(); err != nil {
		log.Warn().Err(err).Str("module", "core.session").Str("player", string(s.id)).
			Msg("client probe send failed, terminating")
		s.PlayerClosed()
		return false
	}
	return true
}

func (s *Session) sendNotice(n Notice) {
	b, err := json.Marshal(n)
	if err != nil {
		log.Error().Err(err).Str("module", "core.session").Msg("notice marshal")
		return
	}
	if err := s.player.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "core.session").Str("player", string(s.id)).
			Msg("notice send failed")
	}
}
