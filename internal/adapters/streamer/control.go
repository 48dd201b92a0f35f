package streamer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cast/internal/app"
	"github.com/dkeye/Cast/internal/domain"
)

// SignalNotifier is told about every inbound control-channel message; the
// broker is its only implementation.
type SignalNotifier interface {
	OnStreamerSignal()
}

// ControlListener accepts one plain TCP connection per streamer and maintains
// the pool from the newline-delimited JSON status messages it carries.
// Channel errors are logged only; a dead streamer ages out of eligibility via
// the liveness window rather than being evicted here.
type ControlListener struct {
	addr   string
	pool   *app.StreamerPool
	notify SignalNotifier
}

func NewControlListener(addr string, pool *app.StreamerPool, notify SignalNotifier) (*ControlListener, error) {
	if pool == nil {
		return nil, errors.New("control listener requires a pool")
	}
	if notify == nil {
		return nil, errors.New("control listener requires a signal notifier")
	}
	return &ControlListener{addr: addr, pool: pool, notify: notify}, nil
}

func (l *ControlListener) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return err
	}
	log.Info().Str("module", "adapters.control").Str("addr", l.addr).Msg("control channel listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go l.serve(conn)
	}
}

type controlMessage struct {
	Type    string `json:"type"`
	Address string `json:"address,omitempty"`
	Port    int    `json:"port,omitempty"`
	Ready   bool   `json:"ready,omitempty"`
}

func (l *ControlListener) serve(conn net.Conn) {
	defer conn.Close()

	var id domain.StreamerID
	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		l.handleMessage(conn, &id, line)
		// Any inbound data may have changed eligibility.
		l.notify.OnStreamerSignal()
	}
	if err := sc.Err(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.control").Str("streamer", string(id)).
			Msg("control channel error")
	}
	log.Info().Str("module", "adapters.control").Str("streamer", string(id)).
		Msg("control channel closed")
}

func (l *ControlListener) handleMessage(conn net.Conn, id *domain.StreamerID, line []byte) {
	var msg controlMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		log.Warn().Err(err).Str("module", "adapters.control").Msg("bad control message")
		return
	}

	if msg.Type == "connect" {
		address := msg.Address
		if address == "" {
			if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
				address = host
			}
		}
		rec, err := domain.NewStreamer(address, msg.Port)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.control").Msg("rejecting streamer")
			return
		}
		rec.Ready = msg.Ready
		l.pool.Register(rec)
		*id = rec.ID

		reply, _ := json.Marshal(map[string]any{"type": "identity", "id": rec.ID})
		if _, err := conn.Write(append(reply, '\n')); err != nil {
			log.Warn().Err(err).Str("module", "adapters.control").Msg("identity reply failed")
		}
		return
	}

	if *id == "" {
		log.Warn().Str("module", "adapters.control").Str("type", msg.Type).
			Msg("message before connect, ignoring")
		return
	}

	switch msg.Type {
	case "ping":
		l.pool.Heartbeat(*id)
	case "ready":
		l.pool.SetReady(*id, msg.Ready)
		l.pool.Heartbeat(*id)
	case "clientConnected":
		l.pool.AddClients(*id, 1)
		l.pool.Heartbeat(*id)
	case "clientDisconnected":
		l.pool.AddClients(*id, -1)
		l.pool.Heartbeat(*id)
	default:
		log.Warn().Str("module", "adapters.control").Str("type", msg.Type).Msg("unknown control message")
	}
}
