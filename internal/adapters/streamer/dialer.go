// Package streamer holds the worker-side adapters: the control channel
// listener maintaining the pool and the dialer opening the worker leg of a
// session.
package streamer

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cast/internal/core"
	"github.com/dkeye/Cast/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const legWriteWait = 5 * time.Second

// WSLegDialer opens outbound websocket legs to streamers, passing the
// session identity as a query parameter so the streamer can correlate it.
type WSLegDialer struct {
	dialer *websocket.Dialer
}

func NewWSLegDialer() *WSLegDialer {
	return &WSLegDialer{dialer: websocket.DefaultDialer}
}

// wsStreamerLeg implements core.StreamerConnection.
type wsStreamerLeg struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (l *wsStreamerLeg) TrySend(f core.Frame) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return errors.New("connection closed")
	}
	select {
	case l.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (l *wsStreamerLeg) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.send)
	_ = l.conn.Close()
	l.mu.Unlock()
}

// Open implements core.StreamerDialer. The leg is attached to the session
// before the pumps start, so no relay or close event can outrun the matched
// transition.
func (d *WSLegDialer) Open(ctx context.Context, rec domain.Streamer, session *core.Session) error {
	u := url.URL{
		Scheme:   "ws",
		Host:     net.JoinHostPort(rec.Address, strconv.Itoa(rec.Port)),
		RawQuery: "player=" + url.QueryEscape(string(session.ID())),
	}
	ws, _, err := d.dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}

	leg := &wsStreamerLeg{
		conn: ws,
		send: make(chan core.Frame, 32),
	}
	// Every probe from the streamer renews the session's liveness deadline.
	ws.SetPingHandler(func(appData string) error {
		session.RenewStreamerDeadline()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(legWriteWait))
	})

	desc := core.StreamerDescriptor{ID: rec.ID, Address: rec.Address, Port: rec.Port}
	if err := session.AttachStreamer(leg, desc); err != nil {
		leg.Close()
		return err
	}

	go d.writePump(leg)
	go d.readPump(session, leg)
	log.Info().Str("module", "adapters.streamer").Str("player", string(session.ID())).
		Str("url", u.String()).Msg("streamer leg opened")
	return nil
}

func (d *WSLegDialer) writePump(l *wsStreamerLeg) {
	for data := range l.send {
		if err := l.conn.SetWriteDeadline(time.Now().Add(legWriteWait)); err != nil {
			return
		}
		if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Debug().Err(err).Str("module", "adapters.streamer").Msg("leg write error")
			return
		}
	}
}

func (d *WSLegDialer) readPump(session *core.Session, l *wsStreamerLeg) {
	defer func() {
		l.Close()
		session.StreamerClosed()
	}()
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			log.Debug().Err(err).Str("module", "adapters.streamer").
				Str("player", string(session.ID())).Msg("leg read error")
			return
		}
		session.ForwardToPlayer(data)
	}
}
