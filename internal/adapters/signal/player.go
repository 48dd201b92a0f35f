package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cast/internal/app"
	"github.com/dkeye/Cast/internal/core"
)

var ErrBackpressure = errors.New("backpressure")

const writeWait = 5 * time.Second

// PlayerWSController accepts inbound player connections and hands them to
// the broker.
type PlayerWSController struct {
	Broker *app.Broker
}

func NewPlayerWSController(broker *app.Broker) (*PlayerWSController, error) {
	if broker == nil {
		return nil, errors.New("player controller requires a broker")
	}
	return &PlayerWSController{Broker: broker}, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsPlayerConn implements core.PlayerConnection over a gorilla websocket.
type wsPlayerConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsPlayerConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Ping writes a control frame; gorilla permits this concurrently with the
// write pump.
func (c *wsPlayerConn) Ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *wsPlayerConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandlePlayer upgrades the request and starts the session. Query parameters
// on the connecting URL are accepted but unused here.
func (ctl *PlayerWSController) HandlePlayer(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.signal").Msg("ws upgrade")
		return
	}

	conn := &wsPlayerConn{
		conn: ws,
		send: make(chan core.Frame, 32),
	}

	session := ctl.Broker.OnPlayerConnected(conn)
	ws.SetPongHandler(func(string) error {
		session.PongReceived()
		return nil
	})
	log.Info().Str("module", "adapters.signal").Str("player", string(session.ID())).
		Msg("new player connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, session, conn)
}

func (ctl *PlayerWSController) writePump(ctx context.Context, c *wsPlayerConn) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "adapters.signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "adapters.signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "adapters.signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump relays client payloads into the session. Read errors and closes
// are treated identically: the session disconnects.
func (ctl *PlayerWSController) readPump(ctx context.Context, session *core.Session, c *wsPlayerConn) {
	defer func() {
		log.Info().Str("module", "adapters.signal").Str("player", string(session.ID())).
			Msg("readPump closing")
		session.PlayerClosed()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "adapters.signal").
					Str("player", string(session.ID())).Msg("readPump read error")
				return
			}
			session.ForwardToStreamer(data)
		}
	}
}
