package http

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Cast/internal/adapters/metrics"
	"github.com/dkeye/Cast/internal/adapters/signal"
	"github.com/dkeye/Cast/internal/config"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware tags browsers with a stable token. The matchmaker
// itself keys sessions by connection, not by this cookie.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SetupRouter wires the player endpoint, the peer-connectivity document and
// the metrics scrape endpoint.
func SetupRouter(
	ctx context.Context,
	cfg *config.Config,
	players *signal.PlayerWSController,
	sink *metrics.PrometheusSink,
) (*gin.Engine, error) {
	if cfg == nil {
		return nil, errors.New("router requires a config")
	}
	if players == nil {
		return nil, errors.New("router requires a player controller")
	}
	if sink == nil {
		return nil, errors.New("router requires a metrics sink")
	}

	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(ClientTokenMiddleware())

	r.GET("/ws/player", func(c *gin.Context) {
		players.HandlePlayer(ctx, c)
	})

	api := r.Group("/api")
	api.GET("/peer-config", PeerConfigHandler(cfg))

	r.GET("/metrics", gin.WrapH(sink.Handler()))

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r, nil
}

// PeerConfigHandler serves the static peer-connectivity configuration
// document. Plain request/response; no matching logic.
func PeerConfigHandler(cfg *config.Config) gin.HandlerFunc {
	servers := make([]webrtc.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	doc := gin.H{
		"type": "config",
		"peerConnectionOptions": gin.H{
			"iceServers": servers,
		},
	}
	return func(c *gin.Context) {
		c.JSON(200, doc)
	}
}
