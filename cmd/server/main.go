package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/Cast/internal/adapters/http"
	"github.com/dkeye/Cast/internal/adapters/metrics"
	playerws "github.com/dkeye/Cast/internal/adapters/signal"
	"github.com/dkeye/Cast/internal/adapters/streamer"
	"github.com/dkeye/Cast/internal/app"
	"github.com/dkeye/Cast/internal/config"
	"github.com/dkeye/Cast/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	pool := app.NewStreamerPool(cfg.LivenessWindow, cfg.ForceReady)
	sink := metrics.NewPrometheusSink()
	dialer := streamer.NewWSLegDialer()

	broker, err := app.NewBroker(pool, dialer, sink, core.Timings{
		ClientPingPeriod:    cfg.ClientPingPeriod,
		StreamerPingTimeout: cfg.StreamerPingTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct broker")
	}

	control, err := streamer.NewControlListener(fmt.Sprintf(":%d", cfg.ControlPort), pool, broker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct control listener")
	}
	go func() {
		if err := control.ListenAndServe(ctx); err != nil {
			log.Error().Err(err).Msg("control channel error")
			cancel()
		}
	}()

	players, err := playerws.NewPlayerWSController(broker)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct player controller")
	}

	r, err := router.SetupRouter(ctx, cfg, players, sink)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to setup router")
	}
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Int("control_port", cfg.ControlPort).Msg("Cast matchmaker started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
