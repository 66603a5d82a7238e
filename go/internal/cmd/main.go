package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/parthhay/deskroguelikeproto/go/internal/config"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	// configure zerolog console output and level
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	services, err := setupServices(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("setup services")
	}
	defer services.Close()

	log.Info().
		Str("server", cfg.ServerURL).
		Str("client_id", services.Client.ClientID()).
		Str("gateway", cfg.Gateway.Addr).
		Msg("desk client starting")

	// signal-aware context
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return services.Client.Start(gctx) })
	g.Go(func() error { return services.Gateway.Start(gctx) })

	if cfg.PlayerName != "" {
		g.Go(func() error {
			if err := services.Client.Dispatcher().Claim(gctx, cfg.PlayerName); err != nil {
				log.Warn().Err(err).Str("name", cfg.PlayerName).Msg("auto-claim failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("desk client exited unexpectedly")
		stop()
		services.Close()
		os.Exit(1)
	}
	log.Info().Msg("graceful shutdown complete")
}
