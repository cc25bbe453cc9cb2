package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"fractal/internal/common"
	"fractal/internal/config"
	"fractal/internal/engine"
	"fractal/internal/net"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML config file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("unable to load config")
	}

	zerolog.SetGlobalLevel(cfg.LogLevel())
	if cfg.Log.Pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	// Setup the share ledger engine.
	admin, err := cfg.AdminAddress()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid admin address")
	}
	eng, err := engine.New(engine.Options{
		Admin:  admin,
		Supply: cfg.Ledger.Supply,
		Policy: cfg.Policy(),
	})
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create engine")
	}
	eng.SetReporter(engine.LogReporter{})

	venue, err := cfg.VenueAddress()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid venue address")
	}
	if venue != common.ZeroAddress {
		if err := eng.SetVenue(engine.As(admin), venue); err != nil {
			log.Fatal().Err(err).Msg("unable to set venue")
		}
	}

	// Setup the TCP server. Events go to the log and to every session.
	srv := net.New(cfg.Server.Address, cfg.Server.Port, eng, net.Options{
		Workers:     cfg.Server.Workers,
		ConnTimeout: cfg.Server.ConnTimeout,
	})
	eng.SetReporter(engine.MultiReporter{engine.LogReporter{}, srv})

	log.Info().
		Str("admin", admin.Hex()).
		Uint64("supply", eng.Supply()).
		Str("roster_policy", cfg.Policy().String()).
		Msg("ledger ready")

	// Block on running the server.
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}
