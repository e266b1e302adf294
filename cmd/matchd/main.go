// Command matchd runs a single-symbol matching engine behind a TCP wire
// listener. Process lifecycle, config loading and logging setup are
// boundary concerns (spec.md §1); this file is where they live, grounded
// on the teacher's cmd/main.go + cmd/server/server.go.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"garm/internal/config"
	"garm/internal/engine"
	"garm/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML/JSON/TOML config file (optional)")
	address := flag.String("address", "0.0.0.0", "listen address")
	port := flag.Int("port", 9001, "listen port")
	verbose := flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadViper(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
		cfg = loaded
	}
	if cfg.Symbol == "" {
		log.Fatal().Msg("config: symbol is required (set it in the file passed with -config)")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	eng := engine.New(cfg)
	eng.Start(ctx)

	srv := server.New(*address, *port, eng)
	go func() {
		if err := srv.Run(ctx); err != nil {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	eng.Stop()
	if err := eng.Wait(); err != nil {
		log.Error().Err(err).Msg("engine exited with error")
	}
}
