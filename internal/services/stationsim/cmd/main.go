package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/services/stationsim"
)

func main() {
	addr := flag.String("addr", ":2323", "listen address")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random walk seed")
	debug := flag.Bool("debug", false, "log every served connection")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if !*debug {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := stationsim.NewServer(stationsim.NewDataGenerator(*seed))
	if err := srv.ListenAndServe(ctx, *addr); err != nil {
		log.Fatal().Err(err).Msg("station simulator failed")
	}
	log.Info().Msg("station simulator stopped")
}
