package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"
	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/services/devicesync"
	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/services/gateway/app"
	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/services/weather"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/broker"
)

func setupLogger(level, format string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

func main() {
	cfg := loadConfig()
	setupLogger(cfg.LogLevel, cfg.LogFormat)

	catalog, err := model.LoadCatalog(cfg.DevicesConfigPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DevicesConfigPath).Msg("load device catalog")
	}
	log.Info().Int("poles", len(catalog.Poles)).Int("lights", len(catalog.Lights())).
		Int("beacons", len(catalog.Beacons)).Msg("device catalog loaded")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// MQTT
	devices := devicesync.New(devicesync.Config{
		Broker: broker.Config{
			Host:           cfg.MQTTBroker,
			Port:           cfg.MQTTPort,
			Keepalive:      time.Duration(cfg.MQTTKeepalive) * time.Second,
			ClientID:       cfg.MQTTClientID,
			User:           cfg.MQTTUser,
			Password:       cfg.MQTTPassword,
			ConnectTimeout: ms(cfg.MQTTConnectTimeoutMs),
		},
		PublishTimeout:    ms(cfg.MQTTPublishTimeoutMs),
		StandardWildcards: cfg.MQTTStandardWildcards,
	})
	if !devices.Connect() {
		log.Warn().Msg("initial mqtt connect failed, supervisor will retry")
	}
	go broker.Supervise(ctx, devices, broker.SuperviseConfig{
		CheckInterval: ms(cfg.ReconnectCheckMs),
		MaxInterval:   ms(cfg.ReconnectMaxMs),
	}, log.Logger.With().Str("component", "supervisor").Logger())

	// first sync: ask every light for its level once the session is up
	go func() {
		deadline := time.Now().Add(ms(cfg.MQTTConnectTimeoutMs) + 5*time.Second)
		for !devices.Connected() && time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return
			case <-time.After(100 * time.Millisecond):
			}
		}
		if !devices.Connected() {
			return
		}
		sent := 0
		for _, l := range catalog.Lights() {
			if devices.GetLightPower(l.MAC, l.Segment) {
				sent++
			}
		}
		log.Info().Int("requested", sent).Msg("initial light status requests sent")
	}()

	// Weather station
	host, port := cfg.stationAddr(catalog)
	wcfg := weather.DefaultConfig(host, port)
	wcfg.Timeout = ms(cfg.WeatherTimeoutMs)
	wcfg.BreakerFailures = cfg.WeatherBreakerFailures
	wcfg.BreakerOpenFor = ms(cfg.WeatherBreakerOpenMs)
	station := weather.New(wcfg)
	station.Start(ctx, time.Duration(cfg.WeatherPollIntervalS)*time.Second)

	// HTTP
	gw := app.NewGateway(app.Config{StatusCoalesce: ms(cfg.StatusCoalesceMs)}, devices, station, catalog)
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("address", srv.Addr).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	station.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	devices.Disconnect()
}
