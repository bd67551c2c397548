package broker

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

var errStillDown = errors.New("broker still unreachable")

// Connector is a session that can be (re)established on demand.
type Connector interface {
	Connect() bool
	Connected() bool
}

type SuperviseConfig struct {
	CheckInterval   time.Duration // how often the session is checked
	InitialInterval time.Duration // first retry delay
	MaxInterval     time.Duration // retry delay ceiling
	// SettleTime is how long a successful Connect gets to report the session
	// as connected before the attempt counts as failed.
	SettleTime time.Duration
}

func (c SuperviseConfig) withDefaults() SuperviseConfig {
	if c.CheckInterval <= 0 {
		c.CheckInterval = 5 * time.Second
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = time.Minute
	}
	if c.SettleTime <= 0 {
		c.SettleTime = 2 * time.Second
	}
	return c
}

// Supervise keeps c connected until ctx is done. Whenever the session is
// down it retries Connect with exponential backoff. It blocks; run it in its
// own goroutine.
func Supervise(ctx context.Context, c Connector, cfg SuperviseConfig, log zerolog.Logger) {
	cfg = cfg.withDefaults()

	tick := time.NewTicker(cfg.CheckInterval)
	defer tick.Stop()

	for {
		if !c.Connected() {
			reconnect(ctx, c, cfg, log)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}

func reconnect(ctx context.Context, c Connector, cfg SuperviseConfig, log zerolog.Logger) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = 0 // until ctx ends

	op := func() error {
		if !c.Connect() {
			return errStillDown
		}
		if waitConnected(ctx, c, cfg.SettleTime) {
			return nil
		}
		return errStillDown
	}
	notify := func(err error, next time.Duration) {
		log.Warn().Err(err).Dur("retry_in", next).Msg("mqtt reconnect failed")
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(bo, ctx), notify); err != nil {
		log.Debug().Err(err).Msg("mqtt reconnect loop stopped")
		return
	}
	log.Info().Msg("mqtt session re-established")
}

func waitConnected(ctx context.Context, c Connector, settle time.Duration) bool {
	deadline := time.Now().Add(settle)
	for {
		if c.Connected() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(20 * time.Millisecond):
		}
	}
}
