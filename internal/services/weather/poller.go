// Package weather polls the GIOM 3000 weather station over its plain TCP
// menu interface and keeps the most recent parsed reading.
package weather

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/metrics"
	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"
)

// DialFunc opens the station connection.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

type Config struct {
	Host          string
	Port          int
	Timeout       time.Duration // socket connect and per read/write deadline
	MenuDelay     time.Duration // settle time before reading the menu
	ResponseDelay time.Duration // settle time before reading the answer
	Selection     string        // menu entry that prints weather information
	BufferSize    int

	// BreakerFailures consecutive failed polls open the breaker for
	// BreakerOpenFor. Zero disables it.
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = 23
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MenuDelay < 0 {
		c.MenuDelay = 0
	}
	if c.ResponseDelay < 0 {
		c.ResponseDelay = 0
	}
	if c.Selection == "" {
		c.Selection = "1"
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 4096
	}
	if c.BreakerOpenFor <= 0 {
		c.BreakerOpenFor = 30 * time.Second
	}
}

// DefaultConfig returns the station timings used in the field.
func DefaultConfig(host string, port int) Config {
	c := Config{
		Host:          host,
		Port:          port,
		MenuDelay:     500 * time.Millisecond,
		ResponseDelay: time.Second,
	}
	c.applyDefaults()
	return c
}

type Option func(*Poller)

func WithLogger(l zerolog.Logger) Option {
	return func(p *Poller) { p.log = l }
}

func WithDialer(d DialFunc) Option {
	return func(p *Poller) { p.dial = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) { p.now = now }
}

type Poller struct {
	cfg  Config
	log  zerolog.Logger
	dial DialFunc
	now  func() time.Time
	cb   *gobreaker.CircuitBreaker

	pollMu sync.Mutex // one station socket at a time

	mu        sync.RWMutex // guards last
	last      model.WeatherReading
	connected atomic.Bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(cfg Config, opts ...Option) *Poller {
	cfg.applyDefaults()
	var d net.Dialer
	p := &Poller{
		cfg:  cfg,
		log:  log.Logger.With().Str("component", "weather").Logger(),
		dial: d.DialContext,
		now:  time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	if cfg.BreakerFailures > 0 {
		p.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "weather-station",
			Timeout: cfg.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= uint32(cfg.BreakerFailures)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				p.log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("breaker state changed")
			},
		})
	}
	return p
}

// ConnectAndRead performs one complete poll of the station. Concurrent
// callers are serialized. On success the reading replaces the last one; on
// failure the last reading is kept, Connected turns false and a zero
// reading is returned with the error.
func (p *Poller) ConnectAndRead(ctx context.Context) (model.WeatherReading, error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	pollID := uuid.NewString()
	l := p.log.With().Str("poll_id", pollID).Str("station", p.cfg.Address()).Logger()

	reading, err := p.guarded(ctx, l)
	if err != nil {
		p.connected.Store(false)
		metrics.BoolGauge(metrics.WeatherStationUp, false)
		if errors.Is(err, model.ErrBreakerOpen) {
			metrics.WeatherPolls.WithLabelValues("breaker_open").Inc()
			l.Debug().Msg("breaker open, station not polled")
		} else {
			metrics.WeatherPolls.WithLabelValues("error").Inc()
			l.Warn().Err(err).Msg("weather poll failed")
		}
		return model.WeatherReading{}, err
	}

	p.mu.Lock()
	p.last = reading
	p.mu.Unlock()
	p.connected.Store(true)

	metrics.WeatherPolls.WithLabelValues("ok").Inc()
	metrics.BoolGauge(metrics.WeatherStationUp, true)
	metrics.WeatherLastSuccess.Set(float64(reading.Timestamp.Unix()))
	l.Info().Fields(toFields(reading.Fields())).Msg("weather reading stored")
	return reading, nil
}

func (p *Poller) guarded(ctx context.Context, l zerolog.Logger) (model.WeatherReading, error) {
	if p.cb == nil {
		return p.readOnce(ctx, l)
	}
	res, err := p.cb.Execute(func() (any, error) {
		return p.readOnce(ctx, l)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return model.WeatherReading{}, fmt.Errorf("%w: %v", model.ErrBreakerOpen, err)
	}
	if err != nil {
		return model.WeatherReading{}, err
	}
	return res.(model.WeatherReading), nil
}

func (p *Poller) readOnce(ctx context.Context, l zerolog.Logger) (model.WeatherReading, error) {
	_, resp, err := p.exchange(ctx, l)
	if err != nil {
		return model.WeatherReading{}, err
	}
	return ParseReading(DecodeText(resp), p.now()), nil
}

// Exchange runs the raw menu handshake without parsing or storing anything.
// It shares the socket lock with ConnectAndRead but bypasses the breaker.
func (p *Poller) Exchange(ctx context.Context) (menu, response []byte, err error) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()
	l := p.log.With().Str("poll_id", uuid.NewString()).Str("station", p.cfg.Address()).Logger()
	return p.exchange(ctx, l)
}

func (p *Poller) exchange(ctx context.Context, l zerolog.Logger) ([]byte, []byte, error) {
	dctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	l.Debug().Msg("connecting to weather station")
	conn, err := p.dial(dctx, "tcp", p.cfg.Address())
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", p.cfg.Address(), err)
	}
	defer conn.Close()

	if err := sleepCtx(ctx, p.cfg.MenuDelay); err != nil {
		return nil, nil, err
	}
	menu, err := p.readChunk(conn)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("read menu: %w", err)
	}
	l.Debug().Int("bytes", len(menu)).Msg("received menu")

	if err := conn.SetWriteDeadline(time.Now().Add(p.cfg.Timeout)); err != nil {
		return nil, nil, fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := io.WriteString(conn, p.cfg.Selection+"\r\n"); err != nil {
		return nil, nil, fmt.Errorf("send selection: %w", err)
	}

	if err := sleepCtx(ctx, p.cfg.ResponseDelay); err != nil {
		return nil, nil, err
	}
	resp, err := p.readChunk(conn)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("read response: %w", err)
	}
	if len(resp) == 0 {
		return menu, nil, model.ErrEmptyResponse
	}
	l.Debug().Int("bytes", len(resp)).Msg("received weather data")
	return menu, resp, nil
}

// readChunk performs a single read of at most BufferSize bytes.
func (p *Poller) readChunk(conn net.Conn) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(p.cfg.Timeout)); err != nil {
		return nil, err
	}
	buf := make([]byte, p.cfg.BufferSize)
	n, err := conn.Read(buf)
	return buf[:n], err
}

// LastReading returns the most recent successful reading, or the zero value.
// It never waits for a poll in progress.
func (p *Poller) LastReading() model.WeatherReading {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.last
}

// Connected reports whether the most recent poll succeeded.
func (p *Poller) Connected() bool {
	return p.connected.Load()
}

// Start polls immediately and then every interval until ctx is done or Stop
// is called. Calling Start while a loop is running is a no-op; once a loop
// has ended, Start launches a new one.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	p.loopMu.Lock()
	defer p.loopMu.Unlock()
	if p.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer func() {
			p.loopMu.Lock()
			if p.done == done {
				p.cancel, p.done = nil, nil
			}
			p.loopMu.Unlock()
			cancel()
			close(done)
		}()
		p.log.Info().Dur("interval", interval).Str("station", p.cfg.Address()).Msg("weather polling started")
		timer := time.NewTimer(0)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				p.log.Info().Msg("weather polling stopped")
				return
			case <-timer.C:
				_, _ = p.ConnectAndRead(ctx)
				timer.Reset(interval)
			}
		}
	}()
}

// Stop ends the background loop and waits for it to return.
func (p *Poller) Stop() {
	p.loopMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func toFields(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
