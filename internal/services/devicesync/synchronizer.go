// Package devicesync keeps a live MQTT session with the parking-lot light
// controllers: it caches the last payload seen on every device topic and
// publishes power commands for lights and beacons.
package devicesync

import (
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/metrics"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/broker"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/topic"
)

// Callback receives a decoded payload for a topic matching its pattern.
type Callback func(topic string, payload any)

// ClientFactory builds the underlying paho client.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

type Config struct {
	Broker         broker.Config
	PublishTimeout time.Duration
	// StandardWildcards switches callback dispatch to MQTT 3.1.1 matching.
	StandardWildcards bool
}

type Option func(*Synchronizer)

func WithLogger(l zerolog.Logger) Option {
	return func(s *Synchronizer) { s.log = l }
}

func WithClientFactory(f ClientFactory) Option {
	return func(s *Synchronizer) { s.newClient = f }
}

// defaultPatterns are (re)subscribed on every connect.
var defaultPatterns = []string{
	topic.LightPowerPattern,
	topic.TelemetryPattern,
	topic.DiscoveryReply,
}

type Synchronizer struct {
	cfg       Config
	log       zerolog.Logger
	newClient ClientFactory
	match     topic.Matcher

	mu     sync.Mutex // guards client
	client mqtt.Client

	connected atomic.Bool
	cache     *stateCache

	subMu     sync.RWMutex
	callbacks map[string]Callback
	extra     []string // patterns added through Subscribe, in order
}

func New(cfg Config, opts ...Option) *Synchronizer {
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	s := &Synchronizer{
		cfg:       cfg,
		log:       log.Logger.With().Str("component", "devicesync").Logger(),
		newClient: mqtt.NewClient,
		match:     topic.Match,
		cache:     newStateCache(),
		callbacks: make(map[string]Callback),
	}
	if cfg.StandardWildcards {
		s.match = topic.MatchMQTT
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Connect opens a session with the broker. It returns whether the connect
// attempt succeeded within the configured timeout; subscriptions and the
// connected flag are set by the on-connect handler.
func (s *Synchronizer) Connect() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != nil && s.client.IsConnectionOpen() {
		return true
	}

	opts := broker.NewClientOptions(s.cfg.Broker)
	opts.SetOnConnectHandler(s.onConnect)
	opts.SetConnectionLostHandler(s.onConnectionLost)
	opts.SetDefaultPublishHandler(s.onMessage)

	s.log.Info().Str("broker", s.cfg.Broker.URL()).Msg("connecting to mqtt broker")
	client := s.newClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout + time.Second) {
		s.log.Error().Str("broker", s.cfg.Broker.URL()).Msg("mqtt connect timed out")
		client.Disconnect(0)
		return false
	}
	if err := token.Error(); err != nil {
		s.log.Error().Err(err).Str("broker", s.cfg.Broker.URL()).Msg("mqtt connect failed")
		return false
	}
	s.client = client
	return true
}

// Disconnect closes the session. Safe to call repeatedly.
func (s *Synchronizer) Disconnect() {
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.mu.Unlock()

	s.setConnected(false)
	if client == nil {
		return
	}
	broker.Close(client)
	s.log.Info().Msg("disconnected from mqtt broker")
}

// Connected reports whether the broker session is established.
func (s *Synchronizer) Connected() bool {
	return s.connected.Load()
}

func (s *Synchronizer) currentClient() mqtt.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *Synchronizer) setConnected(v bool) {
	s.connected.Store(v)
	metrics.BoolGauge(metrics.MQTTConnected, v)
}

func (s *Synchronizer) onConnect(c mqtt.Client) {
	s.log.Info().Str("broker", s.cfg.Broker.URL()).Msg("connected to mqtt broker")
	s.setConnected(true)

	s.subMu.RLock()
	patterns := append(append([]string{}, defaultPatterns...), s.extra...)
	s.subMu.RUnlock()

	for _, p := range patterns {
		s.subscribeOn(c, p)
	}
}

func (s *Synchronizer) onConnectionLost(_ mqtt.Client, err error) {
	s.log.Warn().Err(err).Msg("mqtt connection lost")
	s.setConnected(false)
}

func (s *Synchronizer) subscribeOn(c mqtt.Client, pattern string) bool {
	token := c.Subscribe(pattern, 0, s.onMessage)
	if !token.WaitTimeout(s.cfg.PublishTimeout) {
		s.log.Warn().Str("pattern", pattern).Msg("subscribe timed out")
		return false
	}
	if err := token.Error(); err != nil {
		s.log.Error().Err(err).Str("pattern", pattern).Msg("subscribe failed")
		return false
	}
	s.log.Info().Str("pattern", pattern).Msg("subscribed")
	return true
}

// onMessage stores the payload under its exact topic, then runs matching callbacks.
func (s *Synchronizer) onMessage(_ mqtt.Client, m mqtt.Message) {
	t := m.Topic()
	payload := decodePayload(m.Payload())

	n := s.cache.set(t, payload)
	metrics.MQTTMessagesReceived.Inc()
	metrics.DeviceStateTopics.Set(float64(n))
	s.log.Debug().Str("topic", t).Interface("payload", payload).Msg("mqtt message received")

	s.subMu.RLock()
	var matched []Callback
	for pattern, cb := range s.callbacks {
		if s.match(pattern, t) {
			matched = append(matched, cb)
		}
	}
	s.subMu.RUnlock()

	for _, cb := range matched {
		s.dispatch(cb, t, payload)
	}
}

func (s *Synchronizer) dispatch(cb Callback, t string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("topic", t).Msg("message callback panicked")
		}
	}()
	cb(t, payload)
}
