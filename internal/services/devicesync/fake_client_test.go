package devicesync

import (
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/topic"
)

type fakeToken struct{ err error }

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

type published struct {
	topic   string
	qos     byte
	payload string
}

// fakeClient stands in for a paho client: Connect runs the configured
// on-connect handler synchronously and deliveries are driven by the test.
type fakeClient struct {
	mu         sync.Mutex
	opts       *mqtt.ClientOptions
	open       bool
	connectErr error
	publishErr error
	connects   int
	pubs       []published
	subs       map[string]mqtt.MessageHandler
	subOrder   []string

	// connectGate, when set, holds Connect until closed; connectStarted is
	// closed once Connect is waiting on it.
	connectGate    chan struct{}
	connectStarted chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]mqtt.MessageHandler)}
}

func (f *fakeClient) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeClient) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeClient) Connect() mqtt.Token {
	f.mu.Lock()
	gate, started := f.connectGate, f.connectStarted
	f.mu.Unlock()
	if gate != nil {
		close(started)
		<-gate
	}

	f.mu.Lock()
	f.connects++
	if f.connectErr != nil {
		err := f.connectErr
		f.mu.Unlock()
		return &fakeToken{err: err}
	}
	f.open = true
	onConnect := f.opts.OnConnect
	f.mu.Unlock()

	if onConnect != nil {
		onConnect(f)
	}
	return &fakeToken{}
}

func (f *fakeClient) Disconnect(uint) {
	f.mu.Lock()
	f.open = false
	f.mu.Unlock()
}

func (f *fakeClient) Publish(t string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	f.pubs = append(f.pubs, published{topic: t, qos: qos, payload: body})
	return &fakeToken{err: f.publishErr}
}

func (f *fakeClient) Subscribe(t string, _ byte, cb mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return &fakeToken{err: errors.New("not connected")}
	}
	f.subs[t] = cb
	f.subOrder = append(f.subOrder, t)
	return &fakeToken{}
}

func (f *fakeClient) SubscribeMultiple(filters map[string]byte, cb mqtt.MessageHandler) mqtt.Token {
	for t, q := range filters {
		f.Subscribe(t, q, cb)
	}
	return &fakeToken{}
}

func (f *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range topics {
		delete(f.subs, t)
	}
	return &fakeToken{}
}

func (f *fakeClient) AddRoute(string, mqtt.MessageHandler) {}

func (f *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}

// deliver routes a message the way the broker would, through the handler of
// the first subscription that covers the topic.
func (f *fakeClient) deliver(t string, payload string) {
	f.mu.Lock()
	var h mqtt.MessageHandler
	for _, p := range f.subOrder {
		if topic.MatchMQTT(p, t) {
			h = f.subs[p]
			break
		}
	}
	if h == nil && f.opts != nil {
		h = f.opts.DefaultPublishHandler
	}
	f.mu.Unlock()
	if h != nil {
		h(f, &fakeMessage{topic: t, payload: []byte(payload)})
	}
}

func (f *fakeClient) dropConnection(err error) {
	f.mu.Lock()
	f.open = false
	lost := f.opts.OnConnectionLost
	f.mu.Unlock()
	if lost != nil {
		lost(f, err)
	}
}

func (f *fakeClient) published() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.pubs...)
}

func (f *fakeClient) subscriptions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.subOrder...)
}

func (f *fakeClient) resetSubscriptions() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = make(map[string]mqtt.MessageHandler)
	f.subOrder = nil
}

func newTestSynchronizer(t *testing.T, cfg Config) (*Synchronizer, *fakeClient) {
	t.Helper()
	fc := newFakeClient()
	s := New(cfg,
		WithLogger(zerolog.Nop()),
		WithClientFactory(func(o *mqtt.ClientOptions) mqtt.Client {
			fc.mu.Lock()
			fc.opts = o
			fc.mu.Unlock()
			return fc
		}),
	)
	return s, fc
}

func connectedSynchronizer(t *testing.T) (*Synchronizer, *fakeClient) {
	t.Helper()
	s, fc := newTestSynchronizer(t, Config{})
	if !s.Connect() {
		t.Fatal("Connect returned false")
	}
	if !s.Connected() {
		t.Fatal("expected connected after on-connect handler")
	}
	return s, fc
}
