package broker

import (
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Host           string
	Port           int
	Keepalive      time.Duration
	ClientID       string
	User           string
	Password       string
	ConnectTimeout time.Duration
}

// URL returns the tcp:// broker address.
func (c Config) URL() string {
	return fmt.Sprintf("tcp://%s:%d", strings.TrimSpace(c.Host), c.Port)
}

// NewClientOptions builds paho options for a manually managed session:
// clean session, no automatic reconnect, bounded connect attempt.
// Reconnecting is left to Supervise.
func NewClientOptions(cfg Config) *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.URL())
	opts.SetClientID(cfg.ClientID)
	if cfg.User != "" {
		opts.SetUsername(cfg.User)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	if cfg.Keepalive > 0 {
		opts.SetKeepAlive(cfg.Keepalive)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	opts.SetConnectTimeout(timeout)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	return opts
}

// Close disconnects the client if its connection is open.
func Close(client mqtt.Client) {
	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
}
