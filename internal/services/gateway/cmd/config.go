package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"
)

type Config struct {
	HTTPPort string

	MQTTBroker            string
	MQTTPort              int
	MQTTKeepalive         int // seconds
	MQTTClientID          string
	MQTTUser              string
	MQTTPassword          string
	MQTTConnectTimeoutMs  int
	MQTTPublishTimeoutMs  int
	MQTTStandardWildcards bool
	ReconnectCheckMs      int
	ReconnectMaxMs        int

	// Weather station; empty host/zero port fall back to the catalog entry.
	WeatherHost            string
	WeatherPort            int
	WeatherTimeoutMs       int
	WeatherPollIntervalS   int
	WeatherBreakerFailures int
	WeatherBreakerOpenMs   int

	DevicesConfigPath string
	StatusCoalesceMs  int

	LogLevel  string
	LogFormat string // console | json
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func getenvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return d
}

func getenvBool(k string, d bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return d
}

func loadConfig() Config {
	return Config{
		HTTPPort: getenv("HTTP_PORT", "8050"),

		MQTTBroker:            getenv("MQTT_BROKER", "158.196.15.41"),
		MQTTPort:              getenvInt("MQTT_PORT", 1883),
		MQTTKeepalive:         getenvInt("MQTT_KEEPALIVE", 60),
		MQTTClientID:          getenv("MQTT_CLIENT_ID", "parking_lot_dash"),
		MQTTUser:              getenv("MQTT_USER", ""),
		MQTTPassword:          getenv("MQTT_PASSWORD", ""),
		MQTTConnectTimeoutMs:  getenvInt("MQTT_CONNECT_TIMEOUT_MS", 5000),
		MQTTPublishTimeoutMs:  getenvInt("MQTT_PUBLISH_TIMEOUT_MS", 2000),
		MQTTStandardWildcards: getenvBool("MQTT_STANDARD_WILDCARDS", false),
		ReconnectCheckMs:      getenvInt("MQTT_RECONNECT_CHECK_MS", 5000),
		ReconnectMaxMs:        getenvInt("MQTT_RECONNECT_MAX_MS", 60000),

		WeatherHost:            getenv("WEATHER_HOST", ""),
		WeatherPort:            getenvInt("WEATHER_PORT", 0),
		WeatherTimeoutMs:       getenvInt("WEATHER_TIMEOUT_MS", 5000),
		WeatherPollIntervalS:   getenvInt("WEATHER_POLL_INTERVAL_S", 60),
		WeatherBreakerFailures: getenvInt("WEATHER_BREAKER_FAILURES", 5),
		WeatherBreakerOpenMs:   getenvInt("WEATHER_BREAKER_OPEN_MS", 30000),

		DevicesConfigPath: getenv("DEVICES_CONFIG_PATH", ""),
		StatusCoalesceMs:  getenvInt("STATUS_COALESCE_MS", 2000),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getenv("LOG_FORMAT", "console")),
	}
}

// stationAddr resolves the station endpoint, the environment taking
// precedence over the catalog.
func (c Config) stationAddr(cat model.Catalog) (string, int) {
	host, port := cat.WeatherStation.Host, cat.WeatherStation.Port
	if c.WeatherHost != "" {
		host = c.WeatherHost
	}
	if c.WeatherPort != 0 {
		port = c.WeatherPort
	}
	return host, port
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
