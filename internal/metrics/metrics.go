// Package metrics holds the Prometheus collectors exported by the bridge.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parkinglot"

var (
	MQTTConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "mqtt_connected",
		Help:      "1 while the broker session is up.",
	})

	MQTTMessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_messages_received_total",
		Help:      "Inbound MQTT messages stored in the device state cache.",
	})

	// result: ok | error | disconnected | invalid
	MQTTPublish = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "mqtt_publish_total",
		Help:      "Publish attempts by outcome.",
	}, []string{"result"})

	DeviceStateTopics = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "device_state_topics",
		Help:      "Distinct topics held in the device state cache.",
	})

	// result: ok | error | breaker_open
	WeatherPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "weather_polls_total",
		Help:      "Weather station poll attempts by outcome.",
	}, []string{"result"})

	WeatherStationUp = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "weather_station_up",
		Help:      "1 when the last weather station poll succeeded.",
	})

	WeatherLastSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "weather_last_success_timestamp_seconds",
		Help:      "Unix time of the last successfully parsed reading.",
	})
)

// BoolGauge maps a flag onto 0/1.
func BoolGauge(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
