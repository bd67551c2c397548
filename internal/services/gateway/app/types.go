package app

import "github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"

// ---------- Requests ----------

type PowerRequest struct {
	Power *float64 `json:"power"`
}

type BeaconRequest struct {
	On *bool `json:"on"`
}

// ---------- Responses ----------

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type HealthResponse struct {
	Status           string   `json:"status"` // ok | degraded | down
	MQTTConnected    bool     `json:"mqtt_connected"`
	WeatherConnected bool     `json:"weather_connected"`
	WeatherAgeSec    *float64 `json:"weather_age_sec"`
}

type WeatherResponse struct {
	Reading   model.WeatherReading `json:"reading"`
	Connected bool                 `json:"connected"`
}

type LightStatesResponse struct {
	Levels   map[string]float64 `json:"levels"`
	Statuses map[string]any     `json:"statuses"`
}

type DeviceStateResponse struct {
	MAC     string `json:"mac"`
	Segment *int   `json:"segment,omitempty"`
	Topic   string `json:"topic"`
	Value   any    `json:"value"`
}

// CommandResponse reports a single command handed to the broker.
type CommandResponse struct {
	Topic     string `json:"topic"`
	Sent      bool   `json:"sent"`
	Coalesced bool   `json:"coalesced,omitempty"`
}

// BatchResponse reports a command fanned out over several devices.
type BatchResponse struct {
	Requested int `json:"requested"`
	Sent      int `json:"sent"`
	Coalesced int `json:"coalesced,omitempty"`
	Failed    int `json:"failed"`
}
