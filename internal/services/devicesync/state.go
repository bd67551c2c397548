package devicesync

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/topic"
)

// State returns the last payload received on t.
func (s *Synchronizer) State(t string) (any, bool) {
	return s.cache.get(t)
}

// PowerState returns the cached power report of one segment.
func (s *Synchronizer) PowerState(mac string, segment int) (any, bool) {
	return s.cache.get(topic.LightPower(mac, segment))
}

// TelemetryState returns the cached device-level telemetry payload.
func (s *Synchronizer) TelemetryState(mac string) (any, bool) {
	return s.cache.get(topic.Telemetry(mac))
}

// Snapshot copies the whole topic -> payload cache.
func (s *Synchronizer) Snapshot() map[string]any {
	return s.cache.snapshot()
}

// PowerLevels projects cached power reports to "{mac}_{segment}" -> level.
// Payloads that are not numeric are skipped.
func (s *Synchronizer) PowerLevels() map[string]float64 {
	out := make(map[string]float64)
	for t, v := range s.cache.snapshot() {
		mac, seg, ok := topic.ParseLightPower(t)
		if !ok {
			continue
		}
		level, ok := toFloat(v)
		if !ok {
			continue
		}
		out[fmt.Sprintf("%s_%d", mac, seg)] = level
	}
	return out
}

// Statuses projects lights/device/{mac}/telemetry/status to "{mac}_status".
func (s *Synchronizer) Statuses() map[string]any {
	out := make(map[string]any)
	for t, v := range s.cache.snapshot() {
		if mac, ok := topic.ParseTelemetryStatus(t); ok {
			out[mac+"_status"] = v
		}
	}
	return out
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
