package devicesync

import (
	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/metrics"
	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/topic"
)

// Send validates cmd and publishes it on its set topic.
func (s *Synchronizer) Send(cmd model.DeviceCommand) bool {
	if err := cmd.Validate(); err != nil {
		s.log.Warn().Err(err).Str("mac", cmd.MAC).Int("segment", cmd.Segment).Msg("rejected device command")
		publishResult("invalid")
		return false
	}
	return s.Publish(cmd.Topic(), cmd.Payload(), 0)
}

// SetLightPower sets one segment to power percent (0..100).
func (s *Synchronizer) SetLightPower(mac string, segment int, power float64) bool {
	return s.Send(model.PowerCommand(mac, segment, power))
}

// GetLightPower asks a segment for its power level. The answer arrives
// asynchronously on the power state topic and lands in the cache.
func (s *Synchronizer) GetLightPower(mac string, segment int) bool {
	return s.Publish(topic.LightPowerGet(mac, segment), "", 0)
}

// SetBeacon switches a beacon on (power 100) or off (power 0) on segment 0.
func (s *Synchronizer) SetBeacon(mac string, on bool) bool {
	return s.Send(model.BeaconCommand(mac, on))
}

// DiscoverLights broadcasts a discovery request; replies are cached under
// the discovery reply topic.
func (s *Synchronizer) DiscoverLights() bool {
	return s.Publish(topic.DiscoveryRequest, "", 0)
}

// GetTelemetry requests one telemetry property, or all of them when property is empty.
func (s *Synchronizer) GetTelemetry(mac, property string) bool {
	return s.Publish(topic.TelemetryGet(mac, property), "", 0)
}

func publishResult(result string) {
	metrics.MQTTPublish.WithLabelValues(result).Inc()
}
