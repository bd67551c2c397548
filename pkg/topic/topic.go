package topic

import (
	"fmt"
	"strconv"
	"strings"
)

// Topic tree used by the parking-lot light controllers.
const (
	DiscoveryRequest = "lights/discovery/request"
	DiscoveryReply   = "lights/discovery/reply"

	LightPowerPattern = "lights/device/+/segment/+/power"
	TelemetryPattern  = "lights/device/+/telemetry/#"
)

// LightPower is the state topic a segment reports its power level on.
func LightPower(mac string, segment int) string {
	return fmt.Sprintf("lights/device/%s/segment/%d/power", mac, segment)
}

// LightPowerSet is the command topic for a segment power level.
func LightPowerSet(mac string, segment int) string {
	return LightPower(mac, segment) + "/set"
}

// LightPowerGet asks a segment to report its power level.
func LightPowerGet(mac string, segment int) string {
	return LightPower(mac, segment) + "/get"
}

// Telemetry is the device-level telemetry topic (no property).
func Telemetry(mac string) string {
	return fmt.Sprintf("lights/device/%s/telemetry", mac)
}

// TelemetryGet requests one telemetry property, or all of them when property is empty.
func TelemetryGet(mac, property string) string {
	if strings.TrimSpace(property) == "" {
		return Telemetry(mac) + "/get"
	}
	return Telemetry(mac) + "/" + property + "/get"
}

// ParseLightPower extracts mac and segment from lights/device/{mac}/segment/{segment}/power.
func ParseLightPower(t string) (string, int, bool) {
	parts := strings.Split(t, "/")
	if len(parts) != 6 || parts[0] != "lights" || parts[1] != "device" ||
		parts[3] != "segment" || parts[5] != "power" || parts[2] == "" {
		return "", 0, false
	}
	seg, err := strconv.Atoi(parts[4])
	if err != nil {
		return "", 0, false
	}
	return parts[2], seg, true
}

// ParseTelemetryStatus extracts the mac from lights/device/{mac}/telemetry/status.
func ParseTelemetryStatus(t string) (string, bool) {
	parts := strings.Split(t, "/")
	if len(parts) != 5 || parts[0] != "lights" || parts[1] != "device" ||
		parts[3] != "telemetry" || parts[4] != "status" || parts[2] == "" {
		return "", false
	}
	return parts[2], true
}
