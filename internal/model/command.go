package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PropertyPower is the only writable light property today.
const PropertyPower = "power"

// DeviceCommand is a property write addressed to one segment of a light.
type DeviceCommand struct {
	MAC      string  `json:"mac"`
	Segment  int     `json:"segment"`
	Property string  `json:"property"`
	Value    float64 `json:"value"`
}

// PowerCommand sets the power level (0..100) of one segment.
func PowerCommand(mac string, segment int, power float64) DeviceCommand {
	return DeviceCommand{MAC: mac, Segment: segment, Property: PropertyPower, Value: power}
}

// BeaconCommand switches a beacon. Beacons are lights with a single segment 0.
func BeaconCommand(mac string, on bool) DeviceCommand {
	power := 0.0
	if on {
		power = 100
	}
	return PowerCommand(mac, 0, power)
}

// Topic returns lights/device/{mac}/segment/{segment}/{property}/set.
func (c DeviceCommand) Topic() string {
	prop := c.Property
	if prop == "" {
		prop = PropertyPower
	}
	return fmt.Sprintf("lights/device/%s/segment/%d/%s/set", c.MAC, c.Segment, prop)
}

// Payload renders Value in its shortest decimal form ("75", "12.5").
func (c DeviceCommand) Payload() string {
	return strconv.FormatFloat(c.Value, 'f', -1, 64)
}

func (c DeviceCommand) Validate() error {
	if strings.TrimSpace(c.MAC) == "" || strings.ContainsAny(c.MAC, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidMAC, c.MAC)
	}
	if c.Segment < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSegment, c.Segment)
	}
	if (c.Property == "" || c.Property == PropertyPower) && (math.IsNaN(c.Value) || c.Value < 0 || c.Value > 100) {
		return fmt.Errorf("%w: %v", ErrPowerRange, c.Value)
	}
	return nil
}
