package model

import "errors"

var (
	// ErrNotConnected indicates the broker session is down
	ErrNotConnected = errors.New("not connected to broker")

	// ErrEmptyResponse indicates the weather station answered with no data
	ErrEmptyResponse = errors.New("empty response from weather station")

	// ErrBreakerOpen indicates the station is being skipped after repeated failures
	ErrBreakerOpen = errors.New("weather station breaker open")

	// ErrPowerRange indicates a power level outside 0..100
	ErrPowerRange = errors.New("power out of range 0..100")

	// ErrInvalidMAC indicates an empty device address
	ErrInvalidMAC = errors.New("invalid device mac")

	// ErrInvalidSegment indicates a negative segment index
	ErrInvalidSegment = errors.New("invalid segment")

	// ErrUnknownPole indicates a pole id missing from the catalog
	ErrUnknownPole = errors.New("unknown pole")

	// ErrUnknownBeacon indicates a beacon id missing from the catalog
	ErrUnknownBeacon = errors.New("unknown beacon")
)
