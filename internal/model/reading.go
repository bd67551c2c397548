package model

import "time"

// WeatherReading is one snapshot parsed from the weather station output.
// A nil field means the parser could not find it in the response.
type WeatherReading struct {
	Temperature *float64  `json:"temperature,omitempty"` // °C
	Humidity    *float64  `json:"humidity,omitempty"`    // %
	Pressure    *float64  `json:"pressure,omitempty"`    // hPa
	WindSpeed   *float64  `json:"wind_speed,omitempty"`  // m/s
	Raw         string    `json:"raw"`
	Timestamp   time.Time `json:"timestamp"`
}

// IsZero reports whether no reading has been captured yet.
func (r WeatherReading) IsZero() bool {
	return r.Timestamp.IsZero()
}

// Fields returns the extracted values keyed by their JSON name.
func (r WeatherReading) Fields() map[string]float64 {
	out := make(map[string]float64, 4)
	put := func(k string, v *float64) {
		if v != nil {
			out[k] = *v
		}
	}
	put("temperature", r.Temperature)
	put("humidity", r.Humidity)
	put("pressure", r.Pressure)
	put("wind_speed", r.WindSpeed)
	return out
}
