package weather

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"
)

// fieldRule describes how one value is recognised on a line of station output.
type fieldRule struct {
	keywords []string // matched against the lower-cased line
	units    []string // removed before tokenising
	inRange  func(float64) bool
	set      func(r *model.WeatherReading, v float64)
}

var fieldRules = []fieldRule{
	{
		keywords: []string{"temp", "°c"},
		units:    []string{"°C", "°c"},
		inRange:  func(v float64) bool { return v > -50 && v < 60 },
		set:      func(r *model.WeatherReading, v float64) { r.Temperature = &v },
	},
	{
		keywords: []string{"hum", "%rh"},
		units:    []string{"%", "RH", "rh"},
		inRange:  func(v float64) bool { return v >= 0 && v <= 100 },
		set:      func(r *model.WeatherReading, v float64) { r.Humidity = &v },
	},
	{
		keywords: []string{"press", "hpa", "mbar"},
		units:    []string{"hPa", "hpa", "mbar"},
		inRange:  func(v float64) bool { return v > 900 && v < 1100 },
		set:      func(r *model.WeatherReading, v float64) { r.Pressure = &v },
	},
	{
		keywords: []string{"wind", "m/s", "km/h"},
		units:    []string{"m/s", "km/h"},
		inRange:  func(v float64) bool { return v >= 0 && v < 200 },
		set:      func(r *model.WeatherReading, v float64) { r.WindSpeed = &v },
	},
}

// ParseReading extracts whatever weather values it can recognise from raw.
// Each line is checked against every field; the first token of a matching
// line that parses as a number inside the field's plausible range wins, and
// later lines override earlier ones. Raw and Timestamp are always set.
func ParseReading(raw string, at time.Time) model.WeatherReading {
	r := model.WeatherReading{
		Raw:       strings.TrimSpace(raw),
		Timestamp: at,
	}
	for _, line := range strings.Split(r.Raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		for _, rule := range fieldRules {
			if !containsAny(lower, rule.keywords) {
				continue
			}
			if v, ok := firstInRange(line, rule); ok {
				rule.set(&r, v)
			}
		}
	}
	return r
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func firstInRange(line string, rule fieldRule) (float64, bool) {
	for _, u := range rule.units {
		line = strings.ReplaceAll(line, u, "")
	}
	for _, tok := range strings.Fields(line) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(tok, ",", "."), 64)
		if err != nil {
			continue
		}
		if rule.inRange(v) {
			return v, true
		}
	}
	return 0, false
}

// DecodeText turns station bytes into text. The station speaks a single-byte
// charset, so anything that is not valid UTF-8 is read as ISO-8859-1.
func DecodeText(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	s, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "")
	}
	return string(s)
}
