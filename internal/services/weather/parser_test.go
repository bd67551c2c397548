package weather

import (
	"testing"
	"time"
)

func ptr(v float64) *float64 { return &v }

func eq(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func TestParseReading(t *testing.T) {
	tests := []struct {
		name                 string
		raw                  string
		temp, hum, pres, win *float64
	}{
		{
			name: "full block",
			raw:  "Temperature: 21.5 °C\nHumidity: 45 %\nPressure: 1013.2 hPa\nWind Speed: 3.2 m/s",
			temp: ptr(21.5), hum: ptr(45), pres: ptr(1013.2), win: ptr(3.2),
		},
		{name: "temperature line", raw: "Temp: 21.5 C", temp: ptr(21.5)},
		{name: "humidity line", raw: "Humidity 45%RH", hum: ptr(45)},
		{name: "pressure line", raw: "Pressure 1013.2 hPa", pres: ptr(1013.2)},
		{name: "wind line", raw: "Wind 3.2 m/s", win: ptr(3.2)},
		{
			name: "temperature out of range",
			raw:  "Temperature: 150",
		},
		{
			name: "comma decimals",
			raw:  "Temp 21,5\r\nPress 1002,7 mbar\r\n",
			temp: ptr(21.5), pres: ptr(1002.7),
		},
		{
			name: "unit keyword without field name",
			raw:  "Outside 12 °C\n61 %RH",
			temp: ptr(12), hum: ptr(61),
		},
		{
			name: "later line overrides",
			raw:  "Temperature: 10\nTemperature: 11",
			temp: ptr(11),
		},
		{
			name: "first in-range token wins",
			raw:  "Temp sensor 2 reads 400 then 18.5",
			temp: ptr(2),
		},
		{
			name: "wind in km/h",
			raw:  "Wind: 250 km/h gust 12 km/h",
			win:  ptr(12),
		},
		{
			name: "nothing recognised",
			raw:  "GIOM 3000\nmenu\n",
		},
	}

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseReading(tt.raw, at)
			if !eq(r.Temperature, tt.temp) {
				t.Errorf("temperature = %v, want %v", deref(r.Temperature), deref(tt.temp))
			}
			if !eq(r.Humidity, tt.hum) {
				t.Errorf("humidity = %v, want %v", deref(r.Humidity), deref(tt.hum))
			}
			if !eq(r.Pressure, tt.pres) {
				t.Errorf("pressure = %v, want %v", deref(r.Pressure), deref(tt.pres))
			}
			if !eq(r.WindSpeed, tt.win) {
				t.Errorf("wind = %v, want %v", deref(r.WindSpeed), deref(tt.win))
			}
			if !r.Timestamp.Equal(at) {
				t.Errorf("timestamp = %v", r.Timestamp)
			}
		})
	}
}

func TestParseReadingKeepsTrimmedRaw(t *testing.T) {
	r := ParseReading("\r\n  Temperature: 20 \n\n", time.Now())
	if r.Raw != "Temperature: 20" {
		t.Fatalf("raw = %q", r.Raw)
	}
}

func TestDecodeLatin1(t *testing.T) {
	got := DecodeText([]byte("Temp 21.5 \xb0C"))
	if got != "Temp 21.5 °C" {
		t.Fatalf("decode = %q", got)
	}
	if got := DecodeText([]byte("Temp 21.5 °C")); got != "Temp 21.5 °C" {
		t.Fatalf("utf-8 input altered: %q", got)
	}

	r := ParseReading(DecodeText([]byte("Outdoor 7,5 \xb0C")), time.Now())
	if !eq(r.Temperature, ptr(7.5)) {
		t.Fatalf("temperature = %v", deref(r.Temperature))
	}
}

func deref(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
