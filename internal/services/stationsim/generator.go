package stationsim

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding/charmap"
)

// Sample is one simulated set of station readings.
type Sample struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	Pressure    float64 // hPa
	WindSpeed   float64 // m/s
	At          time.Time
}

// bounded random walk: per-minute step and hard limits
type walk struct {
	start, step, min, max float64
}

var (
	tempWalk  = walk{start: 12, step: 0.4, min: -20, max: 40}
	humWalk   = walk{start: 60, step: 1.5, min: 10, max: 100}
	presWalk  = walk{start: 1013, step: 0.3, min: 960, max: 1045}
	windWalk  = walk{start: 2, step: 0.8, min: 0, max: 30}
	minStepDt = 1.0 / 60 // a fresh connection still moves the values a little
)

// DataGenerator keeps the simulated weather and advances it on every read.
type DataGenerator struct {
	mu     sync.Mutex
	rnd    *rand.Rand
	now    func() time.Time
	seeded bool
	cur    Sample
}

func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{rnd: rand.New(rand.NewSource(seed)), now: time.Now}
}

// Next advances the walk by the time elapsed since the previous call.
func (g *DataGenerator) Next() Sample {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if !g.seeded {
		g.cur = Sample{
			Temperature: tempWalk.start,
			Humidity:    humWalk.start,
			Pressure:    presWalk.start,
			WindSpeed:   windWalk.start,
			At:          now,
		}
		g.seeded = true
		return g.cur
	}

	dt := math.Max(now.Sub(g.cur.At).Minutes(), minStepDt)
	g.cur.Temperature = g.advance(tempWalk, g.cur.Temperature, dt)
	g.cur.Humidity = g.advance(humWalk, g.cur.Humidity, dt)
	g.cur.Pressure = g.advance(presWalk, g.cur.Pressure, dt)
	g.cur.WindSpeed = g.advance(windWalk, g.cur.WindSpeed, dt)
	g.cur.At = now
	return g.cur
}

func (g *DataGenerator) advance(w walk, v, dtMin float64) float64 {
	delta := (g.rnd.Float64()*2 - 1) * w.step * math.Sqrt(dtMin)
	v = math.Round((v+delta)*10) / 10
	return math.Min(math.Max(v, w.min), w.max)
}

// Format renders s the way the station prints its weather page, in ISO-8859-1.
func Format(s Sample) []byte {
	var b strings.Builder
	b.WriteString("\r\nGIOM 3000 - Weather information\r\n")
	fmt.Fprintf(&b, "Date: %s\r\n", s.At.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "Temperature: %.1f °C\r\n", s.Temperature)
	fmt.Fprintf(&b, "Humidity: %.1f %%RH\r\n", s.Humidity)
	fmt.Fprintf(&b, "Pressure: %.1f hPa\r\n", s.Pressure)
	fmt.Fprintf(&b, "Wind speed: %.1f m/s\r\n", s.WindSpeed)

	out, err := charmap.ISO8859_1.NewEncoder().String(b.String())
	if err != nil {
		return []byte(b.String())
	}
	return []byte(out)
}
