package model

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Light is one independently dimmable segment of a pole.
type Light struct {
	MAC     string `yaml:"mac" json:"mac"`
	Segment int    `yaml:"segment" json:"segment"`
	Type    string `yaml:"type" json:"type"`
}

// Pole groups the light heads mounted on one mast.
type Pole struct {
	ID      int     `yaml:"id" json:"id"`
	Name    string  `yaml:"name" json:"name"`
	Devices []Light `yaml:"devices" json:"devices"`
}

// Beacon is a binary hazard light.
type Beacon struct {
	ID   int    `yaml:"id" json:"id"`
	MAC  string `yaml:"mac" json:"mac"`
	Pole int    `yaml:"pole" json:"pole"`
	Name string `yaml:"name" json:"name"`
}

// Station is the weather station endpoint.
type Station struct {
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`
	Type string `yaml:"type" json:"type"`
	Pole int    `yaml:"pole" json:"pole"`
}

// Catalog lists every controllable device of the parking lot.
type Catalog struct {
	Poles          []Pole   `yaml:"poles" json:"poles"`
	Beacons        []Beacon `yaml:"beacons" json:"beacons"`
	WeatherStation Station  `yaml:"weather_station" json:"weather_station"`
}

// DefaultCatalog returns the embedded parking-lot catalog.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("embedded catalog: %v", err))
	}
	return c
}

// LoadCatalog reads a YAML catalog from path; an empty path yields the default.
func LoadCatalog(path string) (Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("unmarshal catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

// Validate checks ids are unique and every device has an address.
func (c Catalog) Validate() error {
	poles := make(map[int]bool, len(c.Poles))
	for _, p := range c.Poles {
		if poles[p.ID] {
			return fmt.Errorf("duplicate pole id %d", p.ID)
		}
		poles[p.ID] = true
		for _, d := range p.Devices {
			if strings.TrimSpace(d.MAC) == "" {
				return fmt.Errorf("pole %d: %w", p.ID, ErrInvalidMAC)
			}
			if d.Segment < 0 {
				return fmt.Errorf("pole %d: %w: %d", p.ID, ErrInvalidSegment, d.Segment)
			}
		}
	}
	beacons := make(map[int]bool, len(c.Beacons))
	for _, b := range c.Beacons {
		if beacons[b.ID] {
			return fmt.Errorf("duplicate beacon id %d", b.ID)
		}
		beacons[b.ID] = true
		if strings.TrimSpace(b.MAC) == "" {
			return fmt.Errorf("beacon %d: %w", b.ID, ErrInvalidMAC)
		}
	}
	return nil
}

// Lights flattens all poles, in catalog order.
func (c Catalog) Lights() []Light {
	var out []Light
	for _, p := range c.Poles {
		out = append(out, p.Devices...)
	}
	return out
}

func (c Catalog) Pole(id int) (Pole, error) {
	for _, p := range c.Poles {
		if p.ID == id {
			return p, nil
		}
	}
	return Pole{}, fmt.Errorf("%w: %d", ErrUnknownPole, id)
}

func (c Catalog) Beacon(id int) (Beacon, error) {
	for _, b := range c.Beacons {
		if b.ID == id {
			return b, nil
		}
	}
	return Beacon{}, fmt.Errorf("%w: %d", ErrUnknownBeacon, id)
}
