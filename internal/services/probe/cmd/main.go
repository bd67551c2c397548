// Command probe checks the field equipment from the command line: the MQTT
// session, the light controllers and the weather station.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"
	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/services/devicesync"
	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/services/weather"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/broker"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/topic"
)

func main() {
	mode := flag.String("mode", "mqtt", "mqtt | lights | weather")
	brokerHost := flag.String("broker", getenv("MQTT_BROKER", "158.196.15.41"), "MQTT broker host")
	brokerPort := flag.Int("port", 1883, "MQTT broker port")
	clientID := flag.String("client-id", "parking_lot_test", "MQTT client id")
	catalogPath := flag.String("devices", os.Getenv("DEVICES_CONFIG_PATH"), "device catalog YAML (empty: embedded)")
	stationHost := flag.String("station", "", "weather station host (empty: catalog)")
	stationPort := flag.Int("station-port", 0, "weather station port (0: catalog)")
	wait := flag.Duration("wait", 5*time.Second, "how long to wait for device replies")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	catalog, err := model.LoadCatalog(*catalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load device catalog")
	}

	bcfg := broker.Config{Host: *brokerHost, Port: *brokerPort, ClientID: *clientID, Keepalive: 60 * time.Second}

	var ok bool
	switch *mode {
	case "mqtt":
		ok = probeMQTT(bcfg, *wait)
	case "lights":
		ok = probeLights(bcfg, catalog, *wait)
	case "weather":
		host, port := catalog.WeatherStation.Host, catalog.WeatherStation.Port
		if *stationHost != "" {
			host = *stationHost
		}
		if *stationPort != 0 {
			port = *stationPort
		}
		ok = probeWeather(host, port)
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %q\n", *mode)
	}

	if !ok {
		os.Exit(1)
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func rule(n int) string { return strings.Repeat("=", n) }

// connect opens a session and waits for the on-connect handler to run.
func connect(cfg broker.Config) (*devicesync.Synchronizer, bool) {
	fmt.Printf("Broker: %s\nConnecting...\n", cfg.URL())
	s := devicesync.New(devicesync.Config{Broker: cfg})
	if !s.Connect() {
		fmt.Println("✗ Connection failed!")
		fmt.Printf("  check the broker is running and reachable: ping %s\n", cfg.Host)
		return nil, false
	}
	deadline := time.Now().Add(2 * time.Second)
	for !s.Connected() && time.Now().Before(deadline) {
		time.Sleep(50 * time.Millisecond)
	}
	if !s.Connected() {
		fmt.Println("✗ Client failed to connect properly")
		s.Disconnect()
		return nil, false
	}
	fmt.Println("✓ Connected to MQTT broker")
	return s, true
}

func probeMQTT(cfg broker.Config, wait time.Duration) bool {
	fmt.Println(rule(50))
	fmt.Println("MQTT Connection Test")
	fmt.Println(rule(50))

	s, ok := connect(cfg)
	if !ok {
		return false
	}
	defer s.Disconnect()

	fmt.Println("Sending discovery request...")
	if !s.DiscoverLights() {
		fmt.Println("✗ Discovery publish failed")
		return false
	}
	time.Sleep(wait)

	fmt.Println("Device states received:")
	printStates(s.Snapshot())
	fmt.Println("✓ Commands sent successfully")
	return true
}

func probeLights(cfg broker.Config, catalog model.Catalog, wait time.Duration) bool {
	fmt.Println(rule(60))
	fmt.Println("MQTT Light Status Test")
	fmt.Println(rule(60))

	s, ok := connect(cfg)
	if !ok {
		return false
	}
	defer s.Disconnect()

	fmt.Println("Requesting status for all lights...")
	for _, p := range catalog.Poles {
		fmt.Printf("\n%s:\n", p.Name)
		for _, d := range p.Devices {
			fmt.Printf("  %s (MAC: %s, Segment: %d)\n", d.Type, d.MAC, d.Segment)
			if !s.GetLightPower(d.MAC, d.Segment) {
				fmt.Println("    ✗ request not sent")
			}
		}
	}

	fmt.Printf("\nWaiting %s for responses...\n", wait)
	time.Sleep(wait)

	states := s.Snapshot()
	if len(states) == 0 {
		fmt.Println("✗ No messages received!")
		fmt.Println("  the lights may be offline or not answering on the expected topics")
		return false
	}
	fmt.Printf("✓ Received %d messages\n", len(states))

	power := map[string]any{}
	other := map[string]any{}
	for t, v := range states {
		if _, _, ok := topic.ParseLightPower(t); ok {
			power[t] = v
		} else {
			other[t] = v
		}
	}
	if len(power) > 0 {
		fmt.Println("\nPower Status Messages:")
		printStates(power)
	}
	if len(other) > 0 {
		fmt.Println("\nOther Messages:")
		printStates(other)
	}
	return true
}

func probeWeather(host string, port int) bool {
	cfg := weather.DefaultConfig(host, port)
	cfg.Timeout = 10 * time.Second
	cfg.ResponseDelay = 1500 * time.Millisecond
	p := weather.New(cfg)

	fmt.Printf("Connecting to %s ...\n", cfg.Address())
	menu, resp, err := p.Exchange(context.Background())
	if len(menu) > 0 {
		text := weather.DecodeText(menu)
		fmt.Printf("\n=== MENU (raw) ===\n%q\n\n=== MENU (plain) ===\n%s\n", text, text)
	}
	if err != nil {
		fmt.Printf("✗ %v\n", err)
		return false
	}

	text := weather.DecodeText(resp)
	fmt.Printf("\n=== RESPONSE (raw) ===\n%q\n\n=== RESPONSE (plain) ===\n%s\n", text, text)
	fmt.Println("\n=== LINE-BY-LINE ===")
	for i, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		fmt.Printf("  [%02d] %q\n", i, line)
	}

	r := weather.ParseReading(text, time.Now())
	fmt.Println("\n=== PARSED ===")
	fields := r.Fields()
	if len(fields) == 0 {
		fmt.Println("  no values recognised")
	}
	for _, k := range []string{"temperature", "humidity", "pressure", "wind_speed"} {
		if v, ok := fields[k]; ok {
			fmt.Printf("  %-12s %v\n", k, v)
		}
	}
	return true
}

func printStates(states map[string]any) {
	keys := make([]string, 0, len(states))
	for k := range states {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s\n    Value: %v\n", k, states[k])
	}
}
