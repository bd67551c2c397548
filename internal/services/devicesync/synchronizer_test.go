package devicesync

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"math"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/metrics"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/topic"
)

const testMAC = "0003f40b088a"

func TestConnectSubscribesDefaultPatterns(t *testing.T) {
	_, fc := connectedSynchronizer(t)

	got := fc.subscriptions()
	for _, p := range defaultPatterns {
		if !slices.Contains(got, p) {
			t.Fatalf("pattern %q not subscribed, got %v", p, got)
		}
	}
}

func TestConnectFailure(t *testing.T) {
	s, fc := newTestSynchronizer(t, Config{})
	fc.connectErr = errors.New("connection refused")

	if s.Connect() {
		t.Fatal("Connect should report failure")
	}
	if s.Connected() {
		t.Fatal("should not be connected")
	}
}

func TestConnectIsNoopWhenOpen(t *testing.T) {
	s, fc := connectedSynchronizer(t)
	if !s.Connect() {
		t.Fatal("second Connect should succeed")
	}
	if fc.connects != 1 {
		t.Fatalf("expected a single transport connect, got %d", fc.connects)
	}
}

func TestPublishWhenDisconnected(t *testing.T) {
	s, fc := newTestSynchronizer(t, Config{})
	before := testutil.ToFloat64(metrics.MQTTPublish.WithLabelValues("disconnected"))

	if s.Publish("lights/device/x/segment/0/power/set", "10", 0) {
		t.Fatal("publish must fail while disconnected")
	}
	if n := len(fc.published()); n != 0 {
		t.Fatalf("transport was used %d times", n)
	}
	after := testutil.ToFloat64(metrics.MQTTPublish.WithLabelValues("disconnected"))
	if after-before != 1 {
		t.Fatalf("disconnected counter delta = %v, want 1", after-before)
	}
}

func TestSetLightPowerPublishesSetTopic(t *testing.T) {
	s, fc := connectedSynchronizer(t)

	if !s.SetLightPower(testMAC, 2, 75) {
		t.Fatal("SetLightPower returned false")
	}
	pubs := fc.published()
	if len(pubs) != 1 {
		t.Fatalf("expected 1 publish, got %d", len(pubs))
	}
	want := published{topic: "lights/device/" + testMAC + "/segment/2/power/set", qos: 0, payload: "75"}
	if pubs[0] != want {
		t.Fatalf("got %+v, want %+v", pubs[0], want)
	}
}

func TestSetLightPowerFractional(t *testing.T) {
	s, fc := connectedSynchronizer(t)
	s.SetLightPower(testMAC, 1, 12.5)

	if got := fc.published()[0].payload; got != "12.5" {
		t.Fatalf("payload = %q", got)
	}
}

func TestSetLightPowerOutOfRange(t *testing.T) {
	s, fc := connectedSynchronizer(t)

	for _, p := range []float64{-1, 100.5, 250, math.NaN(), math.Inf(1)} {
		if s.SetLightPower(testMAC, 0, p) {
			t.Fatalf("power %v accepted", p)
		}
	}
	if n := len(fc.published()); n != 0 {
		t.Fatalf("invalid commands reached the transport %d times", n)
	}
}

func TestSetBeaconMatchesSegmentZeroPower(t *testing.T) {
	s, fc := connectedSynchronizer(t)
	const mac = "B04E2691AF51"

	s.SetBeacon(mac, true)
	s.SetLightPower(mac, 0, 100)
	s.SetBeacon(mac, false)
	s.SetLightPower(mac, 0, 0)

	pubs := fc.published()
	if len(pubs) != 4 {
		t.Fatalf("expected 4 publishes, got %d", len(pubs))
	}
	if pubs[0] != pubs[1] {
		t.Fatalf("beacon on %+v differs from power 100 %+v", pubs[0], pubs[1])
	}
	if pubs[2] != pubs[3] {
		t.Fatalf("beacon off %+v differs from power 0 %+v", pubs[2], pubs[3])
	}
}

func TestRequestTopics(t *testing.T) {
	s, fc := connectedSynchronizer(t)

	s.GetLightPower(testMAC, 1)
	s.DiscoverLights()
	s.GetTelemetry(testMAC, "")
	s.GetTelemetry(testMAC, "status")

	want := []string{
		"lights/device/" + testMAC + "/segment/1/power/get",
		"lights/discovery/request",
		"lights/device/" + testMAC + "/telemetry/get",
		"lights/device/" + testMAC + "/telemetry/status/get",
	}
	pubs := fc.published()
	if len(pubs) != len(want) {
		t.Fatalf("expected %d publishes, got %d", len(want), len(pubs))
	}
	for i, w := range want {
		if pubs[i].topic != w {
			t.Errorf("publish %d topic = %q, want %q", i, pubs[i].topic, w)
		}
		if pubs[i].payload != "" {
			t.Errorf("publish %d payload = %q, want empty", i, pubs[i].payload)
		}
	}
}

func TestPublishEncodesStructuredPayloads(t *testing.T) {
	s, fc := connectedSynchronizer(t)

	s.Publish("a/b", map[string]int{"power": 10}, 1)
	s.Publish("a/c", []byte("raw"), 0)

	pubs := fc.published()
	if pubs[0].payload != `{"power":10}` || pubs[0].qos != 1 {
		t.Fatalf("json publish = %+v", pubs[0])
	}
	if pubs[1].payload != "raw" {
		t.Fatalf("bytes publish = %+v", pubs[1])
	}
}

func TestPublishTransportError(t *testing.T) {
	s, fc := connectedSynchronizer(t)
	fc.publishErr = errors.New("broker went away")

	if s.Publish("a/b", "x", 0) {
		t.Fatal("publish should report the transport error")
	}
}

func TestMessageUpdatesCache(t *testing.T) {
	s, fc := connectedSynchronizer(t)
	powerTopic := topic.LightPower(testMAC, 2)

	fc.deliver(powerTopic, "40")
	fc.deliver(powerTopic, "55")
	fc.deliver(topic.Telemetry(testMAC), `{"uptime":12}`)
	fc.deliver("lights/device/"+testMAC+"/telemetry/status", "online")

	v, ok := s.PowerState(testMAC, 2)
	if !ok || v != float64(55) {
		t.Fatalf("PowerState = %v, %v", v, ok)
	}
	tel, ok := s.TelemetryState(testMAC)
	if !ok {
		t.Fatal("device telemetry not cached")
	}
	if m, _ := tel.(map[string]any); m["uptime"] != float64(12) {
		t.Fatalf("telemetry = %#v", tel)
	}
	if v, _ := s.State("lights/device/" + testMAC + "/telemetry/status"); v != "online" {
		t.Fatalf("status = %#v", v)
	}
	if _, ok := s.State("lights/device/other/segment/2/power"); ok {
		t.Fatal("unrelated topic should be absent")
	}
	if n := len(s.Snapshot()); n != 3 {
		t.Fatalf("snapshot has %d topics, want 3", n)
	}
}

func TestPowerLevelsAndStatuses(t *testing.T) {
	s, fc := connectedSynchronizer(t)

	fc.deliver(topic.LightPower(testMAC, 0), "100")
	fc.deliver(topic.LightPower(testMAC, 1), `"30"`)
	fc.deliver(topic.LightPower("aa", 1), "broken")
	fc.deliver("lights/device/"+testMAC+"/telemetry/status", `"ok"`)

	levels := s.PowerLevels()
	if levels[testMAC+"_0"] != 100 || levels[testMAC+"_1"] != 30 {
		t.Fatalf("levels = %v", levels)
	}
	if _, ok := levels["aa_1"]; ok {
		t.Fatal("non-numeric payload should be skipped")
	}
	if st := s.Statuses(); st[testMAC+"_status"] != "ok" {
		t.Fatalf("statuses = %v", st)
	}
}

func TestCallbacksOnMatchingTopics(t *testing.T) {
	s, fc := connectedSynchronizer(t)

	var mu sync.Mutex
	var got []string
	s.Subscribe("lights/device/+/segment/+/power", func(tp string, _ any) {
		mu.Lock()
		got = append(got, tp)
		mu.Unlock()
	})

	fc.deliver(topic.LightPower(testMAC, 3), "1")
	fc.deliver(topic.Telemetry(testMAC), "{}")

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != topic.LightPower(testMAC, 3) {
		t.Fatalf("callback topics = %v", got)
	}
}

func TestCallbackWildcardModes(t *testing.T) {
	deep := "lights/device/" + testMAC + "/telemetry/status"
	cases := []struct {
		standard bool
		want     int
	}{
		{standard: false, want: 1},
		{standard: true, want: 2},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("standard=%v", tc.standard), func(t *testing.T) {
			s, fc := newTestSynchronizer(t, Config{StandardWildcards: tc.standard})
			s.Connect()

			var calls int
			s.Subscribe(topic.TelemetryPattern, func(string, any) { calls++ })

			fc.deliver(deep, "ok")
			fc.deliver(topic.Telemetry(testMAC), "{}")

			if calls != tc.want {
				t.Fatalf("calls = %d, want %d", calls, tc.want)
			}
		})
	}
}

func TestCallbackPanicIsRecovered(t *testing.T) {
	s, fc := connectedSynchronizer(t)
	s.Subscribe(topic.LightPowerPattern, func(string, any) { panic("boom") })

	fc.deliver(topic.LightPower(testMAC, 0), "5")

	if v, ok := s.PowerState(testMAC, 0); !ok || v != float64(5) {
		t.Fatalf("cache not updated after panicking callback: %v %v", v, ok)
	}
}

func TestSubscribeDeferredUntilConnect(t *testing.T) {
	s, fc := newTestSynchronizer(t, Config{})

	if s.Subscribe("parking/extra/#", nil) {
		t.Fatal("Subscribe should report false while disconnected")
	}
	s.Connect()

	if !slices.Contains(fc.subscriptions(), "parking/extra/#") {
		t.Fatalf("deferred pattern missing: %v", fc.subscriptions())
	}
}

func TestSubscribeDoesNotWaitForConnect(t *testing.T) {
	s, fc := newTestSynchronizer(t, Config{})
	gate, started := make(chan struct{}), make(chan struct{})
	fc.connectGate, fc.connectStarted = gate, started

	connected := make(chan bool, 1)
	go func() { connected <- s.Connect() }()
	<-started

	res := make(chan bool, 1)
	go func() { res <- s.Subscribe("parking/extra/#", nil) }()
	select {
	case ok := <-res:
		if ok {
			t.Fatal("Subscribe should report false while disconnected")
		}
	case <-time.After(time.Second):
		close(gate)
		t.Fatal("Subscribe blocked on an in-flight Connect")
	}

	close(gate)
	if !<-connected {
		t.Fatal("Connect returned false")
	}
	if !slices.Contains(fc.subscriptions(), "parking/extra/#") {
		t.Fatalf("pattern not applied on connect: %v", fc.subscriptions())
	}
}

func TestConnectionLostAndResubscribe(t *testing.T) {
	s, fc := connectedSynchronizer(t)
	s.Subscribe("parking/extra/#", nil)

	fc.dropConnection(errors.New("eof"))
	if s.Connected() {
		t.Fatal("connection loss should clear the flag")
	}
	if s.SetLightPower(testMAC, 0, 10) {
		t.Fatal("publish after connection loss should fail")
	}

	fc.resetSubscriptions()

	if !s.Connect() {
		t.Fatal("reconnect failed")
	}
	subs := fc.subscriptions()
	for _, p := range append(slices.Clone(defaultPatterns), "parking/extra/#") {
		if !slices.Contains(subs, p) {
			t.Fatalf("pattern %q not restored after reconnect: %v", p, subs)
		}
	}
	if n := countOf(subs, "parking/extra/#"); n != 1 {
		t.Fatalf("extra pattern subscribed %d times", n)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	s, _ := connectedSynchronizer(t)

	s.Disconnect()
	s.Disconnect()
	if s.Connected() {
		t.Fatal("still connected")
	}
	if s.DiscoverLights() {
		t.Fatal("publish after disconnect should fail")
	}
}

func TestConcurrentDeliveryAndReads(t *testing.T) {
	s, fc := connectedSynchronizer(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				fc.deliver(topic.LightPower(testMAC, i), fmt.Sprint(j))
			}
		}(i)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = s.PowerLevels()
				_ = s.Snapshot()
			}
		}()
	}
	wg.Wait()

	levels := s.PowerLevels()
	for i := 0; i < 8; i++ {
		if levels[fmt.Sprintf("%s_%d", testMAC, i)] != 49 {
			t.Fatalf("segment %d level = %v", i, levels[fmt.Sprintf("%s_%d", testMAC, i)])
		}
	}
}

func countOf(list []string, v string) int {
	n := 0
	for _, s := range list {
		if s == v {
			n++
		}
	}
	return n
}
