package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/topic"
)

func (g *Gateway) HandleHealth(c *gin.Context) {
	resp := HealthResponse{
		MQTTConnected:    g.devices.Connected(),
		WeatherConnected: g.station.Connected(),
	}
	switch {
	case resp.MQTTConnected && resp.WeatherConnected:
		resp.Status = "ok"
	case resp.MQTTConnected || resp.WeatherConnected:
		resp.Status = "degraded"
	default:
		resp.Status = "down"
	}
	if r := g.station.LastReading(); !r.IsZero() {
		age := g.now().Sub(r.Timestamp).Seconds()
		resp.WeatherAgeSec = &age
	}
	c.JSON(http.StatusOK, resp)
}

func (g *Gateway) HandleReady(c *gin.Context) {
	if !g.devices.Connected() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "mqtt disconnected"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (g *Gateway) HandleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, g.catalog)
}

// ---------- Weather ----------

func (g *Gateway) HandleWeather(c *gin.Context) {
	r := g.station.LastReading()
	if r.IsZero() {
		writeError(c, http.StatusNotFound, "no_reading", "no weather reading captured yet")
		return
	}
	c.JSON(http.StatusOK, WeatherResponse{Reading: r, Connected: g.station.Connected()})
}

func (g *Gateway) HandleWeatherRefresh(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), g.cfg.RefreshTimeout)
	defer cancel()

	r, err := g.station.ConnectAndRead(ctx)
	if err != nil {
		code := "station_error"
		if errors.Is(err, model.ErrBreakerOpen) {
			code = "breaker_open"
		}
		writeError(c, http.StatusBadGateway, code, err.Error())
		return
	}
	c.JSON(http.StatusOK, WeatherResponse{Reading: r, Connected: true})
}

// ---------- Device state ----------

func (g *Gateway) HandleDeviceStates(c *gin.Context) {
	c.JSON(http.StatusOK, g.devices.Snapshot())
}

func (g *Gateway) HandleLightStates(c *gin.Context) {
	c.JSON(http.StatusOK, LightStatesResponse{
		Levels:   g.devices.PowerLevels(),
		Statuses: g.devices.Statuses(),
	})
}

// HandleDeviceState returns the cached power of ?segment=N, or the device
// telemetry when no segment is given.
func (g *Gateway) HandleDeviceState(c *gin.Context) {
	mac := c.Param("mac")
	resp := DeviceStateResponse{MAC: mac}

	var (
		v  any
		ok bool
	)
	if raw, has := c.GetQuery("segment"); has {
		seg, err := parseSegment(raw)
		if err != nil {
			badRequest(c, err)
			return
		}
		resp.Segment = &seg
		resp.Topic = topic.LightPower(mac, seg)
		v, ok = g.devices.PowerState(mac, seg)
	} else {
		resp.Topic = topic.Telemetry(mac)
		v, ok = g.devices.TelemetryState(mac)
	}
	if !ok {
		writeError(c, http.StatusNotFound, "not_found", "no state received on "+resp.Topic)
		return
	}
	resp.Value = v
	c.JSON(http.StatusOK, resp)
}

// ---------- Commands ----------

func (g *Gateway) HandleLightPower(c *gin.Context) {
	mac := c.Param("mac")
	seg, err := parseSegment(c.Param("segment"))
	if err != nil {
		badRequest(c, err)
		return
	}
	power, ok := bindPower(c)
	if !ok {
		return
	}
	cmd := model.PowerCommand(mac, seg, power)
	if err := cmd.Validate(); err != nil {
		badRequest(c, err)
		return
	}
	if !g.devices.SetLightPower(mac, seg, power) {
		unavailable(c)
		return
	}
	c.JSON(http.StatusAccepted, CommandResponse{Topic: cmd.Topic(), Sent: true})
}

func (g *Gateway) HandleLightRefresh(c *gin.Context) {
	mac := c.Param("mac")
	seg, err := parseSegment(c.Param("segment"))
	if err != nil {
		badRequest(c, err)
		return
	}
	if err := model.PowerCommand(mac, seg, 0).Validate(); err != nil {
		badRequest(c, err)
		return
	}
	if !g.devices.Connected() {
		unavailable(c)
		return
	}
	sent, coalesced := g.requestStatus(mac, seg)
	if !sent && !coalesced {
		unavailable(c)
		return
	}
	c.JSON(http.StatusAccepted, CommandResponse{
		Topic:     topic.LightPowerGet(mac, seg),
		Sent:      sent,
		Coalesced: coalesced,
	})
}

// HandleRefreshAll asks every catalog light for its power level.
func (g *Gateway) HandleRefreshAll(c *gin.Context) {
	if !g.devices.Connected() {
		unavailable(c)
		return
	}
	var res BatchResponse
	for _, l := range g.catalog.Lights() {
		res.Requested++
		switch sent, coalesced := g.requestStatus(l.MAC, l.Segment); {
		case sent:
			res.Sent++
		case coalesced:
			res.Coalesced++
		default:
			res.Failed++
		}
	}
	g.batchReply(c, res)
}

func (g *Gateway) HandleAllLightsPower(c *gin.Context) {
	power, ok := bindPower(c)
	if !ok {
		return
	}
	g.setPower(c, g.catalog.Lights(), power)
}

func (g *Gateway) HandlePolePower(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("pole"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "pole id must be an integer")
		return
	}
	pole, err := g.catalog.Pole(id)
	if err != nil {
		writeError(c, http.StatusNotFound, "unknown_pole", err.Error())
		return
	}
	power, ok := bindPower(c)
	if !ok {
		return
	}
	g.setPower(c, pole.Devices, power)
}

func (g *Gateway) HandleBeacon(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid_request", "beacon id must be an integer")
		return
	}
	b, err := g.catalog.Beacon(id)
	if err != nil {
		writeError(c, http.StatusNotFound, "unknown_beacon", err.Error())
		return
	}
	var req BeaconRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.On == nil {
		writeError(c, http.StatusBadRequest, "invalid_request", `body must be {"on": true|false}`)
		return
	}
	if !g.devices.SetBeacon(b.MAC, *req.On) {
		unavailable(c)
		return
	}
	c.JSON(http.StatusAccepted, CommandResponse{Topic: model.BeaconCommand(b.MAC, *req.On).Topic(), Sent: true})
}

func (g *Gateway) HandleDiscovery(c *gin.Context) {
	if !g.devices.DiscoverLights() {
		unavailable(c)
		return
	}
	c.JSON(http.StatusAccepted, CommandResponse{Topic: topic.DiscoveryRequest, Sent: true})
}

// ---------- Helpers ----------

// requestStatus publishes a power/get for one segment unless the same
// request went out within the coalescing window.
func (g *Gateway) requestStatus(mac string, seg int) (sent, coalesced bool) {
	key := topic.LightPowerGet(mac, seg)
	if !g.statusRQ.ShouldProcess(key) {
		return false, true
	}
	if !g.devices.GetLightPower(mac, seg) {
		g.statusRQ.Forget(key)
		return false, false
	}
	return true, false
}

func (g *Gateway) setPower(c *gin.Context, lights []model.Light, power float64) {
	if !g.devices.Connected() {
		unavailable(c)
		return
	}
	var res BatchResponse
	for _, l := range lights {
		res.Requested++
		if g.devices.SetLightPower(l.MAC, l.Segment, power) {
			res.Sent++
		} else {
			res.Failed++
		}
	}
	g.batchReply(c, res)
}

func (g *Gateway) batchReply(c *gin.Context, res BatchResponse) {
	if res.Requested > 0 && res.Sent == 0 && res.Coalesced == 0 {
		c.JSON(http.StatusServiceUnavailable, res)
		return
	}
	if res.Failed > 0 {
		g.log.Warn().Int("failed", res.Failed).Int("requested", res.Requested).Msg("batch partially published")
	}
	c.JSON(http.StatusAccepted, res)
}

func bindPower(c *gin.Context) (float64, bool) {
	var req PowerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Power == nil {
		writeError(c, http.StatusBadRequest, "invalid_request", `body must be {"power": 0..100}`)
		return 0, false
	}
	if *req.Power < 0 || *req.Power > 100 {
		badRequest(c, fmt.Errorf("%w: %v", model.ErrPowerRange, *req.Power))
		return 0, false
	}
	return *req.Power, true
}

func parseSegment(raw string) (int, error) {
	seg, err := strconv.Atoi(raw)
	if err != nil || seg < 0 {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidSegment, raw)
	}
	return seg, nil
}

func badRequest(c *gin.Context, err error) {
	code := "invalid_request"
	switch {
	case errors.Is(err, model.ErrPowerRange):
		code = "power_out_of_range"
	case errors.Is(err, model.ErrInvalidMAC):
		code = "invalid_mac"
	case errors.Is(err, model.ErrInvalidSegment):
		code = "invalid_segment"
	}
	writeError(c, http.StatusBadRequest, code, err.Error())
}

func unavailable(c *gin.Context) {
	writeError(c, http.StatusServiceUnavailable, "not_connected", model.ErrNotConnected.Error())
}

func writeError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, ErrorResponse{Error: code, Message: msg})
}
