package app

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/LeonardoBeccarini/parkinglot_bridge/internal/model"
	"github.com/LeonardoBeccarini/parkinglot_bridge/pkg/dedup"
)

// DeviceSync is the slice of the MQTT synchronizer the HTTP API drives.
type DeviceSync interface {
	Connected() bool
	SetLightPower(mac string, segment int, power float64) bool
	GetLightPower(mac string, segment int) bool
	SetBeacon(mac string, on bool) bool
	DiscoverLights() bool
	PowerState(mac string, segment int) (any, bool)
	TelemetryState(mac string) (any, bool)
	Snapshot() map[string]any
	PowerLevels() map[string]float64
	Statuses() map[string]any
}

// WeatherSource is the weather station poller.
type WeatherSource interface {
	ConnectAndRead(ctx context.Context) (model.WeatherReading, error)
	LastReading() model.WeatherReading
	Connected() bool
}

type Config struct {
	// StatusCoalesce is the window in which repeated status requests for the
	// same light are answered without a new publish.
	StatusCoalesce time.Duration
	// RefreshTimeout bounds an on-demand weather poll.
	RefreshTimeout time.Duration

	Logger *zerolog.Logger
}

type Gateway struct {
	cfg      Config
	log      zerolog.Logger
	devices  DeviceSync
	station  WeatherSource
	catalog  model.Catalog
	statusRQ *dedup.Deduper
	now      func() time.Time
	engine   *gin.Engine
}

func NewGateway(cfg Config, devices DeviceSync, station WeatherSource, catalog model.Catalog) *Gateway {
	if cfg.StatusCoalesce <= 0 {
		cfg.StatusCoalesce = 2 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 15 * time.Second
	}
	l := log.Logger.With().Str("component", "gateway").Logger()
	if cfg.Logger != nil {
		l = *cfg.Logger
	}

	gin.SetMode(gin.ReleaseMode)
	g := &Gateway{
		cfg:      cfg,
		log:      l,
		devices:  devices,
		station:  station,
		catalog:  catalog,
		statusRQ: dedup.New(cfg.StatusCoalesce, 0),
		now:      time.Now,
		engine:   gin.New(),
	}
	setupMiddleware(g.engine, g.log)
	g.setupRoutes()
	return g
}

// Handler exposes the router for an http.Server.
func (g *Gateway) Handler() http.Handler {
	return g.engine
}

func (g *Gateway) setupRoutes() {
	r := g.engine
	r.GET("/healthz", g.HandleHealth)
	r.GET("/readyz", g.HandleReady)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/catalog", g.HandleCatalog)

		v1.GET("/weather", g.HandleWeather)
		v1.POST("/weather/refresh", g.HandleWeatherRefresh)

		v1.GET("/devices/states", g.HandleDeviceStates)
		v1.GET("/devices/:mac/state", g.HandleDeviceState)

		lights := v1.Group("/lights")
		{
			lights.GET("/states", g.HandleLightStates)
			lights.POST("/power", g.HandleAllLightsPower)
			lights.POST("/refresh", g.HandleRefreshAll)
			lights.POST("/:mac/segments/:segment/power", g.HandleLightPower)
			lights.POST("/:mac/segments/:segment/refresh", g.HandleLightRefresh)
		}

		v1.POST("/poles/:pole/power", g.HandlePolePower)
		v1.POST("/beacons/:id", g.HandleBeacon)
		v1.POST("/discovery", g.HandleDiscovery)
	}
}
