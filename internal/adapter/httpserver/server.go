package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	redisadapter "github.com/pscheid92/chainpulse/internal/adapter/redis"
	"github.com/pscheid92/chainpulse/internal/domain"
	"github.com/pscheid92/chainpulse/internal/gateway"
)

// rateLimitAdmin is the operator view of the client rate limiter.
type rateLimitAdmin interface {
	Status(ctx context.Context, identity, endpoint string) (domain.RateLimitDecision, error)
	Reset(ctx context.Context, identity, endpoint string) error
	Rules() map[string]domain.RateLimitRule
}

type instanceLister interface {
	Instances(ctx context.Context) ([]redisadapter.InstanceInfo, error)
}

// Config is the subset of the gateway configuration the HTTP server needs.
type Config struct {
	Port       string
	AdminToken string
	AdminRate  float64
	AdminBurst int
}

// Dependencies are the components the HTTP server exposes. RateLimits and
// Instances may be nil, which disables their admin routes.
type Dependencies struct {
	Hub            *gateway.Hub
	WebSocket      http.Handler
	MetricsHandler http.Handler
	HTTPMetrics    *metrics.HTTPMetrics
	RateLimits     rateLimitAdmin
	Instances      instanceLister
	HealthChecks   []HealthCheck
	Clock          clockwork.Clock
}

type Server struct {
	echo   *echo.Echo
	config Config

	hub            *gateway.Hub
	websocket      http.Handler
	metricsHandler http.Handler
	httpMetrics    *metrics.HTTPMetrics
	rateLimits     rateLimitAdmin
	instances      instanceLister
	healthChecks   []HealthCheck

	clock     clockwork.Clock
	startTime time.Time
}

func NewServer(cfg Config, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	if cfg.AdminRate <= 0 {
		cfg.AdminRate = 5
	}
	if cfg.AdminBurst <= 0 {
		cfg.AdminBurst = 10
	}

	srv := &Server{
		echo:           e,
		config:         cfg,
		hub:            deps.Hub,
		websocket:      deps.WebSocket,
		metricsHandler: deps.MetricsHandler,
		httpMetrics:    deps.HTTPMetrics,
		rateLimits:     deps.RateLimits,
		instances:      deps.Instances,
		healthChecks:   deps.HealthChecks,
		clock:          deps.Clock,
		startTime:      deps.Clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
