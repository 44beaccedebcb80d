package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chainpulse/internal/platform/version"
)

const readinessProbeTimeout = 5 * time.Second

// HealthCheck is a named dependency probe for /health/ready.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type healthResponse struct {
	Status      string    `json:"status"`
	Connections int       `json:"connections"`
	Uptime      float64   `json:"uptime"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Server) registerHealthRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/version", s.handleVersion)
}

func (s *Server) handleHealth(c echo.Context) error {
	response := healthResponse{
		Status:      "healthy",
		Connections: s.hub.Registry().Len(),
		Uptime:      s.clock.Since(s.startTime).Seconds(),
		Timestamp:   s.clock.Now().UTC(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write health response: %w", err)
	}
	return nil
}

func (s *Server) handleLiveness(c echo.Context) error {
	response := map[string]any{
		"status": "ok",
		"uptime": s.clock.Since(s.startTime).Seconds(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write liveness response: %w", err)
	}
	return nil
}

type readinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// handleReadiness probes every dependency concurrently and reports each
// result, so one slow backend does not hide the state of the others.
func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), readinessProbeTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		healthy = true
		checks  = make(map[string]string, len(s.healthChecks))
	)
	for _, hc := range s.healthChecks {
		wg.Go(func() {
			result := "ok"
			if err := hc.Check(ctx); err != nil {
				result = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			checks[hc.Name] = result
			if result != "ok" {
				healthy = false
			}
		})
	}
	wg.Wait()

	response := readinessResponse{Status: "ready", Checks: checks}
	code := http.StatusOK
	if !healthy {
		response.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	if err := c.JSON(code, response); err != nil {
		return fmt.Errorf("failed to write readiness response: %w", err)
	}
	return nil
}

func (s *Server) handleVersion(c echo.Context) error {
	if err := c.JSON(http.StatusOK, version.Get()); err != nil {
		return fmt.Errorf("failed to write version response: %w", err)
	}
	return nil
}
