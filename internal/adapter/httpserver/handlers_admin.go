package httpserver

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/chainpulse/internal/domain"
	apperrors "github.com/pscheid92/chainpulse/internal/platform/errors"
)

type rateLimitStatusResponse struct {
	Identity  string    `json:"identity"`
	Endpoint  string    `json:"endpoint"`
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}

func (s *Server) registerAdminRoutes() {
	admin := s.echo.Group("/admin",
		adminAuthMiddleware(s.config.AdminToken),
		newAdminRateLimiter(s.config.AdminRate, s.config.AdminBurst),
	)

	admin.GET("/stats", s.handleStats)
	if s.rateLimits != nil {
		admin.GET("/ratelimit", s.handleRateLimitRules)
		admin.GET("/ratelimit/:endpoint/:identity", s.handleRateLimitStatus)
		admin.DELETE("/ratelimit/:endpoint/:identity", s.handleRateLimitReset)
	}
	if s.instances != nil {
		admin.GET("/instances", s.handleInstances)
	}
}

func (s *Server) handleStats(c echo.Context) error {
	if err := c.JSON(http.StatusOK, s.hub.Stats()); err != nil {
		return fmt.Errorf("failed to write stats response: %w", err)
	}
	return nil
}

type rateLimitRuleResponse struct {
	Endpoint      string  `json:"endpoint"`
	MaxRequests   int     `json:"maxRequests"`
	WindowSeconds float64 `json:"windowSeconds"`
}

func (s *Server) handleRateLimitRules(c echo.Context) error {
	rules := s.rateLimits.Rules()
	response := make([]rateLimitRuleResponse, 0, len(rules))
	for endpoint, rule := range rules {
		response = append(response, rateLimitRuleResponse{
			Endpoint:      endpoint,
			MaxRequests:   rule.MaxRequests,
			WindowSeconds: rule.Window.Seconds(),
		})
	}
	slices.SortFunc(response, func(a, b rateLimitRuleResponse) int {
		return strings.Compare(a.Endpoint, b.Endpoint)
	})

	if err := c.JSON(http.StatusOK, map[string]any{"rules": response}); err != nil {
		return fmt.Errorf("failed to write rate limit rules response: %w", err)
	}
	return nil
}

func (s *Server) handleRateLimitStatus(c echo.Context) error {
	endpoint, identity := c.Param("endpoint"), c.Param("identity")

	decision, err := s.rateLimits.Status(c.Request().Context(), identity, endpoint)
	if err != nil {
		return rateLimitError(err, endpoint)
	}

	response := rateLimitStatusResponse{
		Identity:  identity,
		Endpoint:  endpoint,
		Allowed:   decision.Allowed,
		Remaining: decision.Remaining,
		ResetAt:   decision.ResetAt.UTC(),
	}
	if err := c.JSON(http.StatusOK, response); err != nil {
		return fmt.Errorf("failed to write rate limit response: %w", err)
	}
	return nil
}

func (s *Server) handleRateLimitReset(c echo.Context) error {
	endpoint, identity := c.Param("endpoint"), c.Param("identity")

	if err := s.rateLimits.Reset(c.Request().Context(), identity, endpoint); err != nil {
		return rateLimitError(err, endpoint)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleInstances(c echo.Context) error {
	instances, err := s.instances.Instances(c.Request().Context())
	if err != nil {
		return apperrors.UnavailableError("instance registry unavailable", err)
	}
	if err := c.JSON(http.StatusOK, map[string]any{"instances": instances}); err != nil {
		return fmt.Errorf("failed to write instances response: %w", err)
	}
	return nil
}

func rateLimitError(err error, endpoint string) error {
	switch {
	case errors.Is(err, domain.ErrUnknownRateLimit):
		return apperrors.NotFoundError("unknown rate limit rule").WithContext("endpoint", endpoint)
	case errors.Is(err, domain.ErrStoreUnavailable):
		return apperrors.UnavailableError("rate limit store unavailable", err)
	default:
		return apperrors.InternalError("rate limit lookup failed", err)
	}
}
