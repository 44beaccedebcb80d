package httpserver

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) registerRoutes() {
	s.echo.Use(correlationMiddleware)
	s.echo.Use(requestLogger())
	s.echo.Use(middleware.Recover())
	s.echo.Use(ErrorHandlingMiddleware())
	if s.httpMetrics != nil {
		s.echo.Use(s.httpMetrics.Middleware(isOperationalRoute))
	}

	s.echo.GET("/ws", echo.WrapHandler(s.websocket))
	if s.metricsHandler != nil {
		s.echo.GET("/metrics", echo.WrapHandler(s.metricsHandler))
	}

	s.registerHealthRoutes()
	s.registerAdminRoutes()
}

// isOperationalRoute matches scrapes, probes and the long-lived WebSocket
// upgrade, which are neither logged per request nor timed.
func isOperationalRoute(route string) bool {
	switch {
	case route == "/ws", route == "/metrics", route == "/health":
		return true
	default:
		return strings.HasPrefix(route, "/health/")
	}
}

func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper:     func(c echo.Context) bool { return isOperationalRoute(c.Path()) },
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"remote_ip", v.RemoteIP,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			slog.Log(c.Request().Context(), level, "Admin request", attrs...)
			return nil
		},
	})
}
