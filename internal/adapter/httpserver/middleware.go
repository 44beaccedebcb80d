package httpserver

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pscheid92/chainpulse/internal/platform/correlation"
	apperrors "github.com/pscheid92/chainpulse/internal/platform/errors"
)

func correlationMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := c.Request().Header.Get(echo.HeaderXRequestID)
		if id == "" {
			id = correlation.NewID()
		}
		c.Response().Header().Set(echo.HeaderXRequestID, id)
		c.SetRequest(c.Request().WithContext(correlation.WithID(c.Request().Context(), id)))
		return next(c)
	}
}

// ErrorHandlingMiddleware renders structured errors as JSON. echo's own
// HTTP errors pass through to its default handler.
func ErrorHandlingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}

			if _, ok := errors.AsType[*echo.HTTPError](err); ok {
				return err
			}

			return HandleError(c, err)
		}
	}
}

func HandleError(c echo.Context, err error) error {
	if err == nil {
		return nil
	}

	structuredErr := apperrors.AsStructuredError(err)
	logError(c, structuredErr)
	if err := c.JSON(structuredErr.HTTPStatus(), structuredErr.ToResponse()); err != nil {
		return fmt.Errorf("failed to write error response: %w", err)
	}
	return nil
}

func logError(c echo.Context, err *apperrors.Error) {
	ctx := c.Request().Context()
	attrs := []any{
		"error_type", err.Type,
		"message", err.Message,
		"path", c.Request().URL.Path,
		"method", c.Request().Method,
		"status", err.HTTPStatus(),
	}
	for k, v := range err.Context {
		attrs = append(attrs, k, v)
	}

	switch err.Type {
	case apperrors.TypeValidation, apperrors.TypeNotFound, apperrors.TypeUnauthorized, apperrors.TypeRateLimited:
		slog.InfoContext(ctx, "Client error", attrs...)
	case apperrors.TypeUnavailable:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.WarnContext(ctx, "Dependency unavailable", attrs...)
	default:
		if err.Cause != nil {
			attrs = append(attrs, "cause", err.Cause)
		}
		slog.ErrorContext(ctx, "Internal error", attrs...)
	}
}

// adminAuthMiddleware requires "Authorization: Bearer <token>". An empty
// token leaves the admin routes open.
func adminAuthMiddleware(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper: func(echo.Context) bool { return token == "" },
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return HandleError(c, apperrors.UnauthorizedError("invalid or missing admin token"))
		},
	})
}

func rejectTooManyRequests(c echo.Context, _ string, _ error) error {
	return c.JSON(http.StatusTooManyRequests, apperrors.RateLimitedError("rate limit exceeded").ToResponse())
}
