package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRemoteAddr = "1.2.3.4:1234"

func serveThrottled(t *testing.T, handler echo.HandlerFunc, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	require.NoError(t, handler(echo.New().NewContext(req, rec)))
	return rec
}

func throttledOK(ratePerSecond float64, burst int) echo.HandlerFunc {
	return newAdminRateLimiter(ratePerSecond, burst)(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func TestAdminRateLimiterAllowsBurst(t *testing.T) {
	handler := throttledOK(10, 3)

	for range 3 {
		assert.Equal(t, http.StatusOK, serveThrottled(t, handler, testRemoteAddr).Code)
	}
}

func TestAdminRateLimiterBlocksExcess(t *testing.T) {
	handler := throttledOK(0.01, 1)

	assert.Equal(t, http.StatusOK, serveThrottled(t, handler, testRemoteAddr).Code)
	rec := serveThrottled(t, handler, testRemoteAddr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "rate limit exceeded", resp["error"])
	assert.Equal(t, "rate_limited", resp["type"])
}

func TestAdminRateLimiterKeysByIP(t *testing.T) {
	handler := throttledOK(0.01, 1)

	assert.Equal(t, http.StatusOK, serveThrottled(t, handler, testRemoteAddr).Code)
	assert.Equal(t, http.StatusOK, serveThrottled(t, handler, "5.6.7.8:5678").Code)
	assert.Equal(t, http.StatusTooManyRequests, serveThrottled(t, handler, testRemoteAddr).Code)
}
