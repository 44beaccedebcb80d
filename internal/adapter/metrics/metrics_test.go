package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSet_RegistersAndServes(t *testing.T) {
	reg := NewRegistry()
	set := NewSet(reg)

	set.Gateway.MessagesDropped.Inc()
	set.RateLimit.FailOpen.Inc()
	set.Redis.OpsTotal.WithLabelValues("evalsha", "success").Inc()

	assert.InDelta(t, 1, testutil.ToFloat64(set.Gateway.MessagesDropped), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(set.RateLimit.FailOpen), 0)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "chainpulse_gateway_messages_dropped_total 1")
	assert.Contains(t, body, "chainpulse_ratelimit_fail_open_total 1")
	assert.Contains(t, body, "go_goroutines")
}

func TestNewSet_DoubleRegistrationPanics(t *testing.T) {
	reg := NewRegistry()
	NewSet(reg)
	assert.Panics(t, func() { NewGatewayMetrics(reg) })
}
