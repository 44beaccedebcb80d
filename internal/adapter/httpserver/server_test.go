package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	redisadapter "github.com/pscheid92/chainpulse/internal/adapter/redis"
	"github.com/pscheid92/chainpulse/internal/domain"
	"github.com/pscheid92/chainpulse/internal/gateway"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var serverEpoch = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

type fakeRateLimits struct {
	decision domain.RateLimitDecision
	err      error
	resets   []string
}

func (f *fakeRateLimits) Status(_ context.Context, _, _ string) (domain.RateLimitDecision, error) {
	return f.decision, f.err
}

func (f *fakeRateLimits) Reset(_ context.Context, identity, endpoint string) error {
	if f.err != nil {
		return f.err
	}
	f.resets = append(f.resets, endpoint+"/"+identity)
	return nil
}

func (f *fakeRateLimits) Rules() map[string]domain.RateLimitRule {
	return map[string]domain.RateLimitRule{
		domain.GlobalRateLimit: {MaxRequests: 100, Window: time.Minute},
		"publish":              {MaxRequests: 10, Window: time.Minute},
	}
}

type fakeInstances struct {
	infos []redisadapter.InstanceInfo
	err   error
}

func (f *fakeInstances) Instances(context.Context) ([]redisadapter.InstanceInfo, error) {
	return f.infos, f.err
}

type outboxStub struct{}

func (outboxStub) Enqueue([]byte) bool { return true }
func (outboxStub) Close(string)        {}

type serverFixture struct {
	server     *Server
	hub        *gateway.Hub
	clock      *clockwork.FakeClock
	rateLimits *fakeRateLimits
	instances  *fakeInstances
	registry   *prometheus.Registry
	httpM      *metrics.HTTPMetrics
}

func newServerFixture(t *testing.T, cfg Config, checks ...HealthCheck) *serverFixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(serverEpoch)
	reg := prometheus.NewRegistry()
	set := metrics.NewSet(reg)
	hub := gateway.NewHub(gateway.HubConfig{MaxConnections: 10}, set.Gateway, clock)
	f := &serverFixture{
		hub:        hub,
		clock:      clock,
		rateLimits: &fakeRateLimits{},
		instances:  &fakeInstances{},
		registry:   reg,
		httpM:      set.HTTP,
	}
	f.server = NewServer(cfg, Dependencies{
		Hub:            hub,
		WebSocket:      http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) }),
		MetricsHandler: metrics.Handler(reg),
		HTTPMetrics:    set.HTTP,
		RateLimits:     f.rateLimits,
		Instances:      f.instances,
		HealthChecks:   checks,
		Clock:          clock,
	})
	return f
}

func (f *serverFixture) do(method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealth(t *testing.T) {
	f := newServerFixture(t, Config{})
	_, err := f.hub.Connect(context.Background(), "10.0.0.1", outboxStub{})
	require.NoError(t, err)
	f.clock.Advance(42 * time.Second)

	rec := f.do(http.MethodGet, "/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, 1.0, body["connections"])
	assert.Equal(t, 42.0, body["uptime"])
	assert.Equal(t, serverEpoch.Add(42*time.Second).Format(time.RFC3339), body["timestamp"])
}

func TestReadiness(t *testing.T) {
	healthy := HealthCheck{Name: "redis", Check: func(context.Context) error { return nil }}
	broken := HealthCheck{Name: "postgres", Check: func(context.Context) error { return errors.New("connection refused") }}

	t.Run("all checks pass", func(t *testing.T) {
		f := newServerFixture(t, Config{}, healthy)
		rec := f.do(http.MethodGet, "/health/ready", "")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failing check", func(t *testing.T) {
		f := newServerFixture(t, Config{}, healthy, broken)
		rec := f.do(http.MethodGet, "/health/ready", "")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "unhealthy", body["status"])
		assert.Equal(t, map[string]any{"redis": "ok", "postgres": "connection refused"}, body["checks"])
	})
}

func TestLivenessAndVersion(t *testing.T) {
	f := newServerFixture(t, Config{})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health/live", "").Code)

	rec := f.do(http.MethodGet, "/version", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec), "goVersion")
}

func TestMetricsEndpoint(t *testing.T) {
	f := newServerFixture(t, Config{})

	rec := f.do(http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chainpulse_gateway_active_connections")
}

func TestWebSocketRouteIsMounted(t *testing.T) {
	f := newServerFixture(t, Config{})

	rec := f.do(http.MethodGet, "/ws", "")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, 0.0, testutil.ToFloat64(f.httpM.InFlightGauge))
	assert.Equal(t, 0, testutil.CollectAndCount(f.httpM.RequestsTotal), "/ws is not recorded")
}

func TestAdminRequiresToken(t *testing.T) {
	f := newServerFixture(t, Config{AdminToken: "s3cret"})

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/admin/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/admin/stats", "wrong").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin/stats", "s3cret").Code)
}

func TestAdminRateLimitStatus(t *testing.T) {
	f := newServerFixture(t, Config{})
	f.rateLimits.decision = domain.RateLimitDecision{Allowed: true, Remaining: 7, ResetAt: serverEpoch.Add(time.Minute)}

	rec := f.do(http.MethodGet, "/admin/ratelimit/global/user:alice", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "user:alice", body["identity"])
	assert.Equal(t, 7.0, body["remaining"])
}

func TestAdminRateLimitRules(t *testing.T) {
	f := newServerFixture(t, Config{})

	rec := f.do(http.MethodGet, "/admin/ratelimit", "")

	require.Equal(t, http.StatusOK, rec.Code)
	rules := decodeBody(t, rec)["rules"].([]any)
	require.Len(t, rules, 2)
	assert.Equal(t, "global", rules[0].(map[string]any)["endpoint"])
	assert.Equal(t, 10.0, rules[1].(map[string]any)["maxRequests"])
	assert.Equal(t, 60.0, rules[1].(map[string]any)["windowSeconds"])
}

func TestAdminRateLimitErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown rule", domain.ErrUnknownRateLimit, http.StatusNotFound},
		{"store down", domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServerFixture(t, Config{})
			f.rateLimits.err = tt.err

			rec := f.do(http.MethodGet, "/admin/ratelimit/nope/user:alice", "")

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, decodeBody(t, rec), "error")
		})
	}
}

func TestAdminRateLimitReset(t *testing.T) {
	f := newServerFixture(t, Config{})

	rec := f.do(http.MethodDelete, "/admin/ratelimit/publish/user:alice", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"publish/user:alice"}, f.rateLimits.resets)
}

func TestAdminInstances(t *testing.T) {
	f := newServerFixture(t, Config{})
	f.instances.infos = []redisadapter.InstanceInfo{{InstanceID: "gw-1", Connections: 3}}

	rec := f.do(http.MethodGet, "/admin/instances", "")

	require.Equal(t, http.StatusOK, rec.Code)
	instances := decodeBody(t, rec)["instances"].([]any)
	require.Len(t, instances, 1)
	assert.Equal(t, "gw-1", instances[0].(map[string]any)["instanceId"])
}

func TestAdminIsThrottled(t *testing.T) {
	f := newServerFixture(t, Config{AdminRate: 0.001, AdminBurst: 2})

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin/stats", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/admin/stats", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, f.do(http.MethodGet, "/admin/stats", "").Code)
}

func TestCorrelationHeader(t *testing.T) {
	f := newServerFixture(t, Config{})

	rec := f.do(http.MethodGet, "/health", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rec = httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get("X-Request-Id"))
}
