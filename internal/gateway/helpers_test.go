package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// fakeOutbox records frames and can simulate a full queue.
type fakeOutbox struct {
	mu       sync.Mutex
	frames   [][]byte
	capacity int
	closed   bool
	reason   string
	closes   int
}

func newFakeOutbox() *fakeOutbox { return &fakeOutbox{capacity: -1} }

func (o *fakeOutbox) Enqueue(frame []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.capacity >= 0 && len(o.frames) >= o.capacity {
		return false
	}
	o.frames = append(o.frames, frame)
	return true
}

func (o *fakeOutbox) Close(reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	o.reason = reason
	o.closes++
}

func (o *fakeOutbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.frames)
}

func (o *fakeOutbox) last(t *testing.T) decodedFrame {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.frames, "no frames sent")
	var f decodedFrame
	require.NoError(t, json.Unmarshal(o.frames[len(o.frames)-1], &f))
	return f
}

func (o *fakeOutbox) kinds() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.frames))
	for _, b := range o.frames {
		var f decodedFrame
		_ = json.Unmarshal(b, &f)
		out = append(out, f.Type)
	}
	return out
}

type decodedFrame struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

type panicOutbox struct{}

func (panicOutbox) Enqueue([]byte) bool { panic("boom") }
func (panicOutbox) Close(string)        {}

func newTestHub(t *testing.T, cfg HubConfig) (*Hub, *clockwork.FakeClock, *metrics.GatewayMetrics) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	m := metrics.NewGatewayMetrics(prometheus.NewRegistry())
	if cfg.MaxConnections == 0 {
		cfg.MaxConnections = 100
	}
	return NewHub(cfg, m, clock), clock, m
}

func mustConnect(t *testing.T, h *Hub, outbox Outbox) *Connection {
	t.Helper()
	c, err := h.Connect(context.Background(), "10.0.0.1:5000", outbox)
	require.NoError(t, err)
	return c
}
