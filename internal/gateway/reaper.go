package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
)

// Reaper periodically evicts connections that stopped sending heartbeats.
type Reaper struct {
	hub      *Hub
	clock    clockwork.Clock
	metrics  *metrics.GatewayMetrics
	interval time.Duration
	timeout  time.Duration
}

func NewReaper(hub *Hub, clock clockwork.Clock, m *metrics.GatewayMetrics, interval, timeout time.Duration) *Reaper {
	return &Reaper{hub: hub, clock: clock, metrics: m, interval: interval, timeout: timeout}
}

// Run sweeps every interval. It blocks until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if n := r.Sweep(); n > 0 {
				slog.InfoContext(ctx, "Reaper: evicted idle connections", "evicted", n, "connections", r.hub.registry.Len())
			}
		}
	}
}

// Sweep evicts every connection whose last heartbeat is older than the
// timeout and returns how many it evicted.
func (r *Reaper) Sweep() int {
	now := r.clock.Now()
	evicted := 0

	r.hub.registry.Range(func(c *Connection) bool {
		idle := now.Sub(c.LastHeartbeat())
		if idle <= r.timeout {
			return true
		}
		if r.hub.Disconnect(c, ReasonHeartbeatTimeout) {
			evicted++
			r.metrics.Evictions.Inc()
			slog.DebugContext(c.ctx, "Reaper: evicted connection", "idle", idle)
		}
		return true
	})
	return evicted
}
