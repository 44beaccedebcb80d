package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
	"github.com/pscheid92/chainpulse/internal/platform/correlation"
)

var (
	ErrNotSubscribed        = errors.New("not subscribed")
	ErrTooManySubscriptions = errors.New("subscription limit reached")
)

// Close reasons sent to clients.
const (
	ReasonHeartbeatTimeout = "heartbeat timeout"
	ReasonShutdown         = "server shutting down"
	ReasonClientClosed     = "client closed"
)

// HubConfig bounds the hub's resources.
type HubConfig struct {
	MaxConnections   int
	MaxSubscriptions int
}

// Hub owns the Registry and the Router and is the only place that mutates
// them, keeping the two consistent.
type Hub struct {
	registry  *Registry
	router    *Router
	clock     clockwork.Clock
	metrics   *metrics.GatewayMetrics
	meter     *rateMeter
	startedAt time.Time
	maxSubs   int
}

func NewHub(cfg HubConfig, m *metrics.GatewayMetrics, clock clockwork.Clock) *Hub {
	return &Hub{
		registry:  NewRegistry(cfg.MaxConnections),
		router:    NewRouter(m),
		clock:     clock,
		metrics:   m,
		meter:     newRateMeter(clock),
		startedAt: clock.Now(),
		maxSubs:   cfg.MaxSubscriptions,
	}
}

func (h *Hub) Registry() *Registry { return h.registry }

func (h *Hub) Router() *Router { return h.router }

// Connect admits a new connection. When the registry is full it returns
// domain.ErrCapacityExceeded and creates no state.
func (h *Hub) Connect(ctx context.Context, remoteAddr string, outbox Outbox) (*Connection, error) {
	if !h.registry.reserve() {
		h.metrics.ConnectionsRejected.WithLabelValues("capacity").Inc()
		return nil, domain.ErrCapacityExceeded
	}

	id := uuid.NewString()
	ctx = correlation.WithConnectionID(correlation.WithID(ctx, correlation.NewID()), id)
	c := newConnection(ctx, id, remoteAddr, outbox, h.clock.Now())
	h.registry.insert(c)

	h.metrics.ConnectionsTotal.Inc()
	h.metrics.ActiveConnections.Inc()
	slog.DebugContext(ctx, "Connection registered", "remote_addr", remoteAddr, "connections", h.registry.Len())
	return c, nil
}

// Disconnect destroys c: it leaves every channel, is removed from the
// registry and its transport is closed with reason. Only the first call
// has an effect; it reports whether this call closed the connection.
func (h *Hub) Disconnect(c *Connection, reason string) bool {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return false
	}
	c.state = StateClosed
	c.closed.Store(true)
	channels := make([]string, 0, len(c.subscriptions))
	for ch := range c.subscriptions {
		channels = append(channels, ch)
	}
	c.subscriptions = nil
	c.mu.Unlock()

	for _, ch := range channels {
		h.router.remove(ch, c.id)
	}
	if h.registry.remove(c.id) {
		h.metrics.ActiveConnections.Dec()
	}
	c.outbox.Close(reason)

	slog.DebugContext(c.ctx, "Connection closed", "reason", reason, "channels", len(channels), "dropped", c.Dropped())
	return true
}

// Subscribe creates or replaces c's subscription to channel. It reports
// whether an existing subscription was replaced.
func (h *Hub) Subscribe(c *Connection, channel string, filter *domain.Filter) (bool, error) {
	if filter.IsEmpty() {
		filter = nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return false, domain.ErrConnectionClosed
	}
	if _, exists := c.subscriptions[channel]; !exists && h.maxSubs > 0 && len(c.subscriptions) >= h.maxSubs {
		return false, ErrTooManySubscriptions
	}

	c.subscriptions[channel] = filter
	return h.router.add(channel, c, filter), nil
}

// Unsubscribe removes c's subscription to channel.
func (h *Hub) Unsubscribe(c *Connection, channel string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateClosed {
		return domain.ErrConnectionClosed
	}
	if _, ok := c.subscriptions[channel]; !ok {
		return ErrNotSubscribed
	}

	delete(c.subscriptions, channel)
	h.router.remove(channel, c.id)
	return nil
}

// Publish fans msg out to local subscribers.
func (h *Hub) Publish(msg *domain.Message) int {
	h.meter.mark(1)
	h.metrics.MessagesPublished.Inc()
	return h.router.Publish(msg)
}

// Stats returns the gateway-wide counters.
func (h *Hub) Stats() Stats {
	return Stats{
		TotalConnections:  h.registry.Len(),
		ActiveChannels:    h.router.ChannelCount(),
		MessagesPerSecond: h.meter.rate(),
		Uptime:            uptimeSeconds(h.clock, h.startedAt),
	}
}

// CloseAll disconnects every connection with reason.
func (h *Hub) CloseAll(reason string) int {
	closed := 0
	h.registry.Range(func(c *Connection) bool {
		if h.Disconnect(c, reason) {
			closed++
		}
		return true
	})
	return closed
}
