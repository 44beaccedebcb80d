package gateway

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
)

type subscriber struct {
	conn   *Connection
	filter *domain.Filter
}

type routerShard struct {
	mu       sync.RWMutex
	channels map[string]map[string]subscriber
}

// Router maps channel names to their subscribers and fans published
// messages out to them. Channels are sharded by name: subscribe and
// unsubscribe take one shard's write lock, fan-out takes its read lock only
// long enough to copy the subscriber set.
type Router struct {
	shards        [shardCount]routerShard
	channels      atomic.Int64
	subscriptions atomic.Int64
	metrics       *metrics.GatewayMetrics
}

func NewRouter(m *metrics.GatewayMetrics) *Router {
	r := &Router{metrics: m}
	for i := range r.shards {
		r.shards[i].channels = make(map[string]map[string]subscriber)
	}
	return r
}

// add registers c under channel, replacing any previous filter. It reports
// whether an existing subscription was replaced.
func (r *Router) add(channel string, c *Connection, filter *domain.Filter) bool {
	s := &r.shards[shardIndex(channel)]
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.channels[channel]
	if !ok {
		subs = make(map[string]subscriber)
		s.channels[channel] = subs
		r.channels.Add(1)
		r.metrics.ActiveChannels.Inc()
	}

	_, replaced := subs[c.id]
	subs[c.id] = subscriber{conn: c, filter: filter}
	if !replaced {
		r.subscriptions.Add(1)
		r.metrics.Subscriptions.Inc()
	}
	return replaced
}

// remove drops connID from channel and deletes the channel once empty.
func (r *Router) remove(channel, connID string) bool {
	s := &r.shards[shardIndex(channel)]
	s.mu.Lock()
	defer s.mu.Unlock()

	subs, ok := s.channels[channel]
	if !ok {
		return false
	}
	if _, ok := subs[connID]; !ok {
		return false
	}

	delete(subs, connID)
	r.subscriptions.Add(-1)
	r.metrics.Subscriptions.Dec()

	if len(subs) == 0 {
		delete(s.channels, channel)
		r.channels.Add(-1)
		r.metrics.ActiveChannels.Dec()
	}
	return true
}

func (r *Router) snapshot(channel string) []subscriber {
	s := &r.shards[shardIndex(channel)]
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := s.channels[channel]
	if len(subs) == 0 {
		return nil
	}
	out := make([]subscriber, 0, len(subs))
	for _, sub := range subs {
		out = append(out, sub)
	}
	return out
}

// Publish delivers msg to every subscriber of msg.Channel whose filter
// accepts it and returns how many connections it was enqueued to. A
// channel without subscribers is a no-op.
func (r *Router) Publish(msg *domain.Message) int {
	subs := r.snapshot(msg.Channel)
	if len(subs) == 0 {
		return 0
	}

	timer := prometheus.NewTimer(r.metrics.FanoutDuration)
	defer timer.ObserveDuration()

	frame, err := EncodeFrame(KindMessage, msg)
	if err != nil {
		slog.Error("Failed to encode message", "channel", msg.Channel, "type", msg.Type, "error", err)
		return 0
	}

	value, hasValue := msg.NumericValue()

	delivered := 0
	for _, sub := range subs {
		if r.deliver(sub, msg, frame, value, hasValue) {
			delivered++
		}
	}
	return delivered
}

func (r *Router) deliver(sub subscriber, msg *domain.Message, frame []byte, value float64, hasValue bool) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.DeliveryPanics.Inc()
			slog.ErrorContext(sub.conn.ctx, "Recovered panic during delivery", "channel", msg.Channel, "panic", p)
			ok = false
		}
	}()

	if !sub.filter.Matches(msg, value, hasValue) {
		return false
	}

	switch sub.conn.send(frame) {
	case sendOK:
		r.metrics.MessagesDelivered.Inc()
		return true
	case sendDropped:
		r.metrics.MessagesDropped.Inc()
		slog.DebugContext(sub.conn.ctx, "Outbound queue full, message dropped", "channel", msg.Channel)
	}
	return false
}

// SubscriberCount returns the number of connections subscribed to channel.
func (r *Router) SubscriberCount(channel string) int {
	s := &r.shards[shardIndex(channel)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.channels[channel])
}

// IsSubscribed reports whether connID is in channel's subscriber set.
func (r *Router) IsSubscribed(channel, connID string) bool {
	s := &r.shards[shardIndex(channel)]
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel][connID]
	return ok
}

// ChannelCount is the number of channels with at least one subscriber.
func (r *Router) ChannelCount() int {
	return int(r.channels.Load())
}

// SubscriptionCount is the total number of (channel, connection) pairs.
func (r *Router) SubscriptionCount() int {
	return int(r.subscriptions.Load())
}

// Channels lists every channel with at least one subscriber.
func (r *Router) Channels() []string {
	var out []string
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for ch := range s.channels {
			out = append(out, ch)
		}
		s.mu.RUnlock()
	}
	return out
}
