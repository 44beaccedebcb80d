package redis

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// FanoutChannel is the Redis pub/sub channel gateway instances relay
// messages over.
const FanoutChannel = "chainpulse:fanout"

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Message *domain.Message `json:"message"`
}

// Relay forwards locally published messages to peer instances through
// Redis pub/sub and delivers messages from peers to the local router.
type Relay struct {
	rdb        *goredis.Client
	instanceID string
	queue      chan *domain.Message
	metrics    *metrics.RedisMetrics
}

var _ domain.Relay = (*Relay)(nil)

func NewRelay(rdb *goredis.Client, instanceID string, queueSize int, m *metrics.RedisMetrics) *Relay {
	return &Relay{
		rdb:        rdb,
		instanceID: instanceID,
		queue:      make(chan *domain.Message, queueSize),
		metrics:    m,
	}
}

// Forward queues msg for peers. A full queue drops it.
func (r *Relay) Forward(msg *domain.Message) {
	select {
	case r.queue <- msg:
	default:
		r.metrics.RelayMessages.WithLabelValues("out", "dropped").Inc()
	}
}

// RunPublisher drains the forward queue. It blocks until ctx is cancelled.
func (r *Relay) RunPublisher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.queue:
			r.publish(ctx, msg)
		}
	}
}

func (r *Relay) publish(ctx context.Context, msg *domain.Message) {
	payload, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Message: msg})
	if err != nil {
		r.metrics.RelayMessages.WithLabelValues("out", "error").Inc()
		slog.ErrorContext(ctx, "Failed to encode relay message", "channel", msg.Channel, "error", err)
		return
	}

	if err := r.rdb.Publish(ctx, FanoutChannel, payload).Err(); err != nil {
		r.metrics.RelayMessages.WithLabelValues("out", "error").Inc()
		slog.WarnContext(ctx, "Failed to relay message", "channel", msg.Channel, "error", err)
		return
	}
	r.metrics.RelayMessages.WithLabelValues("out", "ok").Inc()
}

// RunSubscriber hands every message relayed by another instance to deliver.
// It blocks until ctx is cancelled.
func (r *Relay) RunSubscriber(ctx context.Context, deliver func(*domain.Message) int) {
	pubsub := r.rdb.Subscribe(ctx, FanoutChannel)
	defer func() {
		_ = pubsub.Close()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg.Payload, deliver)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) handle(payload string, deliver func(*domain.Message) int) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil || env.Message == nil {
		r.metrics.RelayMessages.WithLabelValues("in", "invalid").Inc()
		slog.Warn("Invalid relay message", "error", err)
		return
	}
	if env.Origin == r.instanceID {
		return
	}

	deliver(env.Message)
	r.metrics.RelayMessages.WithLabelValues("in", "ok").Inc()
}
