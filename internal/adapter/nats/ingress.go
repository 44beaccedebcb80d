package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	gonats "github.com/nats-io/nats.go"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
)

const (
	resultAccepted   = "accepted"
	resultInvalid    = "invalid"
	resultUnroutable = "unroutable"
	resultRejected   = "rejected"
)

type IngressConfig struct {
	Subject string
	Queue   string
}

// Ingress consumes producer events from a NATS queue group. Every gateway
// instance joins the same group, so each event enters the cluster once and
// reaches other instances through the relay.
type Ingress struct {
	conn      *gonats.Conn
	config    IngressConfig
	publisher domain.Publisher
	clock     clockwork.Clock
	metrics   *metrics.PipelineMetrics

	ctx context.Context
	sub *gonats.Subscription
}

func NewIngress(conn *gonats.Conn, cfg IngressConfig, publisher domain.Publisher, clock clockwork.Clock, m *metrics.PipelineMetrics) *Ingress {
	return &Ingress{
		conn:      conn,
		config:    cfg,
		publisher: publisher,
		clock:     clock,
		metrics:   m,
	}
}

// Start subscribes. ctx is the context handed to every publish.
func (i *Ingress) Start(ctx context.Context) error {
	i.ctx = ctx
	sub, err := i.conn.QueueSubscribe(i.config.Subject, i.config.Queue, func(msg *gonats.Msg) {
		i.handle(i.ctx, msg.Data)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", i.config.Subject, err)
	}
	i.sub = sub

	slog.Info("Ingress subscribed", "subject", i.config.Subject, "queue", i.config.Queue)
	return nil
}

// Drain lets in-flight events finish and stops receiving new ones.
func (i *Ingress) Drain() error {
	if i.sub == nil {
		return nil
	}
	if err := i.sub.Drain(); err != nil {
		return fmt.Errorf("failed to drain ingress subscription: %w", err)
	}
	return nil
}

func (i *Ingress) handle(ctx context.Context, data []byte) {
	var msg domain.Message
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		i.metrics.IngressReceived.WithLabelValues(resultInvalid).Inc()
		slog.Warn("Dropping malformed producer event", "error", err, "size", len(data))
		return
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = i.clock.Now().UTC()
	}

	channels := domain.DerivedChannels(&msg)
	if len(channels) == 0 {
		i.metrics.IngressReceived.WithLabelValues(resultUnroutable).Inc()
		slog.Warn("Dropping producer event without channel", "type", msg.Type, "id", msg.ID)
		return
	}

	for _, channel := range channels {
		if _, err := i.publisher.Publish(ctx, msg.WithChannel(channel)); err != nil {
			i.metrics.IngressReceived.WithLabelValues(resultRejected).Inc()
			slog.Warn("Producer event rejected", "channel", channel, "id", msg.ID, "error", err)
			continue
		}
		i.metrics.IngressReceived.WithLabelValues(resultAccepted).Inc()
	}
}
