package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
	"github.com/pscheid92/chainpulse/internal/platform/retry"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	shutdownFlushTimeout = 5 * time.Second
)

type eventWriter interface {
	WriteEvents(ctx context.Context, events []*domain.Message) (int64, error)
}

type ArchiverConfig struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Archiver persists published events in batches off the delivery path.
// Archive never blocks: when the queue is full the event is dropped and
// counted.
type Archiver struct {
	writer        eventWriter
	queue         chan *domain.Message
	clock         clockwork.Clock
	metrics       *metrics.PipelineMetrics
	batchSize     int
	flushInterval time.Duration
	retryPolicy   retry.Policy
}

var _ domain.EventArchiver = (*Archiver)(nil)

func NewArchiver(writer eventWriter, clock clockwork.Clock, m *metrics.PipelineMetrics, cfg ArchiverConfig) *Archiver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}

	return &Archiver{
		writer:        writer,
		queue:         make(chan *domain.Message, cfg.QueueSize),
		clock:         clock,
		metrics:       m,
		batchSize:     cfg.BatchSize,
		flushInterval: cfg.FlushInterval,
		retryPolicy: retry.Policy{
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
			Clock:          clock,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				slog.Warn("Archive write failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
			},
		},
	}
}

func (a *Archiver) Archive(msg *domain.Message) {
	select {
	case a.queue <- msg:
		a.metrics.ArchiveEvents.WithLabelValues("queued").Inc()
	default:
		a.metrics.ArchiveEvents.WithLabelValues("dropped").Inc()
	}
}

// Run writes a batch whenever it fills up or the flush interval passes. On
// cancellation it flushes what is still queued before returning.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := a.clock.NewTicker(a.flushInterval)
	defer ticker.Stop()

	batch := make([]*domain.Message, 0, a.batchSize)
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			defer cancel()
			a.write(flushCtx, batch)
			a.Flush(flushCtx)
			return nil

		case msg := <-a.queue:
			batch = append(batch, msg)
			if len(batch) >= a.batchSize {
				a.write(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.Chan():
			if len(batch) > 0 {
				a.write(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// Flush writes everything currently queued.
func (a *Archiver) Flush(ctx context.Context) {
	batch := make([]*domain.Message, 0, a.batchSize)
	for {
		select {
		case msg := <-a.queue:
			batch = append(batch, msg)
			if len(batch) >= a.batchSize {
				a.write(ctx, batch)
				batch = batch[:0]
			}
		default:
			a.write(ctx, batch)
			return
		}
	}
}

func (a *Archiver) write(ctx context.Context, batch []*domain.Message) {
	if len(batch) == 0 {
		return
	}

	err := retry.DoVoid(ctx, a.retryPolicy, retry.Always, func(ctx context.Context) error {
		_, err := a.writer.WriteEvents(ctx, batch)
		return err
	})
	if err != nil {
		a.metrics.ArchiveEvents.WithLabelValues("failed").Add(float64(len(batch)))
		slog.Error("Failed to archive events", "count", len(batch), "error", err)
		return
	}
	a.metrics.ArchiveEvents.WithLabelValues("stored").Add(float64(len(batch)))
}
