package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
)

// MetricsTracer records query duration and failures per statement kind.
type MetricsTracer struct {
	metrics *metrics.DatabaseMetrics
	clock   clockwork.Clock
}

var _ pgx.QueryTracer = (*MetricsTracer)(nil)

type queryStartKey struct{}

type queryStart struct {
	at   time.Time
	kind string
}

// NewMetricsTracer builds a tracer. A nil clock uses the real clock.
func NewMetricsTracer(m *metrics.DatabaseMetrics, clock clockwork.Clock) *MetricsTracer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MetricsTracer{metrics: m, clock: clock}
}

func (t *MetricsTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: t.clock.Now(), kind: statementKind(data.SQL)})
}

func (t *MetricsTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}

	t.metrics.QueryDuration.WithLabelValues(start.kind).Observe(t.clock.Since(start.at).Seconds())
	if data.Err != nil {
		t.metrics.QueryErrors.WithLabelValues(start.kind).Inc()
	}
}

// statementKind reduces SQL to its leading keyword to keep label
// cardinality bounded.
func statementKind(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	kind := strings.ToLower(fields[0])
	if len(kind) > 20 {
		kind = kind[:20]
	}
	return kind
}
