package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// CircuitBreakerHook guards every Redis command with a circuit breaker.
// While open, commands fail immediately with an error wrapping both
// circuitbreaker.ErrOpen and domain.ErrStoreUnavailable, which callers
// such as the rate limiter treat as a reason to fail open.
type CircuitBreakerHook struct {
	cb circuitbreaker.CircuitBreaker[any]
}

var _ goredis.Hook = (*CircuitBreakerHook)(nil)

const (
	breakerFailurePeriod = 10 * time.Second
	defaultBreakerDelay  = 30 * time.Second
)

// NewCircuitBreakerHook opens the breaker once 60% of at least 5 commands
// within 10s failed, and lets a probe through after delay (30s when zero).
func NewCircuitBreakerHook(delay time.Duration, m *metrics.RedisMetrics) *CircuitBreakerHook {
	if delay <= 0 {
		delay = defaultBreakerDelay
	}
	cb := circuitbreaker.NewBuilder[any]().
		WithFailureRateThreshold(0.6, 5, breakerFailurePeriod).
		WithDelay(delay).
		WithSuccessThreshold(1).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "redis",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)
			m.BreakerTransitions.WithLabelValues(e.NewState.String()).Inc()
			m.BreakerState.Set(stateToFloat(e.NewState))
		}).
		Build()

	return &CircuitBreakerHook{cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

var errBreakerOpen = fmt.Errorf("redis circuit breaker open: %w: %w", circuitbreaker.ErrOpen, domain.ErrStoreUnavailable)

func (h *CircuitBreakerHook) DialHook(next goredis.DialHook) goredis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if !h.cb.TryAcquirePermit() {
			return nil, errBreakerOpen
		}
		conn, err := next(ctx, network, addr)
		if err != nil {
			h.cb.RecordError(err)
			return nil, err
		}
		h.cb.RecordSuccess()
		return conn, nil
	}
}

func (h *CircuitBreakerHook) ProcessHook(next goredis.ProcessHook) goredis.ProcessHook {
	return func(ctx context.Context, cmd goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			cmd.SetErr(errBreakerOpen)
			return errBreakerOpen
		}

		err := next(ctx, cmd)
		h.record(err)
		return err
	}
}

func (h *CircuitBreakerHook) ProcessPipelineHook(next goredis.ProcessPipelineHook) goredis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []goredis.Cmder) error {
		if !h.cb.TryAcquirePermit() {
			return errBreakerOpen
		}

		err := next(ctx, cmds)
		h.record(err)
		return err
	}
}

// record counts redis.Nil and script errors as successes: the server answered.
func (h *CircuitBreakerHook) record(err error) {
	if err == nil || errors.Is(err, goredis.Nil) {
		h.cb.RecordSuccess()
		return
	}
	if _, ok := errors.AsType[goredis.Error](err); ok {
		h.cb.RecordSuccess()
		return
	}
	h.cb.RecordError(err)
}

// State returns the breaker state.
func (h *CircuitBreakerHook) State() circuitbreaker.State {
	return h.cb.State()
}
