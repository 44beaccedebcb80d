package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/singleflight"
)

const (
	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = 30 * time.Second
	breakerCountInterval       = time.Minute
)

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// APIKeyStore reads API keys from Postgres. Concurrent lookups of the same
// key share one query, and a circuit breaker stops hammering a database
// that keeps failing.
type APIKeyStore struct {
	db      rowQuerier
	group   singleflight.Group
	breaker *gobreaker.CircuitBreaker
}

var _ domain.APIKeyStore = (*APIKeyStore)(nil)

func NewAPIKeyStore(db rowQuerier, m *metrics.DatabaseMetrics) *APIKeyStore {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "api_keys",
		MaxRequests: 1,
		Interval:    breakerCountInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrAPIKeyNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", "postgres",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			if m != nil {
				m.BreakerState.Set(breakerStateValue(to))
			}
		},
	})

	return &APIKeyStore{db: db, breaker: breaker}
}

func breakerStateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// GetAPIKey returns domain.ErrAPIKeyNotFound for unknown keys and wraps
// domain.ErrStoreUnavailable for everything the database could not answer.
func (s *APIKeyStore) GetAPIKey(ctx context.Context, key string) (*domain.APIKey, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.breaker.Execute(func() (any, error) {
			return s.lookup(ctx, key)
		})
	})

	switch {
	case err == nil:
		apiKey := *v.(*domain.APIKey)
		return &apiKey, nil
	case errors.Is(err, domain.ErrAPIKeyNotFound):
		return nil, err
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	default:
		return nil, fmt.Errorf("%w: failed to get api key: %w", domain.ErrStoreUnavailable, err)
	}
}

func (s *APIKeyStore) lookup(ctx context.Context, key string) (*domain.APIKey, error) {
	var apiKey domain.APIKey
	err := s.db.QueryRow(ctx,
		"SELECT key, user_id, active FROM api_keys WHERE key = $1", key,
	).Scan(&apiKey.Key, &apiKey.UserID, &apiKey.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAPIKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &apiKey, nil
}

// State exposes the breaker state for health reporting.
func (s *APIKeyStore) State() gobreaker.State {
	return s.breaker.State()
}
