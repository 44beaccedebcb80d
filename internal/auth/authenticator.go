package auth

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
)

const (
	methodAPIKey = "api_key"
	methodToken  = "token"

	resultSuccess     = "success"
	resultRejected    = "rejected"
	resultUnavailable = "unavailable"
)

const (
	ReasonInvalidAPIKey      = "invalid api key"
	ReasonInactiveAPIKey     = "api key inactive"
	ReasonInvalidToken       = "invalid token"
	ReasonUserMismatch       = "user id does not match credentials"
	ReasonUnavailable        = "authentication unavailable"
	ReasonMissingCredentials = "missing credentials"
)

// Authenticator checks an API key when one is presented and falls back to
// the token otherwise. Either source may be nil, which makes that method
// unavailable.
type Authenticator struct {
	keys    domain.APIKeyStore
	tokens  *TokenVerifier
	metrics *metrics.PipelineMetrics
}

var _ domain.Authenticator = (*Authenticator)(nil)

func NewAuthenticator(keys domain.APIKeyStore, tokens *TokenVerifier, m *metrics.PipelineMetrics) *Authenticator {
	return &Authenticator{keys: keys, tokens: tokens, metrics: m}
}

func (a *Authenticator) Authenticate(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	switch {
	case creds.APIKey != "":
		return a.authenticateAPIKey(ctx, creds)
	case creds.Token != "":
		return a.authenticateToken(creds)
	default:
		return nil, &domain.AuthenticationError{Reason: ReasonMissingCredentials, Cause: domain.ErrMissingCredential}
	}
}

func (a *Authenticator) authenticateAPIKey(ctx context.Context, creds domain.Credentials) (*domain.Identity, error) {
	if a.keys == nil {
		return nil, a.reject(methodAPIKey, resultUnavailable, ReasonUnavailable, nil)
	}

	key, err := a.keys.GetAPIKey(ctx, creds.APIKey)
	switch {
	case errors.Is(err, domain.ErrAPIKeyNotFound):
		return nil, a.reject(methodAPIKey, resultRejected, ReasonInvalidAPIKey, err)
	case err != nil:
		slog.WarnContext(ctx, "API key lookup failed", "error", err)
		return nil, a.reject(methodAPIKey, resultUnavailable, ReasonUnavailable, err)
	case !key.Active:
		return nil, a.reject(methodAPIKey, resultRejected, ReasonInactiveAPIKey, domain.ErrAPIKeyInactive)
	}

	userID := key.UserID
	if userID == "" {
		userID = creds.UserID
	} else if creds.UserID != "" && creds.UserID != userID {
		return nil, a.reject(methodAPIKey, resultRejected, ReasonUserMismatch, nil)
	}

	a.metrics.AuthAttempts.WithLabelValues(methodAPIKey, resultSuccess).Inc()
	return &domain.Identity{UserID: userID, APIKey: creds.APIKey}, nil
}

func (a *Authenticator) authenticateToken(creds domain.Credentials) (*domain.Identity, error) {
	if a.tokens == nil {
		return nil, a.reject(methodToken, resultUnavailable, ReasonUnavailable, nil)
	}

	userID, err := a.tokens.Verify(creds.Token)
	if err != nil {
		return nil, a.reject(methodToken, resultRejected, ReasonInvalidToken, err)
	}
	if creds.UserID != "" && creds.UserID != userID {
		return nil, a.reject(methodToken, resultRejected, ReasonUserMismatch, nil)
	}

	a.metrics.AuthAttempts.WithLabelValues(methodToken, resultSuccess).Inc()
	return &domain.Identity{UserID: userID}, nil
}

func (a *Authenticator) reject(method, result, reason string, cause error) error {
	a.metrics.AuthAttempts.WithLabelValues(method, result).Inc()
	return &domain.AuthenticationError{Reason: reason, Cause: cause}
}
