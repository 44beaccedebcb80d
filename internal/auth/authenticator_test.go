package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKeyStore struct {
	keys map[string]*domain.APIKey
	err  error
}

func (s *fakeKeyStore) GetAPIKey(_ context.Context, key string) (*domain.APIKey, error) {
	if s.err != nil {
		return nil, s.err
	}
	k, ok := s.keys[key]
	if !ok {
		return nil, domain.ErrAPIKeyNotFound
	}
	return k, nil
}

func newTestAuthenticator(keys domain.APIKeyStore, withTokens bool) (*Authenticator, *metrics.PipelineMetrics) {
	m := metrics.NewPipelineMetrics(prometheus.NewRegistry())
	var tokens *TokenVerifier
	if withTokens {
		tokens = NewTokenVerifier(testSecret, clockwork.NewFakeClockAt(tokenEpoch))
	}
	return NewAuthenticator(keys, tokens, m), m
}

func defaultKeys() *fakeKeyStore {
	return &fakeKeyStore{keys: map[string]*domain.APIKey{
		"live":    {Key: "live", UserID: "alice", Active: true},
		"revoked": {Key: "revoked", UserID: "bob", Active: false},
		"service": {Key: "service", Active: true},
	}}
}

func authReason(t *testing.T, err error) string {
	t.Helper()
	authErr, ok := errors.AsType[*domain.AuthenticationError](err)
	require.True(t, ok, "expected AuthenticationError, got %v", err)
	return authErr.Reason
}

func TestAuthenticate_APIKey(t *testing.T) {
	a, m := newTestAuthenticator(defaultKeys(), false)

	identity, err := a.Authenticate(context.Background(), domain.Credentials{APIKey: "live"})

	require.NoError(t, err)
	assert.Equal(t, &domain.Identity{UserID: "alice", APIKey: "live"}, identity)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues(methodAPIKey, resultSuccess)))
}

func TestAuthenticate_APIKeyWithoutUserTakesClaimedUser(t *testing.T) {
	a, _ := newTestAuthenticator(defaultKeys(), false)

	identity, err := a.Authenticate(context.Background(), domain.Credentials{APIKey: "service", UserID: "carol"})

	require.NoError(t, err)
	assert.Equal(t, "carol", identity.UserID)
}

func TestAuthenticate_APIKeyFailures(t *testing.T) {
	tests := []struct {
		name   string
		store  domain.APIKeyStore
		creds  domain.Credentials
		reason string
		result string
	}{
		{"unknown key", defaultKeys(), domain.Credentials{APIKey: "nope"}, ReasonInvalidAPIKey, resultRejected},
		{"inactive key", defaultKeys(), domain.Credentials{APIKey: "revoked"}, ReasonInactiveAPIKey, resultRejected},
		{"user mismatch", defaultKeys(), domain.Credentials{APIKey: "live", UserID: "mallory"}, ReasonUserMismatch, resultRejected},
		{"store down", &fakeKeyStore{err: fmt.Errorf("%w: breaker open", domain.ErrStoreUnavailable)}, domain.Credentials{APIKey: "live"}, ReasonUnavailable, resultUnavailable},
		{"no store", nil, domain.Credentials{APIKey: "live"}, ReasonUnavailable, resultUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, m := newTestAuthenticator(tt.store, false)

			identity, err := a.Authenticate(context.Background(), tt.creds)

			assert.Nil(t, identity)
			assert.Equal(t, tt.reason, authReason(t, err))
			assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues(methodAPIKey, tt.result)))
		})
	}
}

func TestAuthenticate_InactiveKeyWrapsSentinel(t *testing.T) {
	a, _ := newTestAuthenticator(defaultKeys(), false)

	_, err := a.Authenticate(context.Background(), domain.Credentials{APIKey: "revoked"})

	assert.ErrorIs(t, err, domain.ErrAPIKeyInactive)
}

func TestAuthenticate_Token(t *testing.T) {
	a, m := newTestAuthenticator(nil, true)
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("dave"))

	identity, err := a.Authenticate(context.Background(), domain.Credentials{Token: token})

	require.NoError(t, err)
	assert.Equal(t, &domain.Identity{UserID: "dave"}, identity)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthAttempts.WithLabelValues(methodToken, resultSuccess)))
}

func TestAuthenticate_TokenFailures(t *testing.T) {
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("dave"))

	t.Run("bad token", func(t *testing.T) {
		a, _ := newTestAuthenticator(nil, true)
		_, err := a.Authenticate(context.Background(), domain.Credentials{Token: "garbage"})
		assert.Equal(t, ReasonInvalidToken, authReason(t, err))
	})

	t.Run("user mismatch", func(t *testing.T) {
		a, _ := newTestAuthenticator(nil, true)
		_, err := a.Authenticate(context.Background(), domain.Credentials{Token: token, UserID: "eve"})
		assert.Equal(t, ReasonUserMismatch, authReason(t, err))
	})

	t.Run("tokens disabled", func(t *testing.T) {
		a, _ := newTestAuthenticator(nil, false)
		_, err := a.Authenticate(context.Background(), domain.Credentials{Token: token})
		assert.Equal(t, ReasonUnavailable, authReason(t, err))
	})
}

func TestAuthenticate_APIKeyTakesPrecedence(t *testing.T) {
	a, _ := newTestAuthenticator(defaultKeys(), true)
	token := signToken(t, jwt.SigningMethodHS256, testSecret, validClaims("dave"))

	identity, err := a.Authenticate(context.Background(), domain.Credentials{APIKey: "live", Token: token})

	require.NoError(t, err)
	assert.Equal(t, "alice", identity.UserID)
}

func TestAuthenticate_MissingCredentials(t *testing.T) {
	a, _ := newTestAuthenticator(defaultKeys(), true)

	_, err := a.Authenticate(context.Background(), domain.Credentials{UserID: "alice"})

	assert.Equal(t, ReasonMissingCredentials, authReason(t, err))
	assert.ErrorIs(t, err, domain.ErrMissingCredential)
}
