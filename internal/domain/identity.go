package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// Credentials are what a client presents in an authenticate message.
type Credentials struct {
	APIKey string
	UserID string
	Token  string
}

// IsEmpty reports whether no credential was presented.
func (c Credentials) IsEmpty() bool {
	return c.APIKey == "" && c.Token == ""
}

// Identity is the verified principal behind a connection. Set once by a
// successful authenticate and never changed afterwards.
type Identity struct {
	UserID string
	APIKey string
}

// RateLimitKey is the identity under which requests are counted.
func (i Identity) RateLimitKey() string {
	if i.UserID != "" {
		return "user:" + i.UserID
	}
	sum := sha256.Sum256([]byte(i.APIKey))
	return "key:" + hex.EncodeToString(sum[:8])
}

// APIKey is a row of the API key store.
type APIKey struct {
	Key    string
	UserID string
	Active bool
}

// APIKeyStore looks up API keys.
type APIKeyStore interface {
	GetAPIKey(ctx context.Context, key string) (*APIKey, error)
}

// Authenticator verifies credentials and returns the identity they prove.
// Failures are *AuthenticationError.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*Identity, error)
}
