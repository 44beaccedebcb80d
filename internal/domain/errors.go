package domain

import (
	"errors"
	"fmt"
)

var (
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrConnectionClosed  = errors.New("connection closed")
	ErrAPIKeyNotFound    = errors.New("api key not found")
	ErrAPIKeyInactive    = errors.New("api key inactive")
	ErrUnknownRateLimit  = errors.New("unknown rate limit endpoint")
	ErrMissingCredential = errors.New("missing credentials")
)

// AuthenticationError reports bad or missing credentials. The client may
// retry on the same connection.
type AuthenticationError struct {
	Reason string
	Cause  error
}

func (e *AuthenticationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication failed: %s: %v", e.Reason, e.Cause)
	}
	return "authentication failed: " + e.Reason
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// RateLimitExceededError is returned when a sliding window has no capacity left.
type RateLimitExceededError struct {
	Endpoint          string
	RetryAfterSeconds int
}

func (e *RateLimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry after %ds", e.Endpoint, e.RetryAfterSeconds)
}

// SubscriptionError reports a malformed or rejected subscribe/unsubscribe request.
type SubscriptionError struct {
	Channel string
	Reason  string
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription error on %q: %s", e.Channel, e.Reason)
}

// PublishError reports a malformed or rejected publish request.
type PublishError struct {
	Channel string
	Reason  string
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish error on %q: %s", e.Channel, e.Reason)
}
