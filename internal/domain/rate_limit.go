package domain

import (
	"context"
	"time"
)

// GlobalRateLimit is the rule applied to every request of an identity in
// addition to any endpoint rule.
const GlobalRateLimit = "global"

// Endpoint names checked by the session handler.
const (
	EndpointSubscribe = "subscribe"
	EndpointPublish   = "publish"
)

// RateLimitRule configures one sliding window.
type RateLimitRule struct {
	MaxRequests int
	Window      time.Duration
}

// RateLimitDecision is the outcome of a rate-limit check.
type RateLimitDecision struct {
	Allowed           bool
	Remaining         int
	ResetAt           time.Time
	RetryAfterSeconds int
}

// RateLimiter enforces per-identity sliding-window limits. Check never
// returns an error for store outages; it fails open instead.
type RateLimiter interface {
	// Check records a request against the endpoint rule (if any) and the
	// global rule, granting it only when both allow it.
	Check(ctx context.Context, identity, endpoint string) (RateLimitDecision, error)
}
