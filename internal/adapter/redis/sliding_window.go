package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/chainpulse/internal/adapter/metrics"
	"github.com/pscheid92/chainpulse/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// slidingWindowScript checks one sorted-set window per key and records the
// request in all of them only if every window has room. Entries at or
// before now - window are expired first.
// ARGV: [1]=now_ms, [2]=member, [3]=record (1|0), then window_ms and max
// for each key.
// Returns {allowed, count_1, oldest_1, count_2, oldest_2, ...}.
var slidingWindowScript = goredis.NewScript(`
local now = tonumber(ARGV[1])
local record = ARGV[3] == '1'
local counts = {}
local allowed = 1
for i = 1, #KEYS do
  local window = tonumber(ARGV[2 + i * 2])
  local limit = tonumber(ARGV[3 + i * 2])
  redis.call('ZREMRANGEBYSCORE', KEYS[i], '-inf', now - window)
  counts[i] = redis.call('ZCARD', KEYS[i])
  if counts[i] >= limit then
    allowed = 0
  end
end
local result = {allowed}
for i = 1, #KEYS do
  if allowed == 1 and record then
    redis.call('ZADD', KEYS[i], now, ARGV[2])
    redis.call('PEXPIRE', KEYS[i], ARGV[2 + i * 2])
    counts[i] = counts[i] + 1
  end
  local oldest = redis.call('ZRANGE', KEYS[i], 0, 0, 'WITHSCORES')
  local first = now
  if oldest[2] then
    first = tonumber(oldest[2])
  end
  result[#result + 1] = counts[i]
  result[#result + 1] = first
end
return result
`)

// RateLimiter is a sliding-window-log limiter backed by Redis sorted sets.
// Every identity has one window per rule; the global rule applies to every
// request in addition to the endpoint's own rule.
type RateLimiter struct {
	rdb     *goredis.Client
	clock   clockwork.Clock
	rules   map[string]domain.RateLimitRule
	metrics *metrics.RateLimitMetrics
}

var _ domain.RateLimiter = (*RateLimiter)(nil)

// NewRateLimiter creates a limiter. rules must contain domain.GlobalRateLimit.
func NewRateLimiter(rdb *goredis.Client, clock clockwork.Clock, rules map[string]domain.RateLimitRule, m *metrics.RateLimitMetrics) (*RateLimiter, error) {
	if _, ok := rules[domain.GlobalRateLimit]; !ok {
		return nil, errors.New("rate limit rules must include a global rule")
	}
	return &RateLimiter{rdb: rdb, clock: clock, rules: rules, metrics: m}, nil
}

type namedRule struct {
	name string
	domain.RateLimitRule
}

// rulesFor returns the endpoint rule (if one exists) followed by the global rule.
func (l *RateLimiter) rulesFor(endpoint string) []namedRule {
	global := namedRule{domain.GlobalRateLimit, l.rules[domain.GlobalRateLimit]}
	if endpoint == domain.GlobalRateLimit {
		return []namedRule{global}
	}
	if rule, ok := l.rules[endpoint]; ok {
		return []namedRule{{endpoint, rule}, global}
	}
	return []namedRule{global}
}

func windowKey(identity, rule string) string {
	return fmt.Sprintf("chainpulse:ratelimit:{%s}:%s", identity, rule)
}

// Check records one request for identity against endpoint's rule and the
// global rule. When Redis is unavailable the request is allowed.
func (l *RateLimiter) Check(ctx context.Context, identity, endpoint string) (domain.RateLimitDecision, error) {
	timer := prometheus.NewTimer(l.metrics.CheckDuration)
	defer timer.ObserveDuration()

	rules := l.rulesFor(endpoint)
	now := l.clock.Now()

	decision, err := l.run(ctx, identity, rules, now, true)
	if err != nil {
		l.metrics.FailOpen.Inc()
		l.metrics.Checks.WithLabelValues(endpoint, "fail_open").Inc()
		slog.WarnContext(ctx, "Rate limiter unavailable, failing open",
			"component", "ratelimit",
			"identity", identity,
			"endpoint", endpoint,
			"error", err)
		return failOpenDecision(rules, now), nil
	}

	result := "allowed"
	if !decision.Allowed {
		result = "denied"
	}
	l.metrics.Checks.WithLabelValues(endpoint, result).Inc()
	return decision, nil
}

// Status reports the window of a single rule without recording a request.
func (l *RateLimiter) Status(ctx context.Context, identity, endpoint string) (domain.RateLimitDecision, error) {
	rule, ok := l.rules[endpoint]
	if !ok {
		return domain.RateLimitDecision{}, fmt.Errorf("%w: %s", domain.ErrUnknownRateLimit, endpoint)
	}
	decision, err := l.run(ctx, identity, []namedRule{{endpoint, rule}}, l.clock.Now(), false)
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return decision, nil
}

// Reset clears the window of a single rule for identity.
func (l *RateLimiter) Reset(ctx context.Context, identity, endpoint string) error {
	if _, ok := l.rules[endpoint]; !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownRateLimit, endpoint)
	}
	if err := l.rdb.Del(ctx, windowKey(identity, endpoint)).Err(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

// Rules returns the configured rule names and limits.
func (l *RateLimiter) Rules() map[string]domain.RateLimitRule {
	out := make(map[string]domain.RateLimitRule, len(l.rules))
	for k, v := range l.rules {
		out[k] = v
	}
	return out
}

func (l *RateLimiter) run(ctx context.Context, identity string, rules []namedRule, now time.Time, record bool) (domain.RateLimitDecision, error) {
	keys := make([]string, 0, len(rules))
	args := make([]any, 0, 3+2*len(rules))
	args = append(args, now.UnixMilli(), uuid.NewString(), boolArg(record))
	for _, r := range rules {
		keys = append(keys, windowKey(identity, r.name))
		args = append(args, r.Window.Milliseconds(), r.MaxRequests)
	}

	raw, err := slidingWindowScript.Run(ctx, l.rdb, keys, args...).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, fmt.Errorf("sliding window script failed: %w", err)
	}
	if len(raw) != 1+2*len(rules) {
		return domain.RateLimitDecision{}, fmt.Errorf("sliding window script returned %d values", len(raw))
	}

	decision := domain.RateLimitDecision{Allowed: raw[0] == 1, Remaining: math.MaxInt}
	for i, r := range rules {
		count := int(raw[1+2*i])
		oldest := time.UnixMilli(raw[2+2*i])

		remaining := max(r.MaxRequests-count, 0)
		decision.Remaining = min(decision.Remaining, remaining)

		resetAt := oldest.Add(r.Window)
		if resetAt.After(decision.ResetAt) {
			decision.ResetAt = resetAt
		}

		if !decision.Allowed && count >= r.MaxRequests {
			decision.RetryAfterSeconds = max(decision.RetryAfterSeconds, retryAfterSeconds(r.Window))
		}
	}
	return decision, nil
}

func failOpenDecision(rules []namedRule, now time.Time) domain.RateLimitDecision {
	d := domain.RateLimitDecision{Allowed: true, Remaining: math.MaxInt}
	for _, r := range rules {
		d.Remaining = min(d.Remaining, r.MaxRequests)
		if resetAt := now.Add(r.Window); resetAt.After(d.ResetAt) {
			d.ResetAt = resetAt
		}
	}
	return d
}

func retryAfterSeconds(window time.Duration) int {
	return int(math.Ceil(window.Seconds()))
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
