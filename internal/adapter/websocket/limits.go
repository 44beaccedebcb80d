package websocket

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/time/rate"
)

// LimitReason describes why a connection attempt was refused before upgrade.
type LimitReason string

const (
	LimitReasonPerIP LimitReason = "per_ip_limit"
	LimitReasonRate  LimitReason = "rate_limit"
)

const (
	limiterCleanupInterval = 5 * time.Minute
	limiterIdleTTL         = 10 * time.Minute
)

// ConnectionLimits guards the upgrade endpoint per client IP: a cap on
// concurrent connections and a token bucket on new connections. The global
// cap is enforced by the gateway registry.
type ConnectionLimits struct {
	clock  clockwork.Clock
	maxPer int
	rate   rate.Limit
	burst  int

	mu        sync.Mutex
	counts    map[string]int
	limiters  map[string]*rateEntry
	cleanupAt time.Time
}

type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewConnectionLimits(clock clockwork.Clock, maxPerIP int, connectionsPerSecond float64, burst int) *ConnectionLimits {
	return &ConnectionLimits{
		clock:     clock,
		maxPer:    maxPerIP,
		rate:      rate.Limit(connectionsPerSecond),
		burst:     burst,
		counts:    make(map[string]int),
		limiters:  make(map[string]*rateEntry),
		cleanupAt: clock.Now().Add(limiterCleanupInterval),
	}
}

// Acquire admits one connection from ip. Every successful Acquire must be
// paired with Release.
func (l *ConnectionLimits) Acquire(ip string) (bool, LimitReason) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if now.After(l.cleanupAt) {
		l.cleanup(now)
		l.cleanupAt = now.Add(limiterCleanupInterval)
	}

	entry, ok := l.limiters[ip]
	if !ok {
		entry = &rateEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	if !entry.limiter.AllowN(now, 1) {
		return false, LimitReasonRate
	}

	if l.counts[ip] >= l.maxPer {
		return false, LimitReasonPerIP
	}
	l.counts[ip]++
	return true, ""
}

func (l *ConnectionLimits) Release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := l.counts[ip]; n > 1 {
		l.counts[ip] = n - 1
	} else {
		delete(l.counts, ip)
	}
}

// Count returns the live connection count for ip.
func (l *ConnectionLimits) Count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[ip]
}

// cleanup drops rate limiters idle for longer than limiterIdleTTL.
// Must be called with mu held.
func (l *ConnectionLimits) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for ip, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, ip)
		}
	}
}
