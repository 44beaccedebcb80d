// Package redis holds the gateway's Redis-backed components: the
// sliding-window rate limiter, the cross-instance relay and the instance
// registry, plus the client hooks for circuit breaking and metrics.
package redis
