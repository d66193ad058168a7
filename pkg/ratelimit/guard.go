// Package ratelimit implements a Redis-shared guard for the remote tracker's
// rate limiting. When any process observes a 429 response it records the
// advertised Retry-After as a shared blocked-until timestamp; every process
// consults that timestamp before issuing a request. Sharing the state through
// Redis keeps concurrent background refresh jobs from piling onto a remote
// that has already asked for backoff.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Redis key for the shared blocked-until timestamp (unix seconds).
const redisKeyBlockedUntil = "issuedeck:ratelimit:blocked_until"

// DefaultBlock is applied when a 429 carries no usable Retry-After header.
const DefaultBlock = 60 * time.Second

var (
	rateLimitBlocks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuedeck_rate_limit_blocks_total",
		Help: "Total number of requests blocked by the shared rate limit guard",
	})

	rateLimitTrips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "issuedeck_rate_limit_trips_total",
		Help: "Total number of 429 responses that tripped the shared guard",
	})
)

// Guard gates tracker requests on shared rate limit state.
type Guard struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewGuard creates a guard on the given Redis client.
func NewGuard(redisClient *redis.Client, logger zerolog.Logger) *Guard {
	return &Guard{
		redis:  redisClient,
		logger: logger,
	}
}

// ShouldAllow reports whether a request may be issued now. Absent state
// means the remote is healthy.
func (g *Guard) ShouldAllow(ctx context.Context) (bool, error) {
	blockedUntil, err := g.redis.Get(ctx, redisKeyBlockedUntil).Int64()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get blocked until: %w", err)
	}

	if time.Now().Unix() >= blockedUntil {
		return true, nil
	}

	rateLimitBlocks.Inc()
	g.logger.Warn().
		Time("blocked_until", time.Unix(blockedUntil, 0)).
		Msg("Request blocked by shared rate limit guard")
	return false, nil
}

// UpdateFromResponse records rate limit state from a tracker response.
// Only 429 responses change the shared state.
func (g *Guard) UpdateFromResponse(ctx context.Context, resp *http.Response) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	block := DefaultBlock
	if ra := resp.Header.Get("Retry-After"); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs > 0 {
			block = time.Duration(secs) * time.Second
		}
	}

	until := time.Now().Add(block)
	// The TTL makes stale guard state expire on its own.
	if err := g.redis.Set(ctx, redisKeyBlockedUntil, until.Unix(), block).Err(); err != nil {
		return fmt.Errorf("set blocked until: %w", err)
	}

	rateLimitTrips.Inc()
	g.logger.Warn().
		Dur("block", block).
		Time("blocked_until", until).
		Msg("Rate limit tripped, blocking tracker requests")

	return nil
}
