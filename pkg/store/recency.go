package store

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/issuedeck/issuedeck/pkg/logging"
)

// DefaultRecencyCapacity bounds the recency list length.
const DefaultRecencyCapacity = 9

const recencyKey = "issuedeck:recent"

// LookupFunc resolves a batch of keys upstream in one call and returns the
// subset that still exists. It must not invent keys that were not asked for.
type LookupFunc func(ctx context.Context, keys []string) ([]string, error)

// Recency is a bounded, deduplicated, most-recent-first list of issue keys
// persisted as a Redis list and shared across processes.
type Recency struct {
	redis    *redis.Client
	capacity int
	logger   zerolog.Logger
}

// NewRecency creates a recency list handle with the default capacity.
func NewRecency(redisClient *redis.Client) *Recency {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Recency{
		redis:    redisClient,
		capacity: DefaultRecencyCapacity,
		logger:   logging.NewLogger("recency"),
	}
}

// Touch records key as the most recently used: removes any existing
// occurrence, inserts at the front and truncates to capacity.
func (r *Recency) Touch(ctx context.Context, key string) error {
	pipe := r.redis.TxPipeline()
	pipe.LRem(ctx, recencyKey, 0, key)
	pipe.LPush(ctx, recencyKey, key)
	pipe.LTrim(ctx, recencyKey, 0, int64(r.capacity-1))
	if _, err := pipe.Exec(ctx); err != nil {
		StoreErrors.WithLabelValues("recency").Inc()
		return fmt.Errorf("recency touch: %w", err)
	}

	r.logger.Debug().Str("key", key).Msg("Recency touched")
	return nil
}

// Keys returns the listed keys, most recent first. An absent list is empty.
func (r *Recency) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.redis.LRange(ctx, recencyKey, 0, -1).Result()
	if err != nil {
		StoreErrors.WithLabelValues("recency").Inc()
		return nil, fmt.Errorf("recency read: %w", err)
	}
	return keys, nil
}

// Resolve checks the listed keys upstream via a single bulk lookup, drops
// the ones that no longer resolve from the persisted list and returns the
// survivors in their original recency order.
func (r *Recency) Resolve(ctx context.Context, lookup LookupFunc) ([]string, error) {
	keys, err := r.Keys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return nil, nil
	}

	found, err := lookup(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("recency lookup: %w", err)
	}

	alive := make(map[string]bool, len(found))
	for _, key := range found {
		alive[key] = true
	}

	// Keep original recency order, not lookup-completion order.
	survivors := make([]string, 0, len(keys))
	for _, key := range keys {
		if alive[key] {
			survivors = append(survivors, key)
		}
	}

	if len(survivors) != len(keys) {
		if err := r.replace(ctx, survivors); err != nil {
			return nil, err
		}
		RecencyPruned.Add(float64(len(keys) - len(survivors)))
		r.logger.Info().
			Int("before", len(keys)).
			Int("after", len(survivors)).
			Msg("Pruned unresolvable keys from recency list")
	}

	return survivors, nil
}

// replace rewrites the persisted list wholesale.
func (r *Recency) replace(ctx context.Context, keys []string) error {
	pipe := r.redis.TxPipeline()
	pipe.Del(ctx, recencyKey)
	if len(keys) > 0 {
		members := make([]interface{}, len(keys))
		for i, key := range keys {
			members[i] = key
		}
		pipe.RPush(ctx, recencyKey, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		StoreErrors.WithLabelValues("recency").Inc()
		return fmt.Errorf("recency replace: %w", err)
	}
	return nil
}
