package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/issuedeck/issuedeck/pkg/logging"
)

var (
	// ErrMiss indicates the requested key was not found in the store.
	// Corrupt entries also report ErrMiss so they classify as Missing.
	ErrMiss = errors.New("store miss")
)

const (
	entryPrefix   = "issuedeck:cache:"
	settingPrefix = "issuedeck:setting:"
)

// Store is a persistent key->(value, timestamp) store backed by Redis and
// shared by the foreground process and background refresh jobs.
type Store struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// New creates a store handle on the given Redis client.
func New(redisClient *redis.Client) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis:  redisClient,
		logger: logging.NewLogger("store"),
	}
}

// Get retrieves the entry for key. Returns ErrMiss if the key does not exist
// or the persisted entry is unreadable.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	data, err := s.redis.Get(ctx, entryPrefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			StoreMisses.Inc()
			return nil, ErrMiss
		}
		StoreErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entry: drop it and report a miss so the caller refreshes.
		s.logger.Warn().
			Err(err).
			Str("key", key).
			Msg("Corrupt store entry, treating as missing")
		_ = s.Invalidate(ctx, key)
		StoreMisses.Inc()
		return nil, ErrMiss
	}

	StoreHits.Inc()
	s.logger.Debug().
		Str("key", key).
		Time("stored_at", entry.StoredAt).
		Msg("Store hit")

	return &entry, nil
}

// Set commits a value for key wholesale, resetting the stored-at timestamp
// to now. Only the background job owning the key's refresh may call this,
// and only on full success of a refresh cycle.
func (s *Store) Set(ctx context.Context, key string, value json.RawMessage) error {
	entry := Entry{
		Data:     value,
		StoredAt: time.Now(),
	}

	data, err := json.Marshal(&entry)
	if err != nil {
		StoreErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal store entry: %w", err)
	}

	// Entries persist until invalidated or overwritten, so no TTL.
	if err := s.redis.Set(ctx, entryPrefix+key, data, 0).Err(); err != nil {
		StoreErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	s.logger.Debug().
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Store entry committed")

	return nil
}

// Invalidate removes the entry for key, e.g. on project switch.
func (s *Store) Invalidate(ctx context.Context, key string) error {
	if err := s.redis.Del(ctx, entryPrefix+key).Err(); err != nil {
		StoreErrors.WithLabelValues("invalidate").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// SaveSetting stores a small durable value (e.g. the active project) outside
// the timestamped cache.
func (s *Store) SaveSetting(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal setting %s: %w", name, err)
	}
	if err := s.redis.Set(ctx, settingPrefix+name, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set setting: %w", err)
	}
	return nil
}

// LoadSetting reads a durable value into dest. Returns ErrMiss when the
// setting has never been saved.
func (s *Store) LoadSetting(ctx context.Context, name string, dest any) error {
	data, err := s.redis.Get(ctx, settingPrefix+name).Bytes()
	if err != nil {
		if err == redis.Nil {
			return ErrMiss
		}
		return fmt.Errorf("redis get setting: %w", err)
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("unmarshal setting %s: %w", name, err)
	}
	return nil
}

// ClearSetting removes a durable value.
func (s *Store) ClearSetting(ctx context.Context, name string) error {
	if err := s.redis.Del(ctx, settingPrefix+name).Err(); err != nil {
		return fmt.Errorf("redis del setting: %w", err)
	}
	return nil
}
