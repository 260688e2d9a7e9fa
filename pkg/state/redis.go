package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKey is the Redis key holding the serialized sync state.
const RedisKey = "census:sync:state"

// Store loads and saves the connector's resumption state.
type Store interface {
	// Load returns the persisted state, or the default state when none exists.
	Load(ctx context.Context) (SyncState, error)

	// Save overwrites the persisted state.
	Save(ctx context.Context, s SyncState) error
}

// RedisStore persists sync state in Redis, shared across connector instances.
type RedisStore struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewRedisStore creates a Redis-backed state store.
func NewRedisStore(redisClient *redis.Client, logger zerolog.Logger) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis:  redisClient,
		logger: logger,
	}
}

// Load retrieves the sync state from Redis.
// A missing key yields the default cursor.
func (s *RedisStore) Load(ctx context.Context) (SyncState, error) {
	data, err := s.redis.Get(ctx, RedisKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			s.logger.Debug().
				Str("cursor", DefaultCursor).
				Msg("No sync state in Redis, using default cursor")
			return Default(), nil
		}
		return SyncState{}, fmt.Errorf("redis get sync state: %w", err)
	}

	var state SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		return SyncState{}, fmt.Errorf("unmarshal sync state: %w", err)
	}

	if state.LastUpdated == "" {
		state = Default()
	}

	return state, nil
}

// Save overwrites the sync state in Redis. No TTL: the cursor lives until
// the next run replaces it.
func (s *RedisStore) Save(ctx context.Context, state SyncState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal sync state: %w", err)
	}

	if err := s.redis.Set(ctx, RedisKey, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set sync state: %w", err)
	}

	s.logger.Debug().
		Str("cursor", state.LastUpdated).
		Msg("Sync state saved")

	return nil
}

var _ Store = (*RedisStore)(nil)
