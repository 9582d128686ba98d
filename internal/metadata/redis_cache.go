package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/diarybot/diarybot/internal/config"
	"github.com/diarybot/diarybot/internal/media"
)

const redisKeyPrefix = "diarybot:search:"

// RedisCache shares search results between bot instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, cfg config.RedisConfig, logger zerolog.Logger) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := time.Duration(cfg.TTL) * time.Minute
	if ttl <= 0 {
		ttl = DefaultCacheConfig().TTL
	}

	log := logger.With().Str("component", "search-cache").Logger()
	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")

	return &RedisCache{client: client, ttl: ttl, logger: log}, nil
}

// Get retrieves results. Redis errors are logged and reported as a miss.
func (r *RedisCache) Get(ctx context.Context, key string) ([]media.CandidateRecord, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn().Err(err).Str("key", key).Msg("Failed to read cache")
		}
		return nil, false
	}

	var results []media.CandidateRecord
	if err := json.Unmarshal(data, &results); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		r.client.Del(ctx, redisKeyPrefix+key)
		return nil, false
	}
	return results, true
}

// Set stores results with the configured TTL.
func (r *RedisCache) Set(ctx context.Context, key string, results []media.CandidateRecord) {
	data, err := json.Marshal(results)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("Failed to set cache")
	}
}

// Close closes the Redis connection.
func (r *RedisCache) Close() error {
	return r.client.Close()
}
