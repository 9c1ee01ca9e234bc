package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/core"
)

// RedisClient is the part of a redis client the cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedLookup memoizes a BarcodeLookup in redis. Redis failures fall
// through to the upstream lookup.
type CachedLookup struct {
	upstream core.BarcodeLookup
	client   RedisClient
	ttl      time.Duration
	logger   *zap.Logger
}

func NewCachedLookup(upstream core.BarcodeLookup, client RedisClient, ttl time.Duration, logger *zap.Logger) *CachedLookup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedLookup{
		upstream: upstream,
		client:   client,
		ttl:      ttl,
		logger:   logger.Named("inventory_cache"),
	}
}

// NewRedisClient connects to redisURL and pings it.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func cacheKey(batchID int64) string {
	return fmt.Sprintf("labelspool:batch_barcodes:%d", batchID)
}

func (c *CachedLookup) ActiveBarcodes(ctx context.Context, batchID int64) ([]string, error) {
	key := cacheKey(batchID)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var codes []string
		if jsonErr := json.Unmarshal(data, &codes); jsonErr == nil {
			c.logger.Debug("cache hit", zap.Int64("batch_id", batchID))
			return codes, nil
		}
		c.logger.Warn("corrupt cache entry", zap.Int64("batch_id", batchID))
	case errors.Is(err, redis.Nil):
		c.logger.Debug("cache miss", zap.Int64("batch_id", batchID))
	default:
		c.logger.Warn("cache read failed", zap.Int64("batch_id", batchID), zap.Error(err))
	}

	codes, err := c.upstream.ActiveBarcodes(ctx, batchID)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(codes)
	if err == nil {
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			c.logger.Warn("cache write failed", zap.Int64("batch_id", batchID), zap.Error(err))
		}
	}
	return codes, nil
}

var _ core.BarcodeLookup = (*CachedLookup)(nil)
