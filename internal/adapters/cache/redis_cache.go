package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

const (
	linkKeyPrefix       = "gw:link:"
	reputationKeyPrefix = "gw:rep:"
)

// RedisLinkStore is a redis implementation of core.LinkStore. Redis TTLs
// handle expiry, so a missing key is indistinguishable from an expired
// one and both report ErrNotFound.
type RedisLinkStore struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisLinkStore connects to redis and verifies the connection.
func NewRedisLinkStore(addr, password string, db int, logger *zap.Logger) (*RedisLinkStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisLinkStore{client: client, logger: logger}, nil
}

// Put stores a tracked link under its id with the retention TTL.
func (s *RedisLinkStore) Put(ctx context.Context, link *core.TrackedLink, ttl time.Duration) error {
	payload, err := json.Marshal(link)
	if err != nil {
		return fmt.Errorf("failed to marshal tracked link: %w", err)
	}
	if err := s.client.Set(ctx, linkKeyPrefix+link.LinkID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store tracked link: %w", err)
	}
	return nil
}

// Get resolves a link id.
func (s *RedisLinkStore) Get(ctx context.Context, linkID string) (*core.TrackedLink, error) {
	payload, err := s.client.Get(ctx, linkKeyPrefix+linkID).Bytes()
	if err == redis.Nil {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tracked link: %w", err)
	}

	var link core.TrackedLink
	if err := json.Unmarshal(payload, &link); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tracked link: %w", err)
	}
	return &link, nil
}

// Close releases the redis connection.
func (s *RedisLinkStore) Close() error {
	return s.client.Close()
}

// RedisReputationCache is a redis implementation of core.ReputationCache.
type RedisReputationCache struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisReputationCache connects to redis and verifies the connection.
func NewRedisReputationCache(addr, password string, db int, logger *zap.Logger) (*RedisReputationCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisReputationCache{client: client, logger: logger}, nil
}

// Get retrieves a cached verdict by entity.
func (c *RedisReputationCache) Get(ctx context.Context, entity string) (*core.ReputationVerdict, error) {
	payload, err := c.client.Get(ctx, reputationKeyPrefix+entity).Bytes()
	if err == redis.Nil {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reputation entry: %w", err)
	}

	var verdict core.ReputationVerdict
	if err := json.Unmarshal(payload, &verdict); err != nil {
		return nil, fmt.Errorf("failed to unmarshal reputation entry: %w", err)
	}
	return &verdict, nil
}

// Set stores a verdict for the TTL.
func (c *RedisReputationCache) Set(ctx context.Context, verdict *core.ReputationVerdict, ttl time.Duration) error {
	payload, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("failed to marshal reputation entry: %w", err)
	}
	if err := c.client.Set(ctx, reputationKeyPrefix+verdict.Entity, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store reputation entry: %w", err)
	}
	return nil
}

// Close releases the redis connection.
func (c *RedisReputationCache) Close() error {
	return c.client.Close()
}
