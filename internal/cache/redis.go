// Package cache provides an optional Redis-backed read cache for project
// display payloads. Staleness is bounded by a short TTL and every write to
// a project invalidates its entry.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type ProjectCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewProjectCache(redisURL string, ttl time.Duration) (*ProjectCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewProjectCacheWithClient(client, ttl), nil
}

// NewProjectCacheWithClient creates a cache from an existing Redis client
func NewProjectCacheWithClient(client *redis.Client, ttl time.Duration) *ProjectCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ProjectCache{
		client: client,
		prefix: "project_data:",
		ttl:    ttl,
	}
}

func (c *ProjectCache) key(projectID string) string {
	return c.prefix + projectID
}

// Get returns the cached payload for a project, or nil on a miss.
func (c *ProjectCache) Get(ctx context.Context, projectID string) ([]byte, error) {
	payload, err := c.client.Get(ctx, c.key(projectID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get project payload: %w", err)
	}
	return payload, nil
}

func (c *ProjectCache) Set(ctx context.Context, projectID string, payload []byte) error {
	if err := c.client.Set(ctx, c.key(projectID), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("set project payload: %w", err)
	}
	return nil
}

func (c *ProjectCache) Invalidate(ctx context.Context, projectID string) error {
	if err := c.client.Del(ctx, c.key(projectID)).Err(); err != nil {
		return fmt.Errorf("invalidate project payload: %w", err)
	}
	return nil
}

// Close closes the Redis connection
func (c *ProjectCache) Close() error {
	return c.client.Close()
}

// Ping checks if Redis is reachable
func (c *ProjectCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
