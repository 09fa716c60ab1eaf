package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"storefront-api/internal/models"

	"github.com/go-redis/redis/v8"
)

const catalogKey = "catalog:products"

// Client caches catalog reads. Redis is never the authority for stock:
// settlement reads stock under Postgres row locks, and this cache only
// shortens the browse path. Anything failing here degrades to DB reads.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb, ttl: ttl}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetProducts returns the cached catalog listing. The second return value
// is false on a cache miss.
func (c *Client) GetProducts(ctx context.Context) ([]models.Product, bool, error) {
	raw, err := c.rdb.Get(ctx, catalogKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("catalog cache get: %w", err)
	}

	var products []models.Product
	if err := json.Unmarshal(raw, &products); err != nil {
		return nil, false, fmt.Errorf("catalog cache decode: %w", err)
	}
	return products, true, nil
}

// SetProducts stores the catalog listing with the configured TTL.
func (c *Client) SetProducts(ctx context.Context, products []models.Product) error {
	raw, err := json.Marshal(products)
	if err != nil {
		return fmt.Errorf("catalog cache encode: %w", err)
	}
	return c.rdb.Set(ctx, catalogKey, raw, c.ttl).Err()
}

// InvalidateProducts drops the cached listing. Called after a settlement
// commits, since stock levels just changed.
func (c *Client) InvalidateProducts(ctx context.Context) error {
	return c.rdb.Del(ctx, catalogKey).Err()
}
