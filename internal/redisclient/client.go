package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/consume_availability.lua
var consumeAvailabilityScript string

//go:embed scripts/restore_availability.lua
var restoreAvailabilityScript string

// Client wraps Redis as the non-authoritative availability cache and the
// first-level webhook idempotency filter. Postgres remains the source of
// truth for both; every operation here is best-effort.
type Client struct {
	rdb           *redis.Client
	consumeScript *redis.Script
	restoreScript *redis.Script
}

// Availability modes understood by the Lua scripts.
const (
	ModeStock    = "stock"
	ModePreorder = "preorder"
)

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int) (*Client, error) {
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

	return &Client{
		rdb:           rdb,
		consumeScript: redis.NewScript(consumeAvailabilityScript),
		restoreScript: redis.NewScript(restoreAvailabilityScript),
	}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

func availabilityKey(productID int64) string {
	return fmt.Sprintf("availability:%d", productID)
}

// InitAvailability seeds the cached counters for a product. A nil preorder
// cap is stored as -1 (unlimited allocation).
func (c *Client) InitAvailability(ctx context.Context, productID int64, stock int, preorderRemaining int) error {
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, availabilityKey(productID), "stock", stock)
	pipe.HSet(ctx, availabilityKey(productID), "preorder_remaining", preorderRemaining)

	_, err := pipe.Exec(ctx)
	return err
}

// ConsumeAvailability atomically reduces the cached counter after a
// database commit. Returns false if the cache could not cover the
// quantity, which only means the cache drifted and needs a resync.
func (c *Client) ConsumeAvailability(ctx context.Context, productID int64, quantity int, mode string) (bool, error) {
	result, err := c.consumeScript.Run(ctx, c.rdb, []string{availabilityKey(productID)}, quantity, mode).Result()
	if err != nil {
		return false, fmt.Errorf("consume availability script failed: %w", err)
	}

	ok, isInt := result.(int64)
	if !isInt {
		return false, fmt.Errorf("unexpected script result type")
	}
	return ok == 1, nil
}

// RestoreAvailability atomically adds the quantity back (refund path).
func (c *Client) RestoreAvailability(ctx context.Context, productID int64, quantity int, mode string) error {
	_, err := c.restoreScript.Run(ctx, c.rdb, []string{availabilityKey(productID)}, quantity, mode).Result()
	if err != nil {
		return fmt.Errorf("restore availability script failed: %w", err)
	}
	return nil
}

// GetAvailability reads the cached counters for a product.
func (c *Client) GetAvailability(ctx context.Context, productID int64) (stock, preorderRemaining int, err error) {
	result, err := c.rdb.HGetAll(ctx, availabilityKey(productID)).Result()
	if err != nil {
		return 0, 0, err
	}
	if len(result) == 0 {
		return 0, 0, fmt.Errorf("availability not cached for product %d", productID)
	}

	stock, _ = strconv.Atoi(result["stock"])
	preorderRemaining, _ = strconv.Atoi(result["preorder_remaining"])
	return stock, preorderRemaining, nil
}

// MarkEventSeen records a provider event ID in the fast idempotency
// filter with a TTL. The webhook_events table stays authoritative.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, fmt.Sprintf("webhook:seen:%s", eventID), "1", ttl).Err()
}

// WasEventSeen checks the fast idempotency filter.
func (c *Client) WasEventSeen(ctx context.Context, eventID string) (bool, error) {
	result, err := c.rdb.Exists(ctx, fmt.Sprintf("webhook:seen:%s", eventID)).Result()
	if err != nil {
		return false, err
	}
	return result > 0, nil
}
