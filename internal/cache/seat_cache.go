// Package cache keeps short-lived copies of booked seat maps in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SeatKeyPrefix namespaces seat map keys
const SeatKeyPrefix = "booked_seats:"

// SeatCache stores the booked seat numbers of each bus with a TTL.
// Entries are keyed by bus version: every booking or cancellation bumps the
// version, so a map written from a superseded read is never served again.
// Entries are advisory: reservations always re-check the database.
type SeatCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewSeatCache creates a Redis-backed seat cache
func NewSeatCache(client redis.UniversalClient, ttl time.Duration) *SeatCache {
	return &SeatCache{client: client, ttl: ttl}
}

func seatKey(busID string, version int64) string {
	return fmt.Sprintf("%s%s:%d", SeatKeyPrefix, busID, version)
}

// Get returns the cached seats of a bus at version and whether an entry existed
func (c *SeatCache) Get(ctx context.Context, busID string, version int64) ([]int, bool, error) {
	raw, err := c.client.Get(ctx, seatKey(busID, version)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read seat cache: %w", err)
	}

	seats := []int{}
	if err := json.Unmarshal(raw, &seats); err != nil {
		// A corrupt entry is treated as a miss and dropped
		_ = c.client.Del(ctx, seatKey(busID, version)).Err()
		return nil, false, nil
	}
	return seats, true, nil
}

// Set stores the seats of a bus at version
func (c *SeatCache) Set(ctx context.Context, busID string, version int64, seats []int) error {
	if seats == nil {
		seats = []int{}
	}
	raw, err := json.Marshal(seats)
	if err != nil {
		return fmt.Errorf("failed to encode seats: %w", err)
	}
	if err := c.client.Set(ctx, seatKey(busID, version), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write seat cache: %w", err)
	}
	return nil
}

// Invalidate drops the cached seats of a bus at a superseded version
func (c *SeatCache) Invalidate(ctx context.Context, busID string, version int64) error {
	if err := c.client.Del(ctx, seatKey(busID, version)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate seat cache: %w", err)
	}
	return nil
}

// NewRedisClient parses a redis:// URL and checks the connection
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
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
