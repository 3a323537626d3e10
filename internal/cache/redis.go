// Package cache stores summaries of elapsed weeks in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"example.com/trackme/internal/weekly"
)

const keyPrefix = "trackme:summary"

// kv is the subset of the go-redis client used by SummaryCache.
type kv interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *goredis.ScanCmd
}

// SummaryCache implements weekly.SummaryCache on top of Redis.
type SummaryCache struct {
	rdb kv
	ttl time.Duration
}

var _ weekly.SummaryCache = (*SummaryCache)(nil)

// Dial connects to Redis and verifies the connection with a ping.
func Dial(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

// NewSummaryCache wraps a Redis client. ttl <= 0 keeps entries until evicted.
func NewSummaryCache(rdb kv, ttl time.Duration) *SummaryCache {
	if ttl < 0 {
		ttl = 0
	}
	return &SummaryCache{rdb: rdb, ttl: ttl}
}

// Get returns the cached summary, reporting false on a miss.
func (c *SummaryCache) Get(ctx context.Context, userID string, weekStart time.Time) (*weekly.WeeklySummary, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(userID, weekStart)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	var summary weekly.WeeklySummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, false, fmt.Errorf("decode cached summary: %w", err)
	}
	return &summary, true, nil
}

// Set stores the summary under its week start.
func (c *SummaryCache) Set(ctx context.Context, userID string, summary weekly.WeeklySummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(userID, summary.WeekStart), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete evicts the given weeks of the user.
func (c *SummaryCache) Delete(ctx context.Context, userID string, weekStarts ...time.Time) error {
	if len(weekStarts) == 0 {
		return nil
	}
	keys := make([]string, 0, len(weekStarts))
	for _, w := range weekStarts {
		keys = append(keys, Key(userID, w))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Purge evicts every cached week of the user.
func (c *SummaryCache) Purge(ctx context.Context, userID string) error {
	match := fmt.Sprintf("%s:%s:*", keyPrefix, userID)
	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, match, 100).Result()
		if err != nil {
			return fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis del: %w", err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

// Key builds the cache key for a user's week. Week starts are keyed by their UTC instant.
func Key(userID string, weekStart time.Time) string {
	return fmt.Sprintf("%s:%s:%d", keyPrefix, userID, weekStart.UTC().Unix())
}
