package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shoplens/origin-report/internal/models"
)

// Daily counters outlive the first-touch window by a few days so month-end
// reports still resolve.
const counterTTL = 40 * 24 * time.Hour

// RedisOriginCounter implements OriginCounter with per-day Redis hashes.
type RedisOriginCounter struct {
	client *redis.Client
}

func NewRedisOriginCounter(client *redis.Client) *RedisOriginCounter {
	return &RedisOriginCounter{client: client}
}

func dayKey(day time.Time) string {
	return "origins:day:" + day.Format("2006-01-02")
}

// IncrOrigin bumps the day's counter for a normalized origin label.
func (c *RedisOriginCounter) IncrOrigin(ctx context.Context, day time.Time, label string) error {
	key := dayKey(day)
	pipe := c.client.Pipeline()
	pipe.HIncrBy(ctx, key, label, 1)
	pipe.Expire(ctx, key, counterTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to increment origin counter: %w", err)
	}
	return nil
}

// DayCounts returns the day's per-origin counts, empty when nothing was
// recorded.
func (c *RedisOriginCounter) DayCounts(ctx context.Context, day time.Time) (map[string]int64, error) {
	raw, err := c.client.HGetAll(ctx, dayKey(day)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read origin counters: %w", err)
	}
	counts := make(map[string]int64, len(raw))
	for label, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}
		counts[label] = n
	}
	return counts, nil
}

// ReportCache caches aggregation results for non-today ranges.
type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

func (c *ReportCache) key(dr models.DateRange, filters models.UTMFilters) string {
	blob, _ := json.Marshal(filters)
	return "report:" + dr.Key() + ":" + string(blob)
}

// Get returns the cached buckets for the run, nil on miss.
func (c *ReportCache) Get(ctx context.Context, dr models.DateRange, filters models.UTMFilters) ([]models.OriginBucket, error) {
	if c == nil || c.ttl <= 0 {
		return nil, nil
	}
	raw, err := c.client.Get(ctx, c.key(dr, filters)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var buckets []models.OriginBucket
	if err := json.Unmarshal(raw, &buckets); err != nil {
		return nil, nil
	}
	return buckets, nil
}

// Set stores the run's buckets with the configured TTL.
func (c *ReportCache) Set(ctx context.Context, dr models.DateRange, filters models.UTMFilters, buckets []models.OriginBucket) error {
	if c == nil || c.ttl <= 0 {
		return nil
	}
	blob, err := json.Marshal(buckets)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(dr, filters), blob, c.ttl).Err()
}
