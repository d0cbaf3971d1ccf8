package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache provides typed caching utilities
// ⭐ SSOT: 캐시 헬퍼는 여기서만
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

// Get retrieves a cached value
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		// Key not found is not an error
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("cache get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// Delete removes a cached value
func (c *Cache) Delete(ctx context.Context, key string) error {
	if !c.client.Enabled() {
		return nil
	}

	return c.client.Redis().Del(ctx, c.fullKey(key)).Err()
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// Predefined TTLs
const (
	TTLShort   = 10 * time.Minute    // 진행 중인 월물 (intraday refresh)
	TTLDaily   = 24 * time.Hour      // 일별 데이터
	TTLExpired = 30 * 24 * time.Hour // 만기 지난 월물, 변하지 않음
)

// Common cache key generators

// ContractBarsKey identifies one contract's payload over a window; zero bounds render as "-"
func ContractBarsKey(source, symbol string, start, end time.Time) string {
	return fmt.Sprintf("bars:%s:%s:%s:%s", source, strings.ToUpper(symbol), keyDate(start), keyDate(end))
}

// UniverseKey identifies the listed contracts of a root
func UniverseKey(source, root string) string {
	return fmt.Sprintf("universe:%s:%s", source, strings.ToUpper(root))
}

func keyDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("20060102")
}
