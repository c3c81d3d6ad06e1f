package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xxz807/fieldledger/internal/tax/domain"
)

const zoneKeyPrefix = "gl:tax:zone:"

// Connect 支持 redis:// URL 或 host:port
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisZoneCache 多实例共享的税区缓存
// 参考数据变更时整体失效 (按前缀删除)
type RedisZoneCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisZoneCache(client *redis.Client, ttl time.Duration) *RedisZoneCache {
	return &RedisZoneCache{client: client, ttl: ttl}
}

func (c *RedisZoneCache) Get(ctx context.Context, key string) ([]domain.TaxAuthority, bool, error) {
	raw, err := c.client.Get(ctx, zoneKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var out []domain.TaxAuthority
	if err := json.Unmarshal(raw, &out); err != nil {
		// 格式不对就当作未命中，下次 Set 会覆盖
		return nil, false, nil
	}
	return out, true, nil
}

func (c *RedisZoneCache) Set(ctx context.Context, key string, authorities []domain.TaxAuthority) error {
	raw, err := json.Marshal(authorities)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, zoneKeyPrefix+key, raw, c.ttl).Err()
}

func (c *RedisZoneCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, zoneKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
