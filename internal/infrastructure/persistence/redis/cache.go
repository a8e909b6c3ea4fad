package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

var cacheTracer = otel.Tracer("redis.cache")

// Cache Read-Through 缓存，值以 JSON 字节落库。
// 未命中时经 singleflight 合并并发加载，防止缓存击穿。
type Cache struct {
	client *Client
	flight singleflight.Group
}

// NewCache 创建缓存服务
func NewCache(client *Client) *Cache {
	return &Cache{client: client}
}

// get 返回值与命中标记；redis.Nil 归一为未命中
func (c *Cache) get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		return val, true, nil
	case err == redis.Nil:
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// GetOrLoadSafe Read-Through 读取；loader 产出经 JSON 序列化后回填
func (c *Cache) GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	ctx, span := cacheTracer.Start(ctx, "cache.GetOrLoadSafe",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if val, hit, err := c.get(ctx, key); err != nil {
		span.RecordError(err)
		return nil, err
	} else if hit {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return val, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.flight.Do(key, func() (interface{}, error) {
		// 排队等待期间可能已被其他请求填充
		if val, hit, err := c.get(ctx, key); err == nil && hit {
			return val, nil
		}

		data, err := loader()
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal cache value: %w", err)
		}

		// 回填失败不影响返回结果
		_ = c.client.rdb.Set(ctx, key, encoded, ttl).Err()
		return encoded, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return result.([]byte), nil
}

// Delete 删除缓存键
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	ctx, span := cacheTracer.Start(ctx, "cache.Delete",
		trace.WithAttributes(attribute.Int("cache.key_count", len(keys))))
	defer span.End()

	return c.client.rdb.Del(ctx, keys...).Err()
}
