package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xiebiao/shopstock/internal/domain/stock"
	apperrors "github.com/xiebiao/shopstock/pkg/errors"
)

// AvailabilityCache 可用量缓存
// 设计说明：
// 1. 缓存只服务读路径，事实来源永远是数据库
// 2. 每次库存/预留变更后失效对应key，读路径miss时回源重算
// 3. TTL设置得短（秒级到分钟级），即使失效遗漏也能快速自愈
// 4. Key设计：stock:avail:{type}:{id}（冒号分隔命名空间，便于监控和批量清理）
type AvailabilityCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAvailabilityCache 创建可用量缓存
func NewAvailabilityCache(client *redis.Client, ttl time.Duration) *AvailabilityCache {
	return &AvailabilityCache{client: client, ttl: ttl}
}

func cacheKey(ref stock.StockableRef) string {
	return fmt.Sprintf("stock:avail:%s:%d", ref.Type, ref.ID)
}

// Get 读取缓存的可用量
// miss时返回(0, false, nil)，调用方回源数据库
func (c *AvailabilityCache) Get(ctx context.Context, ref stock.StockableRef) (int, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(ref)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, apperrors.Wrap(err, "读取可用量缓存失败")
	}

	available, err := strconv.Atoi(val)
	if err != nil {
		// 脏数据按miss处理，回源后会被覆盖
		return 0, false, nil
	}

	return available, true, nil
}

// Set 写入可用量（带短TTL）
func (c *AvailabilityCache) Set(ctx context.Context, ref stock.StockableRef, available int) error {
	if err := c.client.Set(ctx, cacheKey(ref), available, c.ttl).Err(); err != nil {
		return apperrors.Wrap(err, "写入可用量缓存失败")
	}
	return nil
}

// Invalidate 失效某库存对象的缓存
func (c *AvailabilityCache) Invalidate(ctx context.Context, ref stock.StockableRef) error {
	if err := c.client.Del(ctx, cacheKey(ref)).Err(); err != nil {
		return apperrors.Wrap(err, "失效可用量缓存失败")
	}
	return nil
}
