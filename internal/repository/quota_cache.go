package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/y-cruce/postflow/internal/service"
)

const quotaDayKeyPrefix = "quota_day:"

// quotaDayKey generates the Redis key for one account's local-day counter.
func quotaDayKey(accountID int64, localDate string) string {
	return fmt.Sprintf("%s%d:%s", quotaDayKeyPrefix, accountID, localDate)
}

type quotaCounterCache struct {
	rdb *redis.Client
}

// NewQuotaCounterCache 创建发帖配额计数缓存
func NewQuotaCounterCache(rdb *redis.Client) service.QuotaCounterCache {
	return &quotaCounterCache{rdb: rdb}
}

// IncrDay 自增当日计数并刷新过期时间，返回自增后的值
func (c *quotaCounterCache) IncrDay(ctx context.Context, accountID int64, localDate string, ttl time.Duration) (int64, error) {
	key := quotaDayKey(accountID, localDate)
	pipe := c.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *quotaCounterCache) GetDay(ctx context.Context, accountID int64, localDate string) (int64, error) {
	val, err := c.rdb.Get(ctx, quotaDayKey(accountID, localDate)).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		return 0, err
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quota counter %q: %w", val, err)
	}
	return n, nil
}
