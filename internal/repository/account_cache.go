package repository

import (
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/y-cruce/postflow/internal/service"
)

const (
	accountCacheTTL      = 30 * time.Second
	accountCacheCounters = 1 << 12
	accountCacheMaxCost  = 1 << 10
)

type accountSnapshotCache struct {
	cache *ristretto.Cache
}

// NewAccountSnapshotCache 创建账号快照缓存，发布路径用它避免逐帖查库
func NewAccountSnapshotCache() (service.AccountSnapshotCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: accountCacheCounters,
		MaxCost:     accountCacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &accountSnapshotCache{cache: cache}, nil
}

func (c *accountSnapshotCache) Get(id int64) (*service.Account, bool) {
	val, ok := c.cache.Get(id)
	if !ok {
		return nil, false
	}
	account, ok := val.(*service.Account)
	if !ok {
		return nil, false
	}
	return account, true
}

func (c *accountSnapshotCache) Set(account *service.Account) {
	c.cache.SetWithTTL(account.ID, account, 1, accountCacheTTL)
	// Writes are buffered; freeze/unfreeze must be visible to the next read.
	c.cache.Wait()
}

func (c *accountSnapshotCache) Del(id int64) {
	c.cache.Del(id)
}
