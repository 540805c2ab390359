package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/y-cruce/postflow/internal/config"
	"github.com/y-cruce/postflow/internal/service"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
)

// ProviderSet 提供持久层的依赖
var ProviderSet = wire.NewSet(
	ProvideDB,
	ProvideRedisClient,
	ProvideObjectStore,
	NewAccountRepository,
	NewPostRepository,
	NewMediaAssetRepository,
	NewQuotaCounterCache,
	NewAccountSnapshotCache,
)

// ProvideDB 打开 PostgreSQL 连接池并执行迁移
func ProvideDB(cfg *config.Config) (*sql.DB, error) {
	db, err := Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := Migrate(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ProvideRedisClient 创建 redis 客户端并校验连通性
func ProvideRedisClient(cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// ProvideObjectStore 根据配置启用 S3 存储；未启用时素材接口直接拒绝
func ProvideObjectStore(cfg *config.Config) (service.ObjectStore, error) {
	if !cfg.S3.Enabled {
		return disabledObjectStore{}, nil
	}
	return NewObjectStore(context.Background(), cfg.S3)
}

var errObjectStoreDisabled = errors.New("object storage is not enabled")

type disabledObjectStore struct{}

func (disabledObjectStore) Put(ctx context.Context, key string, body []byte, contentType string) error {
	return errObjectStoreDisabled
}

func (disabledObjectStore) Delete(ctx context.Context, key string) error {
	return errObjectStoreDisabled
}

func (disabledObjectStore) URL(ctx context.Context, key string) (string, error) {
	return "", errObjectStoreDisabled
}
