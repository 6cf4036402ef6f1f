// Package idempotency 以呼叫端請求編號上鎖，拒絕同時處理中的重複請求
package idempotency

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	// LockKeyPrefix 鎖的 key 命名空間
	LockKeyPrefix = "digicash:lock:"

	// DefaultLockTimeout 請求中斷時鎖自動過期
	DefaultLockTimeout = 10 * time.Second
)

// Locker 分散式鎖
type Locker interface {
	// Acquire 取得鎖，已被占用時回傳 false
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker 以 Redis SETNX 實作 Locker
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker {
	return &RedisLocker{rdb: rdb}
}

// NewRedisClient 建立 Redis 客戶端並確認連線
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, LockKeyPrefix+key, "processing", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, LockKeyPrefix+key).Err()
}

var _ Locker = (*RedisLocker)(nil)
