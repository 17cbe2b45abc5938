package cache

import (
	"context"
	"time"
)

// Store 字节级缓存，内存与 Redis 两种实现
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
