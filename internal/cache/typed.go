package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// TypedCache 提供类型安全的缓存操作，值以 JSON 存储
type TypedCache[T any] struct {
	store Store
	ttl   time.Duration
}

// NewTypedCache 创建类型化的缓存包装器
func NewTypedCache[T any](store Store, ttl time.Duration) *TypedCache[T] {
	return &TypedCache[T]{store: store, ttl: ttl}
}

// Get 获取缓存，自动反序列化
func (tc *TypedCache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	raw, ok, err := tc.store.Get(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}

	var result T
	if err := json.Unmarshal(raw, &result); err != nil {
		return zero, false, fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return result, true, nil
}

// Set 设置缓存，自动序列化
func (tc *TypedCache[T]) Set(ctx context.Context, key string, value T) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return tc.store.Set(ctx, key, data, tc.ttl)
}

// Delete 删除缓存
func (tc *TypedCache[T]) Delete(ctx context.Context, key string) error {
	return tc.store.Delete(ctx, key)
}
