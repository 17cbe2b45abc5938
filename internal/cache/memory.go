package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore 进程内缓存，未配置 Redis 时使用
type MemoryStore struct {
	client *gocache.Cache
}

// NewMemoryStore 创建进程内缓存
func NewMemoryStore(defaultTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		client: gocache.New(defaultTTL, 2*defaultTTL),
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := s.client.Get(key)
	if !ok {
		return nil, false, nil
	}
	data, ok := v.([]byte)
	return data, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.client.Set(key, value, ttl)
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.client.Delete(key)
	return nil
}
