package redis

import (
	"context"
	"encoding/json"
	"time"

	"kb-ext-api/internal/application/knowledge"
	"kb-ext-api/internal/domain/entity"
	"kb-ext-api/pkg/logger"
)

const defaultBindingTTL = 30 * time.Second

// bindingCache 绑定缓存所需的最小能力，由 Cache 提供
type bindingCache interface {
	GetOrLoadSafe(ctx context.Context, key string, ttl time.Duration, loader func() (interface{}, error)) ([]byte, error)
	Delete(ctx context.Context, keys ...string) error
}

// BindingStore 知识存储装饰器，为库绑定读取加 read-through 缓存。
// 检索链路每次请求都要读一次库绑定，短 TTL 缓存省掉这一跳 ES 往返；
// 写路径直接透传，成功后失效对应缓存键
type BindingStore struct {
	knowledge.Store
	cache bindingCache
	ttl   time.Duration
}

// cachedBinding 缓存负载，found=false 也缓存以挡住无效库的反复回源
type cachedBinding struct {
	Found   bool                   `json:"found"`
	Binding *entity.LibraryBinding `json:"binding,omitempty"`
}

// NewBindingStore 创建带绑定缓存的知识存储，ttl<=0 时使用默认值
func NewBindingStore(store knowledge.Store, cache *Cache, ttl time.Duration) *BindingStore {
	if ttl <= 0 {
		ttl = defaultBindingTTL
	}
	return &BindingStore{Store: store, cache: cache, ttl: ttl}
}

// GetBinding 先查缓存，未命中时 singleflight 回源后写回。
// 缓存层故障或条目损坏时降级为直读底层存储
func (s *BindingStore) GetBinding(ctx context.Context, libraryID string) (*entity.LibraryBinding, bool, error) {
	key := BuildBindingKey(libraryID)

	var loadErr error
	data, err := s.cache.GetOrLoadSafe(ctx, key, s.ttl, func() (interface{}, error) {
		binding, found, err := s.Store.GetBinding(ctx, libraryID)
		if err != nil {
			loadErr = err
			return nil, err
		}
		return cachedBinding{Found: found, Binding: binding}, nil
	})
	if err != nil {
		if loadErr != nil {
			return nil, false, loadErr
		}
		logger.Warn(ctx, "binding cache unavailable, reading store directly",
			"library_id", libraryID, "error", err.Error())
		return s.Store.GetBinding(ctx, libraryID)
	}

	var cached cachedBinding
	if err := json.Unmarshal(data, &cached); err != nil {
		logger.Warn(ctx, "corrupt binding cache entry, reading store directly",
			"library_id", libraryID, "error", err.Error())
		return s.Store.GetBinding(ctx, libraryID)
	}
	return cached.Binding, cached.Found, nil
}

// BindLibrary 透传写入并失效缓存
func (s *BindingStore) BindLibrary(ctx context.Context, libraryID string, categoryIDs []string) (*entity.BindResult, error) {
	result, err := s.Store.BindLibrary(ctx, libraryID, categoryIDs)
	if err == nil {
		s.invalidate(ctx, libraryID)
	}
	return result, err
}

// UnbindLibrary 透传解绑并失效缓存
func (s *BindingStore) UnbindLibrary(ctx context.Context, libraryID string) (int, error) {
	count, err := s.Store.UnbindLibrary(ctx, libraryID)
	if err == nil {
		s.invalidate(ctx, libraryID)
	}
	return count, err
}

// SetBinding 透传覆盖写并失效缓存
func (s *BindingStore) SetBinding(ctx context.Context, libraryID string, categoryIDs []string) error {
	err := s.Store.SetBinding(ctx, libraryID, categoryIDs)
	if err == nil {
		s.invalidate(ctx, libraryID)
	}
	return err
}

func (s *BindingStore) invalidate(ctx context.Context, libraryID string) {
	if err := s.cache.Delete(ctx, BuildBindingKey(libraryID)); err != nil {
		logger.Warn(ctx, "failed to invalidate binding cache",
			"library_id", libraryID, "error", err.Error())
	}
}
