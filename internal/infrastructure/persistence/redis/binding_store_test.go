package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kb-ext-api/internal/application/knowledge"
	"kb-ext-api/internal/domain/entity"
	apperrors "kb-ext-api/pkg/errors"
)

// fakeBindingSource 只实现绑定相关方法，其余方法不会被触达
type fakeBindingSource struct {
	knowledge.Store
	binding  *entity.LibraryBinding
	found    bool
	err      error
	getCalls int
}

func (f *fakeBindingSource) GetBinding(_ context.Context, _ string) (*entity.LibraryBinding, bool, error) {
	f.getCalls++
	return f.binding, f.found, f.err
}

func (f *fakeBindingSource) SetBinding(_ context.Context, libraryID string, categoryIDs []string) error {
	f.binding = &entity.LibraryBinding{LibraryID: libraryID, CategoryIDs: categoryIDs}
	f.found = true
	return nil
}

func (f *fakeBindingSource) UnbindLibrary(_ context.Context, _ string) (int, error) {
	n := 0
	if f.found {
		n = len(f.binding.CategoryIDs)
	}
	f.binding = nil
	f.found = false
	return n, nil
}

type fakeBindingCache struct {
	entries map[string][]byte
	fail    bool
}

func newFakeBindingCache() *fakeBindingCache {
	return &fakeBindingCache{entries: map[string][]byte{}}
}

func (c *fakeBindingCache) GetOrLoadSafe(_ context.Context, key string, _ time.Duration, loader func() (interface{}, error)) ([]byte, error) {
	if c.fail {
		return nil, errors.New("connection refused")
	}
	if v, ok := c.entries[key]; ok {
		return v, nil
	}
	data, err := loader()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	c.entries[key] = b
	return b, nil
}

func (c *fakeBindingCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func newTestBindingStore(source *fakeBindingSource, cache *fakeBindingCache) *BindingStore {
	return &BindingStore{Store: source, cache: cache, ttl: time.Minute}
}

func TestBindingStoreReadThrough(t *testing.T) {
	source := &fakeBindingSource{
		binding: &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1", "cat-2"}},
		found:   true,
	}
	store := newTestBindingStore(source, newFakeBindingCache())

	for i := 0; i < 3; i++ {
		binding, found, err := store.GetBinding(context.Background(), "lib-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []string{"cat-1", "cat-2"}, binding.CategoryIDs)
	}

	// 只有首次未命中时回源
	assert.Equal(t, 1, source.getCalls)
}

func TestBindingStoreCachesMiss(t *testing.T) {
	source := &fakeBindingSource{found: false}
	store := newTestBindingStore(source, newFakeBindingCache())

	for i := 0; i < 2; i++ {
		binding, found, err := store.GetBinding(context.Background(), "lib-unknown")
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, binding)
	}

	assert.Equal(t, 1, source.getCalls)
}

func TestBindingStoreInvalidateOnWrite(t *testing.T) {
	source := &fakeBindingSource{
		binding: &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}},
		found:   true,
	}
	cache := newFakeBindingCache()
	store := newTestBindingStore(source, cache)

	_, _, err := store.GetBinding(context.Background(), "lib-1")
	require.NoError(t, err)
	require.Len(t, cache.entries, 1)

	require.NoError(t, store.SetBinding(context.Background(), "lib-1", []string{"cat-1", "cat-9"}))
	assert.Empty(t, cache.entries)

	binding, found, err := store.GetBinding(context.Background(), "lib-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []string{"cat-1", "cat-9"}, binding.CategoryIDs)
	assert.Equal(t, 2, source.getCalls)
}

func TestBindingStoreInvalidateOnUnbind(t *testing.T) {
	source := &fakeBindingSource{
		binding: &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}},
		found:   true,
	}
	cache := newFakeBindingCache()
	store := newTestBindingStore(source, cache)

	_, _, err := store.GetBinding(context.Background(), "lib-1")
	require.NoError(t, err)

	count, err := store.UnbindLibrary(context.Background(), "lib-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Empty(t, cache.entries)

	_, found, err := store.GetBinding(context.Background(), "lib-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBindingStoreCacheUnavailable(t *testing.T) {
	source := &fakeBindingSource{
		binding: &entity.LibraryBinding{LibraryID: "lib-1", CategoryIDs: []string{"cat-1"}},
		found:   true,
	}
	cache := newFakeBindingCache()
	cache.fail = true
	store := newTestBindingStore(source, cache)

	// 缓存层故障不影响读取，降级为直读
	for i := 0; i < 2; i++ {
		binding, found, err := store.GetBinding(context.Background(), "lib-1")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, "lib-1", binding.LibraryID)
	}
	assert.Equal(t, 2, source.getCalls)
}

func TestBindingStoreSourceError(t *testing.T) {
	source := &fakeBindingSource{
		err: apperrors.New(apperrors.CodeBackendError, "search backend is down"),
	}
	store := newTestBindingStore(source, newFakeBindingCache())

	_, _, err := store.GetBinding(context.Background(), "lib-1")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeBackendError))
}
